// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

/*
Package services provides suture.Service wrappers for rdiffgate components.

Each wrapper translates a component's lifecycle into suture's context-aware
Serve pattern:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Waits for restore streams to drain up to the shutdown timeout

Account notifier (AccountNotifierService):
  - Subscribes the notifier to account events on the in-process bus
  - Stops for good once the bus is closed

Startup job (StartupService):
  - Runs a job runner once at startup, then returns suture.ErrDoNotRestart

Job runners themselves (jobs.Runner) implement suture.Service directly.
*/
package services

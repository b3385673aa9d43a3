// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

/*
Package supervisor provides process supervision for rdiffgate using suture v4.

# Overview

The supervisor tree organizes services into three layers for failure isolation:

	RootSupervisor ("rdiffgate")
	├── JobsSupervisor ("jobs-layer")
	│   ├── job-prune     (daily, jobs.prune_time)
	│   ├── job-notify    (daily, jobs.notify_time)
	│   └── job-discover  (every jobs.discover_interval)
	├── EventsSupervisor ("events-layer")
	│   └── account-notifier
	└── APISupervisor ("api-layer")
	    └── http-server

Each job runner is its own service, so jobs never block each other and a
job never runs concurrently with itself.

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddJobService(jobs.NewRunner(jobs.NewPruner(facade), daily))
	tree.AddEventService(services.NewAccountNotifierService(notifier, bus))
	tree.AddAPIService(services.NewHTTPServerService(server, 15*time.Second))

	return tree.Serve(ctx)

# Service Interface

Return behavior:
  - Return nil: service stopped cleanly, will not be restarted
  - Return error: service crashed, will be restarted
  - Return suture.ErrDoNotRestart: one-shot service finished
  - Context canceled: shutdown requested, return promptly

# Shutdown

A job run in progress is not interrupted by shutdown; the runner only
observes cancellation between runs. ShutdownTimeout bounds how long the
tree waits for it. UnstoppedServiceReport lists anything still running
after that.
*/
package supervisor

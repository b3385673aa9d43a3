// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package main is the entry point for rdiffgate.
//
// rdiffgate gives users web access to their rdiff-backup repositories:
// browsing every backup date, restoring files and directories as zip or tar
// archives, pruning old increments and mailing owners about stale backups.
//
// # Commands
//
//	rdiffgate serve                       run the HTTP API and scheduled jobs
//	rdiffgate prune                       prune every repository with keepdays set
//	rdiffgate notify                      mail owners of stale repositories
//	rdiffgate discover                    rescan home directories for repositories
//	rdiffgate restore REPO PATH           restore PATH from the repository at REPO
//	rdiffgate history REPO                print the backup sessions of REPO
//	rdiffgate user add|list|set-email|set-password
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables, optionally read from --env-file first
//   - Config file (--config, CONFIG_PATH, or rdiffgate.yaml in the search path)
//   - Built-in defaults
//
// # Signal Handling
//
// serve shuts down gracefully on SIGINT and SIGTERM. Running restores are
// aborted with the HTTP server; a prune in progress finishes first.
package main

import (
	"os"

	"github.com/tomtom215/rdiffgate/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.Error().Err(err).Msg("rdiffgate failed")
		os.Exit(1)
	}
}

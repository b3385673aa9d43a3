// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tomtom215/rdiffgate/internal/config"
	"github.com/tomtom215/rdiffgate/internal/logging"
)

// rootOptions carries the global flags and the configuration they produce.
type rootOptions struct {
	configPath string
	envFile    string

	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{stdout: os.Stdout, stderr: os.Stderr}

	cmd := &cobra.Command{
		Use:   "rdiffgate",
		Short: "Web access to rdiff-backup repositories",
		Long: `rdiffgate serves rdiff-backup repositories to their owners.

The 'serve' subcommand starts the HTTP API together with the retention,
staleness and discovery jobs. The other subcommands run a single job or an
administrative task and exit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.stdout = cmd.OutOrStdout()
			opts.stderr = cmd.ErrOrStderr()
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "read environment variables from this .env file first")

	cmd.AddCommand(
		newServeCmd(opts),
		newPruneCmd(opts),
		newNotifyCmd(opts),
		newDiscoverCmd(opts),
		newRestoreCmd(opts),
		newHistoryCmd(opts),
		newUserCmd(opts),
	)
	return cmd
}

// load reads the env file, then the layered configuration, and initializes
// logging from it. Variables already in the environment win over the file.
func (o *rootOptions) load() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load(config.LoadOptions{Path: o.configPath})
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    o.stderr,
	})
	o.cfg = cfg
	return nil
}

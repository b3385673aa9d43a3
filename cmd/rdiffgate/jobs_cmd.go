// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/rdiffgate/internal/jobs"
)

func newPruneCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove increments older than each repository's keepdays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // read-mostly catalogue
			return jobs.NewRunner(jobs.NewPruner(a.facade), nil).RunOnce(cmd.Context())
		},
	}
}

func newNotifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Mail owners about repositories that have not been backed up within maxage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // read-mostly catalogue
			n, err := a.notifier()
			if err != nil {
				return err
			}
			return jobs.NewRunner(jobs.NewStaleness(a.facade, n), nil).RunOnce(cmd.Context())
		},
	}
}

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Rescan home directories and update each user's repository list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // closed on exit

			if username != "" {
				res, err := a.facade.Discover(cmd.Context(), username)
				if err != nil {
					return err
				}
				printDiscovery(opts, res.Username, res.Added, res.Removed, res.Repos)
				return nil
			}
			results, err := a.facade.DiscoverAll(cmd.Context())
			for _, res := range results {
				printDiscovery(opts, res.Username, res.Added, res.Removed, res.Repos)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "only rescan this user's home")
	return cmd
}

func printDiscovery(opts *rootOptions, user string, added, removed, repos []string) {
	fmt.Fprintf(opts.stdout, "%s: %d repositories", user, len(repos))
	if len(added) > 0 {
		fmt.Fprintf(opts.stdout, ", added %s", strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		fmt.Fprintf(opts.stdout, ", removed %s", strings.Join(removed, ", "))
	}
	fmt.Fprintln(opts.stdout)
}

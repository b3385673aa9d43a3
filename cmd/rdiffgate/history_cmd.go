// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		encoding string
	)
	cmd := &cobra.Command{
		Use:   "history REPO",
		Short: "Print the backup sessions of the repository at REPO, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			repo, err := openRepo(opts, args[0], encoding)
			if err != nil {
				return err
			}
			printHistory(opts, repo, limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", -1, "show at most this many sessions (-1 for all)")
	cmd.Flags().StringVar(&encoding, "encoding", "", "filesystem encoding of the repository")
	return cmd
}

// openRepo opens the repository rooted at root with the configured defaults.
func openRepo(opts *rootOptions, root, encoding string) (*rdiff.Repository, error) {
	return rdiff.Open(root, rdiff.Options{
		DefaultEncoding: opts.cfg.Repos.DefaultEncoding,
		Encoding:        encoding,
		Engine:          newEngine(opts.cfg),
	})
}

func printHistory(opts *rootOptions, repo *rdiff.Repository, limit int) {
	entries := repo.History(rdiff.HistoryOptions{Limit: limit})
	if len(entries) == 0 {
		fmt.Fprintln(opts.stdout, "no backups")
		return
	}

	table := tablewriter.NewWriter(opts.stdout)
	table.SetHeader([]string{"Date", "Age", "Size", "Increment", "Elapsed", "Errors", "Status"})
	for _, e := range entries {
		status := "ok"
		switch {
		case e.InProgress:
			status = "in progress"
		case e.Session == nil:
			status = "no statistics"
		case e.Errors() > 0:
			status = "errors"
		}
		var elapsed time.Duration
		if e.Session != nil {
			elapsed = e.Session.Elapsed().Round(time.Second)
		}
		table.Append([]string{
			e.Date.Display(),
			humanize.Time(e.Date.Std()),
			humanize.IBytes(uint64(max(e.SourceSize(), 0))),
			humanize.IBytes(uint64(max(e.IncrementSize(), 0))),
			elapsed.String(),
			fmt.Sprintf("%d", e.Errors()),
			status,
		})
	}
	table.Render()
}

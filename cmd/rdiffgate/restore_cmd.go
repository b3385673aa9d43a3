// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
	"github.com/tomtom215/rdiffgate/internal/restore"
)

// restoreOptions are the flags of the restore command.
type restoreOptions struct {
	date         string
	kind         string
	encoding     string
	repoEncoding string
	output       string
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	ro := &restoreOptions{}
	cmd := &cobra.Command{
		Use:   "restore REPO [PATH]",
		Short: "Restore PATH of the repository at REPO as of a backup date",
		Long: `Restore a file or directory from the repository rooted at REPO.

PATH is relative to the repository root and defaults to the whole
repository. Without --date the most recent backup is used. Directories are
packaged as zip unless --kind says otherwise; --output - writes to stdout.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := ""
			if len(args) == 2 {
				p = args[1]
			}
			return runRestore(cmd, opts, ro, args[0], p)
		},
	}
	cmd.Flags().StringVarP(&ro.date, "date", "d", "", "backup date as YYYY-MM-DDTHH:MM:SS±HH:MM or epoch seconds")
	cmd.Flags().StringVarP(&ro.kind, "kind", "k", "", "raw, zip, tar, tar.gz or tar.bz2")
	cmd.Flags().StringVar(&ro.encoding, "archive-encoding", "", "encoding of member names inside the archive")
	cmd.Flags().StringVar(&ro.repoEncoding, "encoding", "", "filesystem encoding of the repository")
	cmd.Flags().StringVarP(&ro.output, "output", "o", "", "output file, - for stdout (default: the suggested file name)")
	return cmd
}

func runRestore(cmd *cobra.Command, opts *rootOptions, ro *restoreOptions, root, p string) error {
	repo, err := openRepo(opts, root, ro.repoEncoding)
	if err != nil {
		return err
	}
	view, err := repo.PathView(p)
	if err != nil {
		return err
	}

	var asOf rdiff.Time
	if ro.date != "" {
		if asOf, err = rdiff.ParseUserTime(ro.date); err != nil {
			return err
		}
	} else {
		last, ok := repo.LastBackupDate()
		if !ok {
			return rdiff.E(rdiff.DoesNotExist, "restore", p, errors.New("repository has no backups"))
		}
		asOf = last
	}

	kind := restore.Raw
	if view.IsDir() {
		kind = restore.Zip
	}
	if ro.kind != "" {
		if kind, err = restore.ParseKind(ro.kind); err != nil {
			return err
		}
	}

	stream, err := restore.New(restore.Config{ScratchDir: opts.cfg.Engine.TempDir}).Restore(cmd.Context(), restore.Request{
		View:     view,
		AsOf:     asOf,
		Kind:     kind,
		Encoding: ro.encoding,
	})
	if err != nil {
		return err
	}
	defer stream.Close() //nolint:errcheck // aborts the engine on early return

	name := ro.output
	if name == "" {
		name = stream.Filename()
	}
	if name != "-" {
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close() //nolint:errcheck // checked below via Sync
		n, err := io.Copy(f, stream)
		if err != nil {
			os.Remove(name) //nolint:errcheck,gosec // partial output
			return err
		}
		if err := f.Sync(); err != nil {
			return err
		}
		logging.Info().Str("file", name).Str("as_of", asOf.URLForm()).Msg("Restored " + humanize.IBytes(uint64(n)))
		return nil
	}
	_, err = io.Copy(opts.stdout, stream)
	return err
}

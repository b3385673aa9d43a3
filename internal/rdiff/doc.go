// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package rdiff reads rdiff-backup repositories.
//
// A repository is a directory holding the current mirror of the backed up
// data plus an rdiff-backup-data/ subtree with reverse increments, session
// and file statistics, error logs and mirror markers. This package exposes
// that layout as queryable objects:
//
//   - Quoter: the ;NNN escaping of filesystem-unsafe bytes (chars_to_quote)
//   - Time: increment timestamps with their timezone offset
//   - Increment: one dated file under rdiff-backup-data/ or increments/
//   - SessionStatistics and FileStatistics parsers
//   - Repository: backup dates, history, prune and delete
//   - PathView: validated paths, listings with change dates, restore dates
//
// Paths handled here are always in their quoted on-disk byte form, carried
// in Go strings. Decoding to text happens only in DisplayName-style helpers
// using the repository encoding.
//
// Repository objects are cheap and short-lived: build one per request. All
// reads are lazy and memoized on the instance. Access to the same repository
// from several goroutines is coordinated through a LockTable keyed by the
// repository root, taken in write mode by Prune and Delete and in read mode
// by everything else.
package rdiff

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func dateStrings(ts []Time) []string {
	out := make([]string, len(ts))
	for i, v := range ts {
		out[i] = v.URLFormUTC()
	}
	return out
}

func TestOpenRejectsNonRepository(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := Open(dir, Options{}); !IsKind(err, DoesNotExist) {
		t.Errorf("Open without rdiff-backup-data = %v, want DoesNotExist", err)
	}
	if _, err := Open(filepath.Join(dir, "nope"), Options{}); !IsKind(err, DoesNotExist) {
		t.Errorf("Open of missing root = %v, want DoesNotExist", err)
	}
	writeTree(t, dir, map[string]string{"rdiff-backup-data": "a file, not a directory"})
	if _, err := Open(dir, Options{}); !IsKind(err, DoesNotExist) {
		t.Errorf("Open with file rdiff-backup-data = %v, want DoesNotExist", err)
	}
}

func TestBackupDates(t *testing.T) {
	t.Parallel()

	root := newRepoDir(t, map[string]string{
		"rdiff-backup-data/mirror_metadata.2023-12-31T19:00:00-05:00.diff.gz": "",
		"rdiff-backup-data/mirror_metadata." + t3 + ".diff":                   "",
		"rdiff-backup-data/mirror_metadata.garbage.diff":                      "",
		"rdiff-backup-data/session_statistics." + t3 + ".data":                "",
	})
	r := openRepo(t, root)

	want := []string{t1, t2, t3}
	if diff := cmp.Diff(want, dateStrings(r.BackupDates())); diff != "" {
		t.Errorf("BackupDates() mismatch (-want +got):\n%s", diff)
	}
	last, ok := r.LastBackupDate()
	if !ok || last.URLFormUTC() != t3 {
		t.Errorf("LastBackupDate() = %v, %v", last, ok)
	}
	if after, ok := r.FirstBackupAfter(MustParseTime(t1)); !ok || after.URLFormUTC() != t2 {
		t.Errorf("FirstBackupAfter(t1) = %v, %v", after, ok)
	}
	if _, ok := r.FirstBackupAfter(MustParseTime(t3)); ok {
		t.Error("FirstBackupAfter(last) should be undefined")
	}
}

func TestEmptyRepository(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"rdiff-backup-data/": ""})
	r := openRepo(t, root)
	if _, ok := r.LastBackupDate(); ok {
		t.Error("empty repository should have no last backup")
	}
	if !r.InProgress() {
		t.Error("zero mirror markers should count as in progress")
	}
	if h := r.History(HistoryOptions{Limit: -1}); len(h) != 0 {
		t.Errorf("History() = %d entries", len(h))
	}
}

func TestInProgress(t *testing.T) {
	t.Parallel()

	r := openRepo(t, newRepoDir(t, nil))
	if r.InProgress() {
		t.Error("one marker should not be in progress")
	}

	root := newRepoDir(t, map[string]string{
		"rdiff-backup-data/current_mirror." + t3 + ".data": "PID 2\n",
	})
	r = openRepo(t, root)
	if !r.InProgress() {
		t.Error("two markers should be in progress")
	}
	d, ok := r.InProgressDate()
	if !ok || d.URLFormUTC() != t3 {
		t.Errorf("InProgressDate() = %v, %v", d, ok)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	root := newRepoDir(t, map[string]string{
		"rdiff-backup-data/mirror_metadata." + t3 + ".diff.gz":    "",
		"rdiff-backup-data/current_mirror." + t3 + ".data":        "PID 2\n",
		"rdiff-backup-data/session_statistics." + t1 + ".data":    "SourceFileSize 100\nIncrementFileSize 5\n",
		"rdiff-backup-data/session_statistics." + t2 + ".data.gz": "SourceFileSize 200\nIncrementFileSize 7\nErrors 1\n",
		"rdiff-backup-data/error_log." + t2 + ".data.gz":          "read error on a.txt\n",
		"rdiff-backup-data/file_statistics." + t2 + ".data.gz":    ". 1 0 0 0\n",
		"rdiff-backup-data/session_statistics.not-a-date.data":    "",
	})
	r := openRepo(t, root)

	all := r.History(HistoryOptions{Limit: -1})
	if diff := cmp.Diff([]string{t3, t2, t1}, historyDates(all)); diff != "" {
		t.Fatalf("History() dates (-want +got):\n%s", diff)
	}
	if !all[0].InProgress || all[1].InProgress {
		t.Error("only the newest entry should be flagged in progress")
	}
	if all[0].Session != nil || all[0].SourceSize() != 0 {
		t.Error("entry without statistics should have zero sizes")
	}
	if all[1].SourceSize() != 200 || all[1].IncrementSize() != 7 || all[1].Errors() != 1 {
		t.Errorf("t2 sizes = %d/%d/%d", all[1].SourceSize(), all[1].IncrementSize(), all[1].Errors())
	}
	if got := all[1].ErrorLog(); got != "read error on a.txt\n" {
		t.Errorf("ErrorLog() = %q", got)
	}
	if got := all[2].ErrorLog(); got != "" {
		t.Errorf("missing error log = %q", got)
	}

	excluded := r.History(HistoryOptions{Limit: -1, ExcludeInProgress: true})
	if diff := cmp.Diff([]string{t2, t1}, historyDates(excluded)); diff != "" {
		t.Errorf("ExcludeInProgress dates (-want +got):\n%s", diff)
	}

	if got := r.History(HistoryOptions{Limit: 2}); len(got) != 2 || got[0].Date.URLFormUTC() != t3 {
		t.Errorf("Limit 2 = %v", historyDates(got))
	}
	if got := r.History(HistoryOptions{Limit: 0}); len(got) != 0 {
		t.Errorf("Limit 0 = %v", historyDates(got))
	}
}

func TestHistoryBounds(t *testing.T) {
	t.Parallel()

	r := openRepo(t, newRepoDir(t, nil))
	last, _ := r.LastBackupDate()

	got := r.History(HistoryOptions{Limit: -1, Earliest: &last, Latest: &last})
	if len(got) != 1 || !got[0].Date.Equal(last) {
		t.Errorf("earliest=latest=last = %v", historyDates(got))
	}

	after := last.Add(time.Second)
	if got := r.History(HistoryOptions{Limit: -1, Earliest: &after}); len(got) != 0 {
		t.Errorf("earliest after last = %v", historyDates(got))
	}

	first := MustParseTime(t1)
	if got := r.History(HistoryOptions{Limit: -1, Latest: &first}); len(got) != 1 || got[0].Date.URLFormUTC() != t1 {
		t.Errorf("latest=t1 = %v", historyDates(got))
	}
}

func historyDates(h []*HistoryEntry) []string {
	out := make([]string, len(h))
	for i, e := range h {
		out[i] = e.Date.URLFormUTC()
	}
	return out
}

func TestEncodingPrecedence(t *testing.T) {
	t.Parallel()

	plain := openRepo(t, newRepoDir(t, nil))
	if plain.Codec().Name() != "utf-8" {
		t.Errorf("default codec = %s", plain.Codec().Name())
	}

	root := newRepoDir(t, map[string]string{"rdiff-backup-data/rdiffweb": "# hints\nencoding=latin1\nother = x\n"})
	hinted := openRepo(t, root)
	if hinted.Codec().Name() != "windows-1252" {
		t.Errorf("hinted codec = %s", hinted.Codec().Name())
	}
	if got := hinted.DisplayPath("caf\xe9"); got != "café" {
		t.Errorf("DisplayPath latin1 = %q", got)
	}

	override, err := Open(root, Options{Encoding: "utf-8"})
	if err != nil {
		t.Fatal(err)
	}
	if override.Codec().Name() != "utf-8" {
		t.Errorf("catalogue encoding should win, got %s", override.Codec().Name())
	}

	bogus := newRepoDir(t, map[string]string{"rdiff-backup-data/rdiffweb": "encoding=klingon\n"})
	if r := openRepo(t, bogus); r.Codec().Name() != "utf-8" {
		t.Errorf("unknown hint should be ignored, got %s", r.Codec().Name())
	}
}

func TestDeleteWaitsForRestores(t *testing.T) {
	t.Parallel()

	locks := NewLockTable()
	root := newRepoDir(t, nil)
	r, err := Open(root, Options{Locks: locks})
	if err != nil {
		t.Fatal(err)
	}

	release := locks.BeginRestore(root)
	if locks.ActiveRestores(root) != 1 {
		t.Fatalf("ActiveRestores = %d", locks.ActiveRestores(root))
	}

	var wg sync.WaitGroup
	done := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		done <- r.Delete()
	}()

	select {
	case <-done:
		t.Fatal("Delete returned while a restore was running")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release()
	wg.Wait()
	if err := <-done; err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("root still present: %v", err)
	}
	if locks.ActiveRestores(root) != 0 {
		t.Errorf("ActiveRestores after release = %d", locks.ActiveRestores(root))
	}
}

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

const (
	t1 = "2024-01-01T00:00:00Z"
	t2 = "2024-01-02T00:00:00Z"
	t3 = "2024-01-03T00:00:00Z"
)

// writeTree creates files below root. Keys ending in "/" create directories;
// keys ending in ".gz" get gzip-compressed content.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(full, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		data := []byte(content)
		if strings.HasSuffix(name, ".gz") {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(data); err != nil {
				t.Fatalf("gzip %s: %v", name, err)
			}
			if err := zw.Close(); err != nil {
				t.Fatalf("gzip %s: %v", name, err)
			}
			data = buf.Bytes()
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

// newRepoDir builds a repository with backups at t1 and t2 and returns its root.
func newRepoDir(t *testing.T, extra map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "laptop")
	files := map[string]string{
		"rdiff-backup-data/current_mirror." + t2 + ".data":         "PID 1\n",
		"rdiff-backup-data/mirror_metadata." + t1 + ".snapshot.gz": "File .\n",
		"rdiff-backup-data/mirror_metadata." + t2 + ".diff.gz":     "File .\n",
		"rdiff-backup-data/increments/":                            "",
	}
	for k, v := range extra {
		files[k] = v
	}
	writeTree(t, root, files)
	return root
}

func openRepo(t *testing.T, root string) *Repository {
	t.Helper()
	r, err := Open(root, Options{Locks: NewLockTable()})
	if err != nil {
		t.Fatalf("Open(%s): %v", root, err)
	}
	return r
}

func mustTime(t *testing.T, s string) Time {
	t.Helper()
	v, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime(%q): %v", s, err)
	}
	return v
}

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	t1 = "2024-01-01T00:00:00Z"
	t2 = "2024-01-02T00:00:00Z"
)

// run executes the root command with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// setupEnv points the catalogue at a temporary directory and returns a home
// holding one repository, "laptop", with two sessions.
func setupEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("CATALOGUE_PATH", filepath.Join(t.TempDir(), "catalogue"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("SMTP_MAILDIR", "")

	home := t.TempDir()
	writeFiles(t, filepath.Join(home, "laptop"), map[string]string{
		"rdiff-backup-data/current_mirror." + t2 + ".data":      "PID 1\n",
		"rdiff-backup-data/mirror_metadata." + t1 + ".snapshot": "File .\n",
		"rdiff-backup-data/mirror_metadata." + t2 + ".snapshot": "File .\n",
		"rdiff-backup-data/session_statistics." + t1 + ".data":  "SourceFileSize 1048576 (1 MiB)\nElapsedTime 2.0 (2 seconds)\nErrors 0\n",
		"rdiff-backup-data/session_statistics." + t2 + ".data":  "SourceFileSize 2097152 (2 MiB)\nElapsedTime 61.0 (1 minute 1 second)\nErrors 3\n",
		"docs/a.txt": "alpha",
	})
	return home
}

func TestUserLifecycle(t *testing.T) {
	home := setupEnv(t)

	out, err := run(t, "Tq7#mVz!pR2w\n", "user", "add", "alice", "--home", home, "--email", "alice@example.com", "--password-stdin")
	if err != nil {
		t.Fatalf("user add: %v", err)
	}
	if !strings.Contains(out, "alice: 1 repositories") || !strings.Contains(out, "added laptop") {
		t.Errorf("user add output = %q, want discovery summary", out)
	}

	if _, err := run(t, "", "user", "add", "alice", "--home", home); err == nil {
		t.Error("adding an existing user succeeded")
	}

	if _, err := run(t, "", "user", "set-email", "alice", "alice@example.org"); err != nil {
		t.Fatalf("set-email: %v", err)
	}
	if _, err := run(t, "", "user", "set-email", "alice", "not-an-address"); err == nil {
		t.Error("set-email accepted an invalid address")
	}

	out, err = run(t, "", "user", "list")
	if err != nil {
		t.Fatalf("user list: %v", err)
	}
	for _, want := range []string{"alice", "alice@example.org", "laptop"} {
		if !strings.Contains(out, want) {
			t.Errorf("user list output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "short\n", "user", "set-password", "alice"); err == nil {
		t.Error("set-password accepted a password violating the policy")
	}
	if _, err := run(t, "", "user", "set-password", "alice"); err == nil {
		t.Error("set-password accepted empty stdin")
	}

	if _, err := run(t, "", "user", "delete", "alice"); err != nil {
		t.Fatalf("user delete: %v", err)
	}
	if _, err := run(t, "", "user", "delete", "alice"); err == nil {
		t.Error("deleting an unknown user succeeded")
	}
}

func TestDiscoverCommand(t *testing.T) {
	home := setupEnv(t)
	if _, err := run(t, "", "user", "add", "bob", "--home", home); err != nil {
		t.Fatalf("user add: %v", err)
	}
	writeFiles(t, filepath.Join(home, "server"), map[string]string{
		"rdiff-backup-data/mirror_metadata." + t1 + ".snapshot": "File .\n",
	})

	out, err := run(t, "", "discover", "--user", "bob")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if !strings.Contains(out, "bob: 2 repositories, added server") {
		t.Errorf("discover output = %q", out)
	}
}

func TestHistoryCommand(t *testing.T) {
	home := setupEnv(t)

	out, err := run(t, "", "history", filepath.Join(home, "laptop"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"2024-01-02 00:00", "2024-01-01 00:00", "2.0 MiB", "1m1s", "errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}
	if i, j := strings.Index(out, "2024-01-02"), strings.Index(out, "2024-01-01"); i > j {
		t.Errorf("history not newest first:\n%s", out)
	}

	out, err = run(t, "", "history", "--limit", "1", filepath.Join(home, "laptop"))
	if err != nil {
		t.Fatalf("history --limit: %v", err)
	}
	if strings.Contains(out, "2024-01-01") {
		t.Errorf("history --limit 1 printed the older session:\n%s", out)
	}
}

func TestHistoryRejectsNonRepository(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "", "history", t.TempDir()); err == nil {
		t.Error("history on a plain directory succeeded")
	}
}

func TestRestoreCommandValidatesInput(t *testing.T) {
	home := setupEnv(t)
	repo := filepath.Join(home, "laptop")

	tests := []struct {
		name string
		args []string
	}{
		{"bad date", []string{"restore", repo, "docs", "--date", "yesterday"}},
		{"bad kind", []string{"restore", repo, "docs", "--kind", "rar"}},
		{"traversal", []string{"restore", repo, "../etc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, "", tt.args...); err == nil {
				t.Errorf("%v succeeded", tt.args)
			}
		})
	}
}

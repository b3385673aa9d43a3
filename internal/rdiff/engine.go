// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// DefaultEngine is the rdiff-backup executable name looked up on PATH.
const DefaultEngine = "rdiff-backup"

// Engine builds and runs rdiff-backup invocations.
type Engine struct {
	// Executable is a name looked up on PATH, or a path.
	Executable string

	// TempDir is exported to the engine as TMPDIR when set; otherwise the
	// process TMPDIR is inherited.
	TempDir string
}

// NewEngine returns an engine using the default executable name.
func NewEngine() *Engine {
	return &Engine{Executable: DefaultEngine}
}

// Resolve locates the executable on PATH.
func (e *Engine) Resolve() (string, error) {
	name := e.Executable
	if name == "" {
		name = DefaultEngine
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", E(EngineMissing, "resolve engine", "", err)
	}
	return path, nil
}

// Env returns the environment passed to the engine.
func (e *Engine) Env() []string {
	env := []string{"LANG=en_US.UTF-8"}
	if e.TempDir != "" {
		env = append(env, "TMPDIR="+e.TempDir)
	} else if tmp, ok := os.LookupEnv("TMPDIR"); ok {
		env = append(env, "TMPDIR="+tmp)
	}
	return env
}

// RestoreArgs returns the argument vector (without the executable) that
// restores source as of asOf into dest.
func RestoreArgs(asOf Time, source, dest string) []string {
	return []string{"-v", "5", "--restore-as-of=" + strconv.FormatInt(asOf.Epoch(), 10), source, dest}
}

// PruneArgs returns the argument vector that removes increments older than
// days days from the repository at root.
func PruneArgs(days int, root string) []string {
	return []string{"--force", fmt.Sprintf("--remove-older-than=%dD", days), root}
}

// RestoreCommand prepares, but does not start, a restore subprocess.
func (e *Engine) RestoreCommand(ctx context.Context, asOf Time, source, dest string) (*exec.Cmd, error) {
	path, err := e.Resolve()
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, RestoreArgs(asOf, source, dest)...) //nolint:gosec // G204: fixed argument vector
	cmd.Env = e.Env()
	return cmd, nil
}

// Prune runs the engine's --remove-older-than against root and waits.
func (e *Engine) Prune(ctx context.Context, root string, days int) error {
	path, err := e.Resolve()
	if err != nil {
		return err
	}
	tail := NewTailBuffer(4096)
	cmd := exec.CommandContext(ctx, path, PruneArgs(days, root)...) //nolint:gosec // G204: fixed argument vector
	cmd.Env = e.Env()
	cmd.Stdout = io.Discard
	cmd.Stderr = tail

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return E(PruneFailed, "prune", root,
				fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), tail.String()))
		}
		return E(PruneFailed, "prune", root, err)
	}
	return nil
}

// TailBuffer is an io.Writer keeping the last max bytes written.
type TailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

// NewTailBuffer returns a TailBuffer bounded to max bytes.
func NewTailBuffer(limit int) *TailBuffer {
	return &TailBuffer{max: limit}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// String returns the retained tail, trimmed of surrounding whitespace.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(bytes.ToValidUTF8(t.buf, []byte("?"))))
}

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package restore streams rdiff-backup restores as raw files or archives.
//
// The engine restores into a private scratch directory while its progress
// lines are read from stdout. Each restored file is appended to the archive
// as soon as the engine has moved on to the next one and is then deleted
// from the scratch tree, so disk usage stays around the size of the largest
// file while the response grows.
package restore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/metrics"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

// progressPrefix marks a restored entry on the engine's stdout.
const progressPrefix = "Processing changed file "

// Request describes one restore.
type Request struct {
	View *rdiff.PathView
	AsOf rdiff.Time
	Kind Kind

	// Encoding is the target encoding of archive member names. Empty means
	// the repository encoding.
	Encoding string
}

// Config tunes the pipeline.
type Config struct {
	// ScratchDir is where private scratch directories are created;
	// empty means the system temp directory.
	ScratchDir string
}

// Pipeline runs restores.
type Pipeline struct {
	cfg    Config
	logger zerolog.Logger
}

// New returns a Pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logging.WithComponent("restore")}
}

// Stream is the byte stream of a running restore. Closing it before EOF
// cancels the restore: the engine is killed and the scratch tree removed.
type Stream struct {
	*io.PipeReader
	name        string
	contentType string
	cancel      context.CancelFunc
	done        chan struct{}
}

// Filename is the suggested download name.
func (s *Stream) Filename() string { return s.name }

// ContentType is the MIME type of the stream.
func (s *Stream) ContentType() string { return s.contentType }

// Close aborts the restore if it is still running and waits for cleanup.
func (s *Stream) Close() error {
	err := s.PipeReader.Close()
	s.cancel()
	<-s.done
	return err
}

// Restore starts a restore and returns its stream. Engine lookup and
// scratch allocation failures are reported here; engine failures surface
// as read errors on the stream.
func (p *Pipeline) Restore(ctx context.Context, req Request) (*Stream, error) {
	const op = "restore"
	if req.View == nil {
		return nil, errors.New("restore: no path")
	}
	repo := req.View.Repository()
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	codec := repo.Codec()
	if req.Encoding != "" {
		c, err := rdiff.LookupCodec(req.Encoding)
		if err != nil {
			return nil, err
		}
		codec = c
	}
	if _, err := repo.Engine().Resolve(); err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(p.cfg.ScratchDir, "rdiffgate-restore-")
	if err != nil {
		return nil, rdiff.E(rdiff.IOUnavailable, op, "", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	dest := filepath.Join(scratch, req.View.Name())
	cmd, err := repo.Engine().RestoreCommand(ctx, req.AsOf, req.View.FullPath(), dest)
	if err != nil {
		cancel()
		os.RemoveAll(scratch) //nolint:errcheck,gosec // best effort cleanup
		return nil, err
	}

	top := repo.Quoter().Unquote(req.View.Name())
	displayName := req.View.DisplayName()
	j := &job{
		kind:    kind,
		dest:    dest,
		top:     top,
		isFile:  !req.View.IsDir(),
		codec:   codec,
		logger:  p.logger.With().Str("repo", repo.Root()).Str("op", op).Str("path", req.View.Path()).Str("kind", string(kind)).Logger(),
		started: time.Now(),
		cancel:  cancel,
	}

	pr, pw := io.Pipe()
	s := &Stream{
		PipeReader:  pr,
		name:        kind.Filename(displayName),
		contentType: kind.ContentType(displayName),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	release := repo.Locks().BeginRestore(repo.Root())
	metrics.ActiveRestores.Inc()
	j.logger.Info().Int64("as_of", req.AsOf.Epoch()).Msg("restore started")

	go func() {
		defer close(s.done)
		defer metrics.ActiveRestores.Dec()
		defer release()
		defer os.RemoveAll(scratch) //nolint:errcheck // best effort cleanup
		defer cancel()

		cw := &countingWriter{w: pw}
		err := j.run(ctx, cmd, cw)
		metrics.RecordRestore(string(j.kind), cw.n, time.Since(j.started), err)
		if err != nil {
			j.logger.Error().Err(err).Int("archived", j.archived).Msg("restore failed")
		} else {
			j.logger.Info().Int("archived", j.archived).Int64("bytes", cw.n).Dur("elapsed", time.Since(j.started)).Msg("restore finished")
		}
		pw.CloseWithError(err) //nolint:errcheck,gosec // always nil
	}()
	return s, nil
}

type job struct {
	kind    Kind
	dest    string
	top     string
	isFile  bool
	codec   *rdiff.Codec
	logger  zerolog.Logger
	started time.Time
	cancel  context.CancelFunc

	arc      archiver
	produced int
	archived int
}

func (j *job) run(ctx context.Context, cmd *exec.Cmd, w io.Writer) error {
	const op = "restore"
	arc, err := newArchiver(j.kind, w, j.codec)
	if err != nil {
		return err
	}
	j.arc = arc

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return rdiff.E(rdiff.RestoreFailed, op, "", err)
	}

	tail := rdiff.NewTailBuffer(4096)
	lines := make(chan string, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 4096), 1<<20)
		for sc.Scan() {
			_, _ = tail.Write(sc.Bytes())
			_, _ = tail.Write([]byte{'\n'})
			j.logger.Debug().Str("stderr", sc.Text()).Msg("engine")
		}
		return nil
	})
	g.Go(func() error {
		defer close(lines)
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 4096), 1<<20)
		for sc.Scan() {
			line := strings.TrimSuffix(sc.Text(), "\r")
			rel, ok := strings.CutPrefix(line, progressPrefix)
			if !ok {
				continue
			}
			select {
			case lines <- rel:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	// The engine announces an entry before writing it, so an entry is
	// archived once the next one is announced or the engine exits.
	var pending *string
	var appendErr error
	for rel := range lines {
		if appendErr == nil && pending != nil {
			appendErr = j.add(*pending)
		}
		if appendErr != nil {
			j.cancel()
			continue
		}
		r := rel
		pending = &r
	}
	_ = g.Wait()
	waitErr := cmd.Wait()

	if appendErr != nil {
		return appendErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if pending != nil {
		if err := j.add(*pending); err != nil {
			return err
		}
	}

	// A top directory counts as output but not as archived content.
	if waitErr != nil && j.archived == 0 {
		return rdiff.E(rdiff.RestoreFailed, op, "", fmt.Errorf("%w: %s", waitErr, tail.String()))
	}
	if waitErr != nil {
		j.logger.Warn().Err(waitErr).Str("stderr", tail.String()).Msg("engine failed after producing output")
	}
	if j.produced == 0 {
		return rdiff.E(rdiff.RestoreFailed, op, "", errors.New("engine produced no output"))
	}
	return j.arc.Close()
}

// add archives one announced entry and removes it from the scratch tree.
func (j *job) add(rel string) error {
	resolved, ok := resolveRestored(j.dest, rel, j.codec)
	if !ok {
		j.logger.Warn().Str("entry", rel).Msg("restored entry not found, skipping")
		return nil
	}
	full := filepath.Join(j.dest, resolved)
	fi, err := os.Lstat(full)
	if err != nil {
		j.logger.Warn().Err(err).Str("entry", rel).Msg("restored entry vanished, skipping")
		return nil
	}
	j.produced++

	// The top directory is never an entry, and raw carries only a restored
	// file itself.
	if (resolved == "" && fi.IsDir()) || (j.kind == Raw && (!j.isFile || resolved != "")) {
		if !fi.IsDir() {
			j.remove(full, rel)
		}
		return nil
	}
	name := j.top
	if resolved != "" {
		name = path.Join(j.top, resolved)
	}
	added, err := j.arc.Add(name, full, fi)
	if err != nil {
		return err
	}
	if added {
		j.archived++
	}
	if !fi.IsDir() {
		j.remove(full, rel)
	}
	return nil
}

func (j *job) remove(full, rel string) {
	if err := os.Remove(full); err != nil {
		j.logger.Debug().Err(err).Str("entry", rel).Msg("could not remove restored file")
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

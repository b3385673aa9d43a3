// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rdiffgate/internal/logging"
)

// DataDir is the metadata directory name at a repository root.
const DataDir = "rdiff-backup-data"

// Prefixes of the files found directly in rdiff-backup-data/.
const (
	prefixCurrentMirror  = "current_mirror."
	prefixMirrorMetadata = "mirror_metadata."
	prefixSessionStats   = "session_statistics."
	prefixFileStats      = "file_statistics."
	prefixErrorLog       = "error_log."
	hintsFile            = "rdiffweb"
)

// Options tune how a repository is opened.
type Options struct {
	// DefaultEncoding is used when neither the hints file nor Encoding names a codec.
	DefaultEncoding string

	// Encoding is the per-repository value from the catalogue. It wins over
	// the hints file when it names a known codec.
	Encoding string

	// DisplayName overrides the name shown to users; defaults to the root's base name.
	DisplayName string

	// Locks coordinates access with other goroutines. Defaults to DefaultLocks.
	Locks *LockTable

	// Engine runs rdiff-backup for Prune. Defaults to NewEngine().
	Engine *Engine
}

// Repository is an rdiff-backup repository rooted at an absolute directory.
type Repository struct {
	root        string
	displayName string
	codec       *Codec
	quoter      *Quoter
	locks       *LockTable
	engine      *Engine
	logger      zerolog.Logger

	// Listing of rdiff-backup-data/, taken once at Open.
	names   []string
	entries []*Increment

	datesOnce sync.Once
	dates     []Time

	indexOnce   sync.Once
	sessionIdx  map[int64]*Increment
	fileStatIdx map[int64]*Increment
	errorLogIdx map[int64]*Increment

	mu          sync.Mutex
	sessionMemo map[int64]*SessionStatistics
	fileMemo    map[int64]*FileStatistics
}

// Open validates the layout at root and lists rdiff-backup-data/.
func Open(root string, opts Options) (*Repository, error) {
	root = filepath.Clean(root)
	fi, err := os.Stat(root)
	if err != nil || !fi.IsDir() {
		return nil, E(DoesNotExist, "open repository", root, err)
	}
	dataDir := filepath.Join(root, DataDir)
	fi, err = os.Stat(dataDir)
	if err != nil || !fi.IsDir() {
		return nil, E(DoesNotExist, "open repository", root, err)
	}

	dirents, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, E(IOUnavailable, "open repository", root, err)
	}

	r := &Repository{
		root:        root,
		displayName: opts.DisplayName,
		locks:       opts.Locks,
		engine:      opts.Engine,
		logger:      logging.WithComponent("rdiff").With().Str("repo", root).Logger(),
		sessionMemo: make(map[int64]*SessionStatistics),
		fileMemo:    make(map[int64]*FileStatistics),
	}
	if r.displayName == "" {
		r.displayName = filepath.Base(root)
	}
	if r.locks == nil {
		r.locks = DefaultLocks
	}
	if r.engine == nil {
		r.engine = NewEngine()
	}

	for _, d := range dirents {
		name := d.Name()
		r.names = append(r.names, name)
		if d.IsDir() {
			continue
		}
		if inc, ok := ParseIncrement(dataDir, name); ok {
			r.entries = append(r.entries, inc)
		}
	}

	if r.quoter, err = LoadQuoter(root); err != nil {
		return nil, err
	}
	r.codec = r.resolveCodec(opts)
	return r, nil
}

func (r *Repository) resolveCodec(opts Options) *Codec {
	codec, err := LookupCodec(opts.DefaultEncoding)
	if err != nil {
		codec = MustCodec(DefaultEncoding)
	}
	if label := r.hints()["encoding"]; label != "" {
		if c, err := LookupCodec(label); err == nil {
			codec = c
		} else {
			r.logger.Warn().Str("encoding", label).Msg("ignoring unknown encoding in hints file")
		}
	}
	if opts.Encoding != "" {
		if c, err := LookupCodec(opts.Encoding); err == nil {
			codec = c
		} else {
			r.logger.Warn().Str("encoding", opts.Encoding).Msg("ignoring unknown configured encoding")
		}
	}
	return codec
}

// hints reads the optional key=value hints file.
func (r *Repository) hints() map[string]string {
	out := make(map[string]string)
	f, err := os.Open(filepath.Join(r.root, DataDir, hintsFile)) //nolint:gosec // G304: path is inside a validated repository
	if err != nil {
		return out
	}
	defer f.Close() //nolint:errcheck // read only
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// Root returns the absolute repository root.
func (r *Repository) Root() string { return r.root }

// DisplayName returns the name shown to users.
func (r *Repository) DisplayName() string { return r.displayName }

// Codec returns the repository text encoding.
func (r *Repository) Codec() *Codec { return r.codec }

// Quoter returns the repository quoting codec.
func (r *Repository) Quoter() *Quoter { return r.quoter }

// Locks returns the lock table coordinating this repository.
func (r *Repository) Locks() *LockTable { return r.locks }

// Engine returns the configured rdiff-backup engine.
func (r *Repository) Engine() *Engine { return r.engine }

// Logger returns the repository-scoped logger.
func (r *Repository) Logger() zerolog.Logger { return r.logger }

// DataEntries returns the increments found directly in rdiff-backup-data/.
func (r *Repository) DataEntries() []*Increment { return r.entries }

// DisplayPath converts a quoted path into text for presentation.
func (r *Repository) DisplayPath(quoted string) string {
	return r.codec.Decode(r.quoter.Unquote(quoted))
}

// BackupDates returns the dates of the mirror_metadata files, ascending and
// without duplicates.
func (r *Repository) BackupDates() []Time {
	r.datesOnce.Do(func() {
		seen := make(map[int64]bool)
		for _, inc := range r.entries {
			if !strings.HasPrefix(inc.Name(), prefixMirrorMetadata) {
				continue
			}
			d, ok := inc.Date()
			if !ok || seen[d.Epoch()] {
				continue
			}
			seen[d.Epoch()] = true
			r.dates = append(r.dates, d)
		}
		sort.Slice(r.dates, func(i, j int) bool { return r.dates[i].Before(r.dates[j]) })
	})
	return r.dates
}

// LastBackupDate returns the newest backup date.
func (r *Repository) LastBackupDate() (Time, bool) {
	dates := r.BackupDates()
	if len(dates) == 0 {
		return Time{}, false
	}
	return dates[len(dates)-1], true
}

// FirstBackupAfter returns the oldest backup date strictly after t.
func (r *Repository) FirstBackupAfter(t Time) (Time, bool) {
	dates := r.BackupDates()
	i := sort.Search(len(dates), func(i int) bool { return dates[i].After(t) })
	if i == len(dates) {
		return Time{}, false
	}
	return dates[i], true
}

// InProgress reports whether a backup is running or was interrupted: the
// number of current_mirror markers differs from one.
func (r *Repository) InProgress() bool {
	return r.countMarkers() != 1
}

func (r *Repository) countMarkers() int {
	n := 0
	for _, name := range r.names {
		if strings.HasPrefix(name, prefixCurrentMirror) {
			n++
		}
	}
	return n
}

// InProgressDate returns the date of the newest mirror marker when more than
// one marker exists.
func (r *Repository) InProgressDate() (Time, bool) {
	if r.countMarkers() <= 1 {
		return Time{}, false
	}
	var latest Time
	found := false
	for _, inc := range r.entries {
		if !strings.HasPrefix(inc.Name(), prefixCurrentMirror) {
			continue
		}
		if d, ok := inc.Date(); ok && (!found || d.After(latest)) {
			latest, found = d, true
		}
	}
	return latest, found
}

func (r *Repository) buildIndexes() {
	r.indexOnce.Do(func() {
		r.sessionIdx = make(map[int64]*Increment)
		r.fileStatIdx = make(map[int64]*Increment)
		r.errorLogIdx = make(map[int64]*Increment)
		for _, inc := range r.entries {
			d, ok := inc.Date()
			if !ok {
				continue
			}
			var idx map[int64]*Increment
			switch {
			case strings.HasPrefix(inc.Name(), prefixSessionStats):
				idx = r.sessionIdx
			case strings.HasPrefix(inc.Name(), prefixFileStats):
				idx = r.fileStatIdx
			case strings.HasPrefix(inc.Name(), prefixErrorLog):
				idx = r.errorLogIdx
			default:
				continue
			}
			if _, dup := idx[d.Epoch()]; !dup {
				idx[d.Epoch()] = inc
			}
		}
	})
}

// SessionStatistics returns the parsed session statistics for date, or nil
// when absent or unreadable.
func (r *Repository) SessionStatistics(date Time) *SessionStatistics {
	r.buildIndexes()
	inc, ok := r.sessionIdx[date.Epoch()]
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessionMemo[date.Epoch()]; ok {
		return s
	}
	var stats *SessionStatistics
	rc, err := inc.Open()
	if err == nil {
		stats, err = ParseSessionStatistics(rc)
		rc.Close() //nolint:errcheck,gosec // read only
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("op", "session statistics").Str("date", date.URLForm()).
			Msg("session statistics unavailable")
		stats = nil
	}
	r.sessionMemo[date.Epoch()] = stats
	return stats
}

// FileStatistics returns the parsed file statistics for date, or nil.
func (r *Repository) FileStatistics(date Time) *FileStatistics {
	r.buildIndexes()
	inc, ok := r.fileStatIdx[date.Epoch()]
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.fileMemo[date.Epoch()]; ok {
		return s
	}
	var stats *FileStatistics
	rc, err := inc.Open()
	if err == nil {
		stats, err = ParseFileStatistics(rc, r.logger)
		rc.Close() //nolint:errcheck,gosec // read only
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("op", "file statistics").Str("date", date.URLForm()).
			Msg("file statistics unavailable")
		stats = nil
	}
	r.fileMemo[date.Epoch()] = stats
	return stats
}

// ErrorLog returns the decoded error log of date, "" when absent or unreadable.
func (r *Repository) ErrorLog(date Time) string {
	r.buildIndexes()
	inc, ok := r.errorLogIdx[date.Epoch()]
	if !ok {
		return ""
	}
	data, err := inc.ReadAll()
	if err != nil {
		r.logger.Warn().Err(err).Str("op", "error log").Str("date", date.URLForm()).
			Msg("error log unavailable")
		return ""
	}
	return r.codec.Decode(string(data))
}

// Prune removes increments older than days days using the engine. It holds
// the repository write lock for the duration.
func (r *Repository) Prune(ctx context.Context, days int) error {
	l := r.locks.For(r.root)
	l.Lock()
	defer l.Unlock()

	r.logger.Info().Str("op", "prune").Int("days", days).Msg("removing old increments")
	if err := r.engine.Prune(ctx, r.root, days); err != nil {
		r.logger.Error().Err(err).Str("op", "prune").Msg("prune failed")
		return err
	}
	return nil
}

// Delete removes the repository from disk once live restores have finished.
func (r *Repository) Delete() error {
	l := r.locks.For(r.root)
	l.Lock()
	defer l.Unlock()

	r.logger.Info().Str("op", "delete").Msg("deleting repository")
	if err := os.RemoveAll(r.root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return E(DoesNotExist, "delete repository", r.root, err)
		}
		return E(IOUnavailable, "delete repository", r.root, err)
	}
	return nil
}

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// RootName is the archive and display name used for a repository root.
const RootName = "root"

// PathView is a validated path inside a repository.
type PathView struct {
	repo   *Repository
	path   string
	exists bool
	isDir  bool

	listOnce sync.Once
	entries  []*DirEntry
	listErr  error
}

// DirEntry describes one child of a directory: present in the mirror, known
// only through increments, or both.
type DirEntry struct {
	// Name is the quoted on-disk name.
	Name string
	// Path is the quoted path relative to the repository root.
	Path        string
	DisplayName string
	IsDir       bool
	Size        int64
	// Exists is true when the entry is present in the current mirror.
	Exists      bool
	ChangeDates []Time

	increments []*Increment
}

// LastChangeDate returns the newest change date.
func (e *DirEntry) LastChangeDate() (Time, bool) {
	if len(e.ChangeDates) == 0 {
		return Time{}, false
	}
	return e.ChangeDates[len(e.ChangeDates)-1], true
}

// FirstChangeDate returns the oldest change date.
func (e *DirEntry) FirstChangeDate() (Time, bool) {
	if len(e.ChangeDates) == 0 {
		return Time{}, false
	}
	return e.ChangeDates[0], true
}

// Increments returns the increment files describing the entry.
func (e *DirEntry) Increments() []*Increment { return e.increments }

// cleanRelative normalizes a quoted relative path; ".." components are refused.
func cleanRelative(p string) (string, bool) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", true
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", false
		}
	}
	p = path.Clean(p)
	if p == "." {
		return "", true
	}
	return p, true
}

// PathView validates a quoted relative path and returns its view.
func (r *Repository) PathView(p string) (*PathView, error) {
	const op = "path view"
	clean, ok := cleanRelative(p)
	if !ok {
		return nil, E(AccessDenied, op, p, errors.New("path traversal"))
	}
	if clean == DataDir || strings.HasPrefix(clean, DataDir+"/") {
		return nil, E(AccessDenied, op, clean, errors.New("metadata directory"))
	}

	v := &PathView{repo: r, path: clean}
	if clean == "" {
		v.exists, v.isDir = true, true
		return v, nil
	}

	// Walk upward by splitting; components are never resolved.
	for cur := clean; cur != "." && cur != ""; cur = path.Dir(cur) {
		fi, err := os.Lstat(filepath.Join(r.root, cur))
		if err != nil {
			continue
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return nil, E(AccessDenied, op, clean, errors.New("symbolic link in path"))
		}
	}

	if fi, err := os.Lstat(filepath.Join(r.root, clean)); err == nil {
		v.exists, v.isDir = true, fi.IsDir()
		return v, nil
	}

	parent, base := path.Dir(clean), path.Base(clean)
	if parent == "." {
		parent = ""
	}
	incDir := filepath.Join(r.root, DataDir, "increments", parent)
	dirents, err := os.ReadDir(incDir)
	if err != nil {
		return nil, E(DoesNotExist, op, clean, nil)
	}
	found := false
	for _, d := range dirents {
		if d.IsDir() && d.Name() == base {
			found, v.isDir = true, true
			continue
		}
		if inc, ok := ParseIncrement(incDir, d.Name()); ok && inc.Filename() == base {
			found = true
			if inc.IsDir() {
				v.isDir = true
			}
		}
	}
	if !found {
		return nil, E(DoesNotExist, op, clean, nil)
	}
	return v, nil
}

// Repository returns the owning repository.
func (v *PathView) Repository() *Repository { return v.repo }

// Path returns the quoted relative path, "" for the root.
func (v *PathView) Path() string { return v.path }

// IsRoot reports whether the view is the repository root.
func (v *PathView) IsRoot() bool { return v.path == "" }

// Exists reports whether the path is present in the current mirror.
func (v *PathView) Exists() bool { return v.exists }

// IsDir reports whether the path is a directory now or was one historically.
func (v *PathView) IsDir() bool { return v.isDir }

// FullPath returns the absolute on-disk path in the mirror.
func (v *PathView) FullPath() string {
	return filepath.Join(v.repo.root, v.path)
}

// Name returns the quoted base name, or RootName for the root.
func (v *PathView) Name() string {
	if v.IsRoot() {
		return RootName
	}
	return path.Base(v.path)
}

// DisplayName returns the decoded base name.
func (v *PathView) DisplayName() string {
	if v.IsRoot() {
		return v.repo.DisplayName()
	}
	return v.repo.DisplayPath(path.Base(v.path))
}

// Entries lists the directory: live entries plus entries only known through
// increments, directories first then by case-insensitive display name.
func (v *PathView) Entries() ([]*DirEntry, error) {
	v.listOnce.Do(func() {
		l := v.repo.locks.For(v.repo.root)
		l.RLock()
		defer l.RUnlock()
		v.entries, v.listErr = v.list()
	})
	return v.entries, v.listErr
}

func (v *PathView) list() ([]*DirEntry, error) {
	r := v.repo
	byName := make(map[string]*DirEntry)
	var order []*DirEntry

	add := func(name string) *DirEntry {
		if e, ok := byName[name]; ok {
			return e
		}
		e := &DirEntry{Name: name, Path: path.Join(v.path, name), DisplayName: r.DisplayPath(name)}
		byName[name] = e
		order = append(order, e)
		return e
	}

	if v.exists && v.isDir {
		dirents, err := os.ReadDir(v.FullPath())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, E(IOUnavailable, "list directory", v.path, err)
		}
		for _, d := range dirents {
			if v.IsRoot() && d.Name() == DataDir {
				continue
			}
			e := add(d.Name())
			e.Exists = true
			if info, err := d.Info(); err == nil {
				e.IsDir = info.IsDir()
				if !e.IsDir {
					e.Size = info.Size()
				}
			}
		}
	}

	incDir := filepath.Join(r.root, DataDir, "increments", v.path)
	dirents, err := os.ReadDir(incDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn().Err(err).Str("op", "list increments").Str("path", v.path).Msg("increments unavailable")
	}
	for _, d := range dirents {
		if d.IsDir() {
			e := add(d.Name())
			if !e.Exists {
				e.IsDir = true
			}
			continue
		}
		inc, ok := ParseIncrement(incDir, d.Name())
		if !ok {
			continue
		}
		if _, dated := inc.Date(); !dated {
			continue
		}
		e := add(inc.Filename())
		e.increments = append(e.increments, inc)
		if !e.Exists && inc.IsDir() {
			e.IsDir = true
		}
	}

	for _, e := range order {
		e.ChangeDates = v.changeDates(e)
		if !e.Exists && !e.IsDir {
			e.Size = v.historicSize(e)
		}
	}
	SortEntries(order)
	return order, nil
}

// changeDates derives the dates at which the entry differed from the
// adjacent backup.
func (v *PathView) changeDates(e *DirEntry) []Time {
	r := v.repo
	set := make(map[int64]Time)
	var newest *Increment
	var newestDate Time
	for _, inc := range e.increments {
		d, _ := inc.Date()
		if newest == nil || d.After(newestDate) {
			newest, newestDate = inc, d
		}
		if inc.IsMissing() {
			if after, ok := r.FirstBackupAfter(d); ok {
				set[after.Epoch()] = after
			}
			continue
		}
		set[d.Epoch()] = d
	}

	if e.Exists {
		if last, ok := r.LastBackupDate(); ok {
			set[last.Epoch()] = last
		}
	} else if newest != nil && !newest.IsMissing() {
		// Gone from the mirror: the backup after the newest increment removed it.
		if after, ok := r.FirstBackupAfter(newestDate); ok {
			set[after.Epoch()] = after
		}
	}

	out := make([]Time, 0, len(set))
	for _, t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// historicSize resolves the size of a deleted file from the file statistics
// of the session that last held it.
func (v *PathView) historicSize(e *DirEntry) int64 {
	var last Time
	found := false
	for _, inc := range e.increments {
		if inc.IsMissing() {
			continue
		}
		if d, _ := inc.Date(); !found || d.After(last) {
			last, found = d, true
		}
	}
	if !found {
		return 0
	}
	stats := v.repo.FileStatistics(last)
	if stats == nil {
		return 0
	}
	return stats.Lookup(e.Path).SourceSize
}

// SortEntries orders directories first, then by case-insensitive display name.
func SortEntries(entries []*DirEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		la, lb := strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
}

// Entry returns this path's entry in its parent listing.
func (v *PathView) Entry() (*DirEntry, error) {
	if v.IsRoot() {
		return &DirEntry{
			Name:        RootName,
			DisplayName: v.repo.DisplayName(),
			IsDir:       true,
			Exists:      true,
			ChangeDates: v.repo.BackupDates(),
		}, nil
	}
	parent, err := v.repo.PathView(path.Dir(v.path))
	if err != nil {
		return nil, err
	}
	entries, err := parent.Entries()
	if err != nil {
		return nil, err
	}
	base := path.Base(v.path)
	for _, e := range entries {
		if e.Name == base {
			return e, nil
		}
	}
	return nil, E(DoesNotExist, "path entry", v.path, nil)
}

// RestoreDates returns the backup dates at which the path can be restored.
func (v *PathView) RestoreDates() ([]Time, error) {
	dates := v.repo.BackupDates()
	if v.IsRoot() {
		return dates, nil
	}
	e, err := v.Entry()
	if err != nil {
		return nil, err
	}
	first, ok := e.FirstChangeDate()
	if !ok {
		return nil, nil
	}
	last, _ := e.LastChangeDate()

	var out []Time
	for _, d := range dates {
		if d.Before(first) {
			continue
		}
		if !e.Exists && d.After(last) {
			break
		}
		out = append(out, d)
	}
	return out, nil
}

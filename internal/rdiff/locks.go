// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package rdiff

import (
	"path/filepath"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// LockTable hands out one RWMutex per repository root.
type LockTable struct {
	locks  *xsync.MapOf[string, *sync.RWMutex]
	active *xsync.MapOf[string, int]
}

// NewLockTable returns an empty table.
func NewLockTable() *LockTable {
	return &LockTable{
		locks:  xsync.NewMapOf[string, *sync.RWMutex](),
		active: xsync.NewMapOf[string, int](),
	}
}

// DefaultLocks is the process-wide table used when none is configured.
var DefaultLocks = NewLockTable()

// For returns the lock of the repository at root.
func (t *LockTable) For(root string) *sync.RWMutex {
	l, _ := t.locks.LoadOrCompute(filepath.Clean(root), func() *sync.RWMutex {
		return &sync.RWMutex{}
	})
	return l
}

// BeginRestore takes the read lock of root and counts a live restore.
// The returned func releases both.
func (t *LockTable) BeginRestore(root string) func() {
	root = filepath.Clean(root)
	l := t.For(root)
	l.RLock()
	t.active.Compute(root, func(n int, _ bool) (int, bool) { return n + 1, false })

	var once sync.Once
	return func() {
		once.Do(func() {
			t.active.Compute(root, func(n int, _ bool) (int, bool) { return n - 1, n <= 1 })
			l.RUnlock()
		})
	}
}

// ActiveRestores returns the number of live restores of root.
func (t *LockTable) ActiveRestores(root string) int {
	n, _ := t.active.Load(filepath.Clean(root))
	return n
}

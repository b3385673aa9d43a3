// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package access

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/metrics"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

// DiscoveryResult is the outcome of reconciling one user's repositories.
type DiscoveryResult struct {
	Username string
	Found    []string
	Added    []string
	Removed  []string
	Repos    []string
}

// Changed reports whether the catalogue was updated.
func (r DiscoveryResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// FindRepositories walks home up to depth levels and returns the slash
// paths, relative to home, of directories containing rdiff-backup-data.
// Symlinks are never followed and repositories are not searched for
// nested ones. A home that is itself a repository is not reported.
func FindRepositories(ctx context.Context, home string, depth int) ([]string, error) {
	home = filepath.Clean(home)
	var found []string
	err := filepath.WalkDir(home, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == home {
				return err
			}
			// Unreadable subtrees are skipped.
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(home, p)
		level := 0
		if rel != "." {
			level = len(strings.Split(rel, string(filepath.Separator)))
		}
		if d.Name() == rdiff.DataDir && level > 0 {
			return fs.SkipDir
		}
		if fi, err := os.Lstat(filepath.Join(p, rdiff.DataDir)); err == nil && fi.IsDir() && level > 0 {
			found = append(found, filepath.ToSlash(rel))
			return fs.SkipDir
		}
		if level >= depth {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

// reconcile merges discovered names into the existing list: existing
// entries stay, new ones are added, duplicates and repositories nested in
// another listed repository are dropped.
func reconcile(existing, found []string) []string {
	all := make([]string, 0, len(existing)+len(found))
	for _, n := range existing {
		all = append(all, strings.Trim(n, "/"))
	}
	for _, n := range found {
		all = append(all, strings.Trim(n, "/"))
	}
	sort.Strings(all)

	var kept []string
	for _, n := range all {
		if n == "" {
			continue
		}
		nested := false
		for _, k := range kept {
			if n == k || strings.HasPrefix(n, k+"/") {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, n)
		}
	}
	return kept
}

func (f *Facade) userLock(username string) *sync.Mutex {
	mu, _ := f.userLocks.LoadOrCompute(username, func() *sync.Mutex { return &sync.Mutex{} })
	return mu
}

// Discover walks the user's home and updates the user's repository list.
// Concurrent discoveries of the same user are serialized.
func (f *Facade) Discover(ctx context.Context, username string) (DiscoveryResult, error) {
	mu := f.userLock(username)
	mu.Lock()
	defer mu.Unlock()

	res := DiscoveryResult{Username: username}
	u, err := f.cat.User(ctx, username)
	if err != nil {
		return res, err
	}
	if u.Home == "" {
		return res, fmt.Errorf("user %s has no home directory", username)
	}
	found, err := FindRepositories(ctx, u.Home, f.cfg.DiscoveryDepth)
	if err != nil {
		return res, fmt.Errorf("discover repositories of %s: %w", username, err)
	}
	res.Found = found

	existing := make([]string, 0, len(u.Repos))
	for _, r := range u.Repos {
		existing = append(existing, r.Name)
	}
	res.Repos = reconcile(existing, found)
	res.Added, res.Removed = diff(existing, res.Repos)
	if !res.Changed() {
		return res, nil
	}
	if err := f.cat.SetRepos(ctx, username, res.Repos); err != nil {
		return res, err
	}
	f.logger.Info().
		Str("op", "discover").
		Str("username", username).
		Strs("added", res.Added).
		Strs("removed", res.Removed).
		Msg("repository list updated")
	return res, nil
}

// DiscoverAll runs Discover for every user. A failure for one user does not
// stop the others; all failures are returned together.
func (f *Facade) DiscoverAll(ctx context.Context) ([]DiscoveryResult, error) {
	users, err := f.cat.Users(ctx)
	if err != nil {
		return nil, err
	}
	var (
		results []DiscoveryResult
		errs    *multierror.Error
		total   int
	)
	for _, u := range users {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := f.Discover(ctx, u.Username)
		if err != nil {
			if errors.Is(err, catalogue.ErrUserNotFound) {
				continue
			}
			f.logger.Warn().Err(err).Str("op", "discover").Str("username", u.Username).Msg("discovery failed")
			errs = multierror.Append(errs, err)
			total += len(u.Repos)
			continue
		}
		total += len(res.Repos)
		results = append(results, res)
	}
	metrics.DiscoveredRepos.Set(float64(total))
	return results, errs.ErrorOrNil()
}

func diff(before, after []string) (added, removed []string) {
	b := make(map[string]bool, len(before))
	for _, n := range before {
		b[strings.Trim(n, "/")] = true
	}
	a := make(map[string]bool, len(after))
	for _, n := range after {
		a[n] = true
		if !b[n] {
			added = append(added, n)
		}
	}
	for _, n := range before {
		n = strings.Trim(n, "/")
		if !a[n] {
			removed = append(removed, n)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

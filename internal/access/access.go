// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package access maps a user and a path to the repository and path view the
// user is allowed to see, and discovers repositories below home directories.
package access

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

// DefaultDiscoveryDepth is how deep below a home directory discovery looks.
const DefaultDiscoveryDepth = 3

// Catalogue is the part of the catalogue the facade needs.
type Catalogue interface {
	Users(ctx context.Context) ([]*catalogue.User, error)
	User(ctx context.Context, name string) (*catalogue.User, error)
	SetRepos(ctx context.Context, name string, repos []string) error
}

// Config configures a Facade.
type Config struct {
	DefaultEncoding string
	DiscoveryDepth  int
	Engine          *rdiff.Engine
	Locks           *rdiff.LockTable
}

// Facade resolves user paths and discovers repositories.
type Facade struct {
	cat       Catalogue
	cfg       Config
	userLocks *xsync.MapOf[string, *sync.Mutex]
	logger    zerolog.Logger
}

// New returns a Facade over cat.
func New(cat Catalogue, cfg Config) *Facade {
	if cfg.DiscoveryDepth <= 0 {
		cfg.DiscoveryDepth = DefaultDiscoveryDepth
	}
	if cfg.DefaultEncoding == "" {
		cfg.DefaultEncoding = rdiff.DefaultEncoding
	}
	if cfg.Locks == nil {
		cfg.Locks = rdiff.DefaultLocks
	}
	if cfg.Engine == nil {
		cfg.Engine = rdiff.NewEngine()
	}
	return &Facade{
		cat:       cat,
		cfg:       cfg,
		userLocks: xsync.NewMapOf[string, *sync.Mutex](),
		logger:    logging.WithComponent("access"),
	}
}

// Catalogue returns the underlying catalogue.
func (f *Facade) Catalogue() Catalogue { return f.cat }

// Users lists every user in the catalogue.
func (f *Facade) Users(ctx context.Context) ([]*catalogue.User, error) { return f.cat.Users(ctx) }

// User loads a user; unknown users are reported as AccessDenied.
func (f *Facade) User(ctx context.Context, username string) (*catalogue.User, error) {
	u, err := f.cat.User(ctx, username)
	if errors.Is(err, catalogue.ErrUserNotFound) {
		return nil, rdiff.E(rdiff.AccessDenied, "resolve user", "", err)
	}
	return u, err
}

// OpenRepo opens one of u's repositories with its catalogue settings.
func (f *Facade) OpenRepo(u *catalogue.User, ref catalogue.RepoRef) (*rdiff.Repository, error) {
	return rdiff.Open(filepath.Join(u.Home, filepath.FromSlash(ref.Name)), rdiff.Options{
		DefaultEncoding: f.cfg.DefaultEncoding,
		Encoding:        ref.Encoding,
		DisplayName:     ref.Name,
		Locks:           f.cfg.Locks,
		Engine:          f.cfg.Engine,
	})
}

// Resolve maps p, a path relative to the user's home, to a repository and a
// view inside it. p must lie inside one of the user's repositories.
func (f *Facade) Resolve(ctx context.Context, username, p string) (*rdiff.Repository, *rdiff.PathView, error) {
	const op = "resolve path"
	u, err := f.User(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	for _, c := range strings.Split(filepath.ToSlash(p), "/") {
		if c == ".." {
			return nil, nil, rdiff.E(rdiff.AccessDenied, op, p, errors.New("path traversal"))
		}
	}
	rel := strings.TrimLeft(path.Clean("/"+filepath.ToSlash(p)), "/")
	ref, ok := matchRepo(u.Repos, rel)
	if !ok {
		return nil, nil, rdiff.E(rdiff.AccessDenied, op, rel, errors.New("not one of the user's repositories"))
	}

	repoRoot := filepath.Join(u.Home, filepath.FromSlash(ref.Name))
	realRoot, err := realpath(repoRoot)
	if err != nil {
		return nil, nil, rdiff.E(rdiff.DoesNotExist, op, ref.Name, err)
	}
	realFull, err := realpath(filepath.Join(u.Home, filepath.FromSlash(rel)))
	if err != nil {
		return nil, nil, rdiff.E(rdiff.IOUnavailable, op, rel, err)
	}
	if realFull != realRoot && !strings.HasPrefix(realFull, realRoot+string(filepath.Separator)) {
		return nil, nil, rdiff.E(rdiff.AccessDenied, op, rel, errors.New("path escapes its repository"))
	}

	repo, err := f.OpenRepo(u, ref)
	if err != nil {
		return nil, nil, err
	}
	inner := strings.TrimPrefix(strings.TrimPrefix(rel, ref.Name), "/")
	view, err := repo.PathView(inner)
	if err != nil {
		return repo, nil, err
	}
	return repo, view, nil
}

// matchRepo returns the repository whose name prefixes rel on a separator
// boundary; the longest name wins.
func matchRepo(repos []catalogue.RepoRef, rel string) (catalogue.RepoRef, bool) {
	var best catalogue.RepoRef
	found := false
	candidate := rel + "/"
	for _, r := range repos {
		name := strings.Trim(r.Name, "/")
		if name == "" || !strings.HasPrefix(candidate, name+"/") {
			continue
		}
		if !found || len(name) > len(best.Name) {
			best, found = r, true
			best.Name = name
		}
	}
	return best, found
}

// realpath resolves symlinks in p. Components that do not exist yet are
// appended to the resolved form of the longest existing prefix.
func realpath(p string) (string, error) {
	p = filepath.Clean(p)
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		rest = append(rest, filepath.Base(p))
		p = parent
	}
}

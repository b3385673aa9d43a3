// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package catalogue stores users, their repository lists and per-repository
// settings in BadgerDB. Each user is one JSON record under "user:<name>";
// every mutation rewrites that record inside a single transaction.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/rdiffgate/internal/events"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/validation"
)

const userKeyPrefix = "user:"

var (
	// ErrUserNotFound is returned for unknown user names.
	ErrUserNotFound = errors.New("user not found")
	// ErrRepoNotFound is returned when a user has no such repository.
	ErrRepoNotFound = errors.New("repository not found")
	// ErrUserExists is returned by AddUser for a taken name.
	ErrUserExists = errors.New("user already exists")
)

// RepoRef is one repository of a user. Name is the repository path
// relative to the user's home directory.
type RepoRef struct {
	Name     string `json:"name" validate:"required,relpath"`
	Encoding string `json:"encoding,omitempty" validate:"omitempty,encoding"`
	MaxAge   int    `json:"maxage" validate:"gte=0"`
	KeepDays int    `json:"keepdays" validate:"gte=0"`
}

// User is a catalogue record.
type User struct {
	Username     string    `json:"username" validate:"username"`
	Email        string    `json:"email,omitempty" validate:"omitempty,email"`
	Home         string    `json:"home" validate:"required"`
	Admin        bool      `json:"admin,omitempty"`
	Repos        []RepoRef `json:"repos" validate:"dive"`
	PasswordHash []byte    `json:"password_hash,omitempty"`
}

// Repo returns the repository named name.
func (u *User) Repo(name string) (RepoRef, bool) {
	name = strings.Trim(name, "/")
	for _, r := range u.Repos {
		if r.Name == name {
			return r, true
		}
	}
	return RepoRef{}, false
}

// RepoAttrs is a partial update of a repository's settings; nil fields are
// left unchanged.
type RepoAttrs struct {
	Encoding *string `json:"encoding,omitempty" validate:"omitempty"`
	MaxAge   *int    `json:"maxage,omitempty" validate:"omitempty,gte=0"`
	KeepDays *int    `json:"keepdays,omitempty" validate:"omitempty,gte=0"`
}

// Config selects where the catalogue lives.
type Config struct {
	Path     string
	InMemory bool
}

// Store is the catalogue.
type Store struct {
	db     *badger.DB
	owned  bool
	events events.Publisher
	logger zerolog.Logger
}

// Open opens (or creates) the catalogue described by cfg.
func Open(cfg Config, pub events.Publisher) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	s := New(db, pub)
	s.owned = true
	return s, nil
}

// New wraps an already open database. pub may be nil.
func New(db *badger.DB, pub events.Publisher) *Store {
	return &Store{db: db, events: pub, logger: logging.WithComponent("catalogue")}
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func userKey(name string) []byte { return []byte(userKeyPrefix + name) }

func getUser(txn *badger.Txn, name string) (*User, error) {
	item, err := txn.Get(userKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	var u User
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &u)
	}); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", name, err)
	}
	return &u, nil
}

func putUser(txn *badger.Txn, u *User) error {
	if verr := validation.ValidateStruct(u); verr != nil {
		return verr
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return txn.Set(userKey(u.Username), data)
}

// update applies fn to the stored record of name and writes it back.
func (s *Store) update(name string, fn func(u *User) error) (*User, error) {
	var out *User
	err := s.db.Update(func(txn *badger.Txn) error {
		u, err := getUser(txn, name)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		out = u
		return putUser(txn, u)
	})
	return out, err
}

// Users returns every user ordered by name.
func (s *Store) Users(_ context.Context) ([]*User, error) {
	var users []*User
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var u User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &u)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			users = append(users, &u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// User returns one user.
func (s *Store) User(_ context.Context, name string) (*User, error) {
	var u *User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = getUser(txn, name)
		return err
	})
	return u, err
}

// AddUser inserts a new user; the name must be free.
func (s *Store) AddUser(_ context.Context, u *User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(u.Username)); err == nil {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Username)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get user: %w", err)
		}
		return putUser(txn, normalize(u))
	})
}

// PutUser inserts or replaces a user record.
func (s *Store) PutUser(_ context.Context, u *User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putUser(txn, normalize(u))
	})
}

// DeleteUser removes a user. Deleting an unknown user is not an error.
func (s *Store) DeleteUser(_ context.Context, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(userKey(name)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

// SetRepos replaces the user's repository list, keeping the settings of
// repositories that stay.
func (s *Store) SetRepos(_ context.Context, name string, repos []string) error {
	_, err := s.update(name, func(u *User) error {
		old := make(map[string]RepoRef, len(u.Repos))
		for _, r := range u.Repos {
			old[r.Name] = r
		}
		next := make([]RepoRef, 0, len(repos))
		seen := make(map[string]bool, len(repos))
		for _, r := range repos {
			r = strings.Trim(r, "/")
			if seen[r] {
				continue
			}
			seen[r] = true
			if ref, ok := old[r]; ok {
				next = append(next, ref)
				continue
			}
			next = append(next, RepoRef{Name: r})
		}
		sortRepos(next)
		u.Repos = next
		return nil
	})
	return err
}

// SetRepoAttrs updates the settings of one repository. An empty encoding
// resets the repository to the default encoding.
func (s *Store) SetRepoAttrs(_ context.Context, name, repo string, attrs RepoAttrs) (RepoRef, error) {
	if verr := validation.ValidateStruct(&attrs); verr != nil {
		return RepoRef{}, verr
	}
	if attrs.Encoding != nil && *attrs.Encoding != "" && !validation.ValidEncoding(*attrs.Encoding) {
		return RepoRef{}, fmt.Errorf("unknown encoding %q", *attrs.Encoding)
	}
	repo = strings.Trim(repo, "/")
	var out RepoRef
	_, err := s.update(name, func(u *User) error {
		for i := range u.Repos {
			r := &u.Repos[i]
			if r.Name != repo {
				continue
			}
			if attrs.Encoding != nil {
				r.Encoding = *attrs.Encoding
			}
			if attrs.MaxAge != nil {
				r.MaxAge = *attrs.MaxAge
			}
			if attrs.KeepDays != nil {
				r.KeepDays = *attrs.KeepDays
			}
			out = *r
			return nil
		}
		return fmt.Errorf("%w: %s", ErrRepoNotFound, repo)
	})
	return out, err
}

// SetEmail changes the user's address and publishes EmailChanged when it
// actually changed.
func (s *Store) SetEmail(ctx context.Context, name, email string) error {
	var old string
	u, err := s.update(name, func(u *User) error {
		old = u.Email
		u.Email = strings.TrimSpace(email)
		return nil
	})
	if err != nil {
		return err
	}
	if old == u.Email {
		return nil
	}
	s.publish(ctx, events.AccountEvent{
		Type:     events.EmailChanged,
		Username: u.Username,
		Email:    u.Email,
		OldEmail: old,
	})
	return nil
}

// SetPassword stores a bcrypt hash of password and publishes
// PasswordChanged.
func (s *Store) SetPassword(ctx context.Context, name, password string) error {
	if password == "" {
		return errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u, err := s.update(name, func(u *User) error {
		u.PasswordHash = hash
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.AccountEvent{
		Type:     events.PasswordChanged,
		Username: u.Username,
		Email:    u.Email,
	})
	return nil
}

// CheckPassword reports whether password matches the stored hash. Users
// without a password never match.
func (s *Store) CheckPassword(ctx context.Context, name, password string) (bool, error) {
	u, err := s.User(ctx, name)
	if err != nil {
		return false, err
	}
	if len(u.PasswordHash) == 0 {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) publish(ctx context.Context, ev events.AccountEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishAccount(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("username", ev.Username).Str("type", string(ev.Type)).Msg("account event not published")
	}
}

func normalize(u *User) *User {
	c := *u
	c.Repos = make([]RepoRef, len(u.Repos))
	for i, r := range u.Repos {
		r.Name = strings.Trim(r.Name, "/")
		c.Repos[i] = r
	}
	sortRepos(c.Repos)
	return &c
}

func sortRepos(repos []RepoRef) {
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
}

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package jobs

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rdiffgate/internal/access"
	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/metrics"
	"github.com/tomtom215/rdiffgate/internal/notify"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

// Job names.
const (
	NamePrune    = "prune"
	NameNotify   = "notify"
	NameDiscover = "discover"
)

// Source lists users and opens their repositories.
type Source interface {
	Users(ctx context.Context) ([]*catalogue.User, error)
	OpenRepo(u *catalogue.User, ref catalogue.RepoRef) (*rdiff.Repository, error)
}

// Mailer sends the staleness notice.
type Mailer interface {
	NotifyStale(ctx context.Context, u *catalogue.User, stale []notify.StaleRepo) error
}

// eachRepo calls fn for every repository of every user, isolating panics
// and collecting errors so one repository never stops the batch.
func eachRepo(ctx context.Context, src Source, logger zerolog.Logger, op string,
	want func(catalogue.RepoRef) bool,
	fn func(ctx context.Context, u *catalogue.User, ref catalogue.RepoRef, repo *rdiff.Repository) error,
) error {
	users, err := src.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var errs *multierror.Error
	for _, u := range users {
		for _, ref := range u.Repos {
			if ctx.Err() != nil {
				return multierror.Append(errs, ctx.Err())
			}
			if !want(ref) {
				continue
			}
			if err := runUnit(ctx, src, u, ref, fn); err != nil {
				logger.Error().Err(err).Str("op", op).Str("username", u.Username).Str("repo", ref.Name).Msg("repository failed")
				errs = multierror.Append(errs, fmt.Errorf("%s/%s: %w", u.Username, ref.Name, err))
			}
		}
	}
	return errs.ErrorOrNil()
}

func runUnit(ctx context.Context, src Source, u *catalogue.User, ref catalogue.RepoRef,
	fn func(ctx context.Context, u *catalogue.User, ref catalogue.RepoRef, repo *rdiff.Repository) error,
) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	repo, err := src.OpenRepo(u, ref)
	if err != nil {
		return err
	}
	return fn(ctx, u, ref, repo)
}

// daysSince returns whole days between t and now, never negative.
func daysSince(t rdiff.Time, now time.Time) int {
	d := math.Floor(now.Sub(t.Std()).Hours() / 24)
	if d < 0 {
		return 0
	}
	return int(d)
}

// Pruner removes increments older than each repository's keepdays,
// counted from its last backup.
type Pruner struct {
	src    Source
	now    func() time.Time
	logger zerolog.Logger
}

// NewPruner returns a Pruner.
func NewPruner(src Source) *Pruner {
	return &Pruner{src: src, now: time.Now, logger: logging.WithComponent("prune")}
}

// Name implements Job.
func (p *Pruner) Name() string { return NamePrune }

// Run implements Job.
func (p *Pruner) Run(ctx context.Context) error {
	return eachRepo(ctx, p.src, p.logger, NamePrune,
		func(ref catalogue.RepoRef) bool { return ref.KeepDays > 0 },
		func(ctx context.Context, _ *catalogue.User, ref catalogue.RepoRef, repo *rdiff.Repository) error {
			last, ok := repo.LastBackupDate()
			if !ok {
				p.logger.Debug().Str("repo", repo.Root()).Msg("no backups, nothing to prune")
				return nil
			}
			days := daysSince(last, p.now()) + ref.KeepDays
			p.logger.Info().Str("repo", repo.Root()).Str("op", NamePrune).Int("days", days).Msg("removing old increments")
			err := repo.Prune(ctx, days)
			metrics.RecordPrune(err)
			return err
		})
}

// Staleness mails each user the repositories whose last backup is older
// than their maxage.
type Staleness struct {
	src    Source
	mailer Mailer
	now    func() time.Time
	logger zerolog.Logger
}

// NewStaleness returns a Staleness job.
func NewStaleness(src Source, mailer Mailer) *Staleness {
	return &Staleness{src: src, mailer: mailer, now: time.Now, logger: logging.WithComponent("notify-job")}
}

// Name implements Job.
func (s *Staleness) Name() string { return NameNotify }

// StaleRepos returns u's repositories that missed their maxage.
// Repositories that cannot be opened are reported in the error and skipped.
func (s *Staleness) StaleRepos(ctx context.Context, u *catalogue.User) ([]notify.StaleRepo, error) {
	var (
		stale []notify.StaleRepo
		errs  *multierror.Error
	)
	now := s.now()
	for _, ref := range u.Repos {
		if ref.MaxAge <= 0 {
			continue
		}
		if ctx.Err() != nil {
			return stale, ctx.Err()
		}
		repo, err := s.src.OpenRepo(u, ref)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s/%s: %w", u.Username, ref.Name, err))
			continue
		}
		last, ok := repo.LastBackupDate()
		cutoff := now.Add(-time.Duration(ref.MaxAge) * 24 * time.Hour)
		if ok && !last.Std().Before(cutoff) {
			continue
		}
		stale = append(stale, notify.StaleRepo{Name: ref.Name, LastBackup: last, HasBackup: ok, MaxAge: ref.MaxAge})
	}
	return stale, errs.ErrorOrNil()
}

// Run implements Job.
func (s *Staleness) Run(ctx context.Context) error {
	users, err := s.src.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var errs *multierror.Error
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		stale, err := s.StaleRepos(ctx, u)
		if err != nil {
			s.logger.Warn().Err(err).Str("username", u.Username).Msg("some repositories could not be checked")
			errs = multierror.Append(errs, err)
		}
		if len(stale) == 0 {
			continue
		}
		s.logger.Info().Str("username", u.Username).Int("stale", len(stale)).Msg("sending staleness notice")
		if err := s.mailer.NotifyStale(ctx, u, stale); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Discovery re-runs repository discovery for every user.
type Discovery struct {
	facade *access.Facade
}

// NewDiscovery returns a Discovery job.
func NewDiscovery(f *access.Facade) *Discovery { return &Discovery{facade: f} }

// Name implements Job.
func (d *Discovery) Name() string { return NameDiscover }

// Run implements Job.
func (d *Discovery) Run(ctx context.Context) error {
	_, err := d.facade.DiscoverAll(ctx)
	return err
}

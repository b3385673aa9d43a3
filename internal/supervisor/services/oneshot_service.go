// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/rdiffgate/internal/logging"
)

// OnceRunner runs its work a single time; *jobs.Runner satisfies it.
type OnceRunner interface {
	RunOnce(ctx context.Context) error
	String() string
}

// StartupService runs a job once when the tree starts, for example the
// initial repository discovery. Job errors are logged by the runner and do
// not cause a restart.
type StartupService struct {
	runner OnceRunner
}

// NewStartupService returns the service.
func NewStartupService(r OnceRunner) *StartupService {
	return &StartupService{runner: r}
}

// Serve implements suture.Service.
func (s *StartupService) Serve(ctx context.Context) error {
	if err := s.runner.RunOnce(ctx); err != nil && ctx.Err() == nil {
		logger := logging.WithComponent("jobs")
		logger.Warn().Err(err).Str("job", s.runner.String()).Msg("startup run failed")
	}
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return suture.ErrDoNotRestart
}

func (s *StartupService) String() string { return fmt.Sprintf("startup-%s", s.runner) }

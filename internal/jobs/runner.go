// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package jobs runs the periodic background work: retention pruning, the
// staleness notifier and repository rediscovery.
//
// Each job is driven by a Runner, a suture service that sleeps until the
// trigger's next fire time, runs the job and reschedules. A job never runs
// concurrently with itself; if a run outlasts its next fire time the job
// runs again right after it finishes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/metrics"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// ErrAlreadyRunning is returned by RunOnce while the job is running.
var ErrAlreadyRunning = errors.New("job already running")

// Runner schedules a Job.
type Runner struct {
	job     Job
	trigger Trigger
	now     func() time.Time
	logger  zerolog.Logger

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
}

// NewRunner returns a Runner for job fired by trigger.
func NewRunner(job Job, trigger Trigger) *Runner {
	return &Runner{
		job:     job,
		trigger: trigger,
		now:     time.Now,
		logger:  logging.WithComponent("jobs").With().Str("job", job.Name()).Logger(),
	}
}

// String implements fmt.Stringer; suture uses it in its log events.
func (r *Runner) String() string { return "job-" + r.job.Name() }

// LastRun returns when the job last finished and its result.
func (r *Runner) LastRun() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun, r.lastErr
}

// Serve implements suture.Service. It returns when ctx is done; the
// shutdown signal is only observed between runs.
func (r *Runner) Serve(ctx context.Context) error {
	next := r.trigger.Next(r.now())
	r.logger.Info().Str("trigger", r.trigger.String()).Time("next", next).Msg("job scheduled")

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		// A run is not interrupted by shutdown.
		_ = r.RunOnce(context.WithoutCancel(ctx)) //nolint:errcheck // logged by RunOnce
		finished := r.now()

		next = r.trigger.Next(next)
		if next.Before(finished) {
			r.logger.Warn().Time("missed", next).Msg("job overran its schedule, running again")
			next = finished
		}
		timer.Reset(next.Sub(r.now()))
		r.logger.Debug().Time("next", next).Msg("job rescheduled")
	}
}

// RunOnce runs the job now unless it is already running.
func (r *Runner) RunOnce(ctx context.Context) (err error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	start := time.Now()
	ctx = logging.ContextWithNewCorrelationID(ctx)
	logger := r.logger.With().Str("correlation_id", logging.CorrelationIDFromContext(ctx)).Logger()
	logger.Info().Msg("job started")

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", r.job.Name(), p)
			logger.Error().Str("stack", string(debug.Stack())).Msg("job panicked")
		}
		elapsed := time.Since(start)
		metrics.RecordJobRun(r.job.Name(), elapsed, err)
		if err != nil {
			logger.Error().Err(err).Dur("elapsed", elapsed).Msg("job finished with errors")
		} else {
			logger.Info().Dur("elapsed", elapsed).Msg("job finished")
		}
		r.mu.Lock()
		r.running = false
		r.lastRun = r.now()
		r.lastErr = err
		r.mu.Unlock()
	}()

	return r.job.Run(ctx)
}

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package services

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/rdiffgate/internal/events"
	"github.com/tomtom215/rdiffgate/internal/logging"
)

// AccountConsumer handles account events until ctx is done.
// *notify.Notifier satisfies it.
type AccountConsumer interface {
	ConsumeAccountEvents(ctx context.Context, bus *events.Bus) error
}

// AccountNotifierService feeds account events from the bus to the notifier.
type AccountNotifierService struct {
	consumer AccountConsumer
	bus      *events.Bus
}

// NewAccountNotifierService returns the service.
func NewAccountNotifierService(consumer AccountConsumer, bus *events.Bus) *AccountNotifierService {
	return &AccountNotifierService{consumer: consumer, bus: bus}
}

// Serve implements suture.Service. A closed bus ends the service for good.
func (s *AccountNotifierService) Serve(ctx context.Context) error {
	err := s.consumer.ConsumeAccountEvents(ctx, s.bus)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, events.ErrClosed):
		logger := logging.WithComponent("events")
		logger.Info().Msg("event bus closed, account notifier stopping")
		return suture.ErrDoNotRestart
	case err == nil:
		return errors.New("account event subscription ended")
	default:
		return err
	}
}

func (s *AccountNotifierService) String() string { return "account-notifier" }

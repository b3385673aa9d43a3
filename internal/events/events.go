// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package events carries account events from the catalogue to the notifier
// over an in-process Watermill pub/sub.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// TopicAccount is the topic for account events.
const TopicAccount = "rdiffgate.account"

// Type identifies an account event.
type Type string

// Account event types.
const (
	EmailChanged    Type = "email_changed"
	PasswordChanged Type = "password_changed"
)

// AccountEvent is published when a user's email or password changes.
type AccountEvent struct {
	ID       string    `json:"id"`
	Type     Type      `json:"type"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	OldEmail string    `json:"old_email,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher publishes account events.
type Publisher interface {
	PublishAccount(ctx context.Context, ev AccountEvent) error
}

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// Bus is an in-process pub/sub for account events. Events published while
// nobody is subscribed are dropped.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
	closed atomic.Bool
}

// NewBus creates a Bus. A nil logger discards Watermill's own logging.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger),
		logger: logger,
	}
}

// PublishAccount marshals ev and publishes it on TopicAccount. ID and At are
// filled in when empty.
func (b *Bus) PublishAccount(ctx context.Context, ev AccountEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal account event: %w", err)
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("type", string(ev.Type))
	msg.SetContext(ctx)
	if b.closed.Load() {
		return ErrClosed
	}
	if err := b.pubsub.Publish(TopicAccount, msg); err != nil {
		return fmt.Errorf("publish account event: %w", err)
	}
	return nil
}

// Decode unmarshals an account event from msg.
func Decode(msg *message.Message) (AccountEvent, error) {
	var ev AccountEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode account event %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// ConsumeAccount subscribes to account events and calls handle for each one
// until ctx is done. Handler errors are logged and the message is acked
// anyway; account events are delivered at most once.
func (b *Bus) ConsumeAccount(ctx context.Context, handle func(context.Context, AccountEvent) error) error {
	if b.closed.Load() {
		return ErrClosed
	}
	msgs, err := b.pubsub.Subscribe(ctx, TopicAccount)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicAccount, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrClosed
			}
			ev, err := Decode(msg)
			if err != nil {
				b.logger.Error("dropping malformed account event", err, nil)
				msg.Ack()
				continue
			}
			if err := handle(ctx, ev); err != nil {
				b.logger.Error("account event handler failed", err, watermill.LogFields{
					"event_id": ev.ID,
					"type":     string(ev.Type),
					"username": ev.Username,
				})
			}
			msg.Ack()
		}
	}
}

// Close shuts the bus down; subscribers' channels are closed.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.pubsub.Close()
}

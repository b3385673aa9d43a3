// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

// Package notify renders and delivers user notifications: the daily list of
// stale repositories and account change notices.
//
// Messages are rendered from embedded HTML templates, converted to a plain
// text alternative and sent as multipart/alternative mail over SMTP (plain,
// STARTTLS or implicit TLS) or dropped into a maildir when no SMTP host is
// configured. Sends go through a circuit breaker so an unreachable relay
// does not stall a whole batch.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/events"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/metrics"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

// Config configures a Notifier.
type Config struct {
	SMTP SMTPConfig

	// Maildir receives messages when SMTP.Host is empty.
	Maildir string

	From    string
	AppName string
	BaseURL string

	// SendEmailChanged enables the notice sent to a new address.
	SendEmailChanged bool
}

// StaleRepo is one entry of the staleness notice.
type StaleRepo struct {
	Name       string
	LastBackup rdiff.Time
	HasBackup  bool
	MaxAge     int
}

// Notifier renders and sends notifications.
type Notifier struct {
	cfg       Config
	from      *mail.Address
	renderer  *Renderer
	transport Transport
	breaker   *gobreaker.CircuitBreaker[struct{}]
	now       func() time.Time
	logger    zerolog.Logger
}

// ErrNoTransport is returned by New when neither SMTP nor a maildir is set.
var ErrNoTransport = errors.New("no SMTP host or maildir configured")

// New builds a Notifier from cfg.
func New(cfg Config) (*Notifier, error) {
	var transport Transport
	switch {
	case cfg.SMTP.Host != "":
		transport = NewSMTPTransport(cfg.SMTP)
	case cfg.Maildir != "":
		md, err := NewMaildirTransport(cfg.Maildir)
		if err != nil {
			return nil, err
		}
		transport = md
	default:
		return nil, ErrNoTransport
	}
	return NewWithTransport(cfg, transport)
}

// NewWithTransport builds a Notifier that delivers through transport.
func NewWithTransport(cfg Config, transport Transport) (*Notifier, error) {
	if cfg.AppName == "" {
		cfg.AppName = "Rdiffgate"
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}
	if from.Name == "" {
		from.Name = cfg.AppName
	}
	n := &Notifier{
		cfg:       cfg,
		from:      from,
		transport: transport,
		now:       time.Now,
		logger:    logging.WithComponent("notify").With().Str("transport", transport.String()).Logger(),
	}
	if n.renderer, err = NewRenderer(func() time.Time { return n.now() }); err != nil {
		return nil, err
	}
	n.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			n.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("mail circuit breaker state transition")
			metrics.SMTPCircuitState.Set(float64(to))
		},
	})
	return n, nil
}

// SetClock replaces the clock used for message dates and relative ages.
func (n *Notifier) SetClock(now func() time.Time) { n.now = now }

// NotifyStale sends u the list of repositories without a recent backup.
func (n *Notifier) NotifyStale(ctx context.Context, u *catalogue.User, stale []StaleRepo) error {
	if len(stale) == 0 {
		return nil
	}
	return n.send(ctx, TemplateStale, u.Email, map[string]any{
		"App":     n.cfg.AppName,
		"BaseURL": n.cfg.BaseURL,
		"User":    u,
		"Repos":   stale,
	})
}

// HandleAccountEvent sends the notice for an account event.
func (n *Notifier) HandleAccountEvent(ctx context.Context, ev events.AccountEvent) error {
	data := map[string]any{
		"App":      n.cfg.AppName,
		"BaseURL":  n.cfg.BaseURL,
		"User":     &catalogue.User{Username: ev.Username, Email: ev.Email},
		"Email":    ev.Email,
		"OldEmail": ev.OldEmail,
		"When":     ev.At,
	}
	switch ev.Type {
	case events.EmailChanged:
		if !n.cfg.SendEmailChanged {
			return nil
		}
		return n.send(ctx, TemplateEmailChanged, ev.Email, data)
	case events.PasswordChanged:
		return n.send(ctx, TemplatePasswordChanged, ev.Email, data)
	}
	return fmt.Errorf("unknown account event type %q", ev.Type)
}

func (n *Notifier) send(ctx context.Context, tmpl, to string, data map[string]any) error {
	const op = "send notification"
	if to == "" {
		n.logger.Debug().Str("template", tmpl).Msg("recipient has no email address, skipping")
		return nil
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return rdiff.E(rdiff.MailDeliveryFailed, op, "", fmt.Errorf("invalid recipient: %w", err))
	}
	subject, htmlBody, textBody, err := n.renderer.Render(tmpl, data)
	if err != nil {
		return err
	}
	msg := &Message{
		From:     n.from,
		To:       rcpt,
		Subject:  subject,
		Text:     textBody,
		HTML:     htmlBody,
		Date:     n.now(),
		Template: tmpl,
	}
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}

	_, err = n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.transport.Send(ctx, n.from.Address, []string{rcpt.Address}, raw)
	})
	metrics.RecordNotification(tmpl, err)
	if err != nil {
		n.logger.Error().Err(err).Str("op", op).Str("template", tmpl).Str("to", rcpt.Address).Msg("notification not delivered")
		return rdiff.E(rdiff.MailDeliveryFailed, op, "", err)
	}
	n.logger.Info().Str("op", op).Str("template", tmpl).Str("to", rcpt.Address).Msg("notification delivered")
	return nil
}

// ConsumeAccountEvents sends notices for account events from bus until ctx
// is done.
func (n *Notifier) ConsumeAccountEvents(ctx context.Context, bus *events.Bus) error {
	return bus.ConsumeAccount(ctx, n.HandleAccountEvent)
}

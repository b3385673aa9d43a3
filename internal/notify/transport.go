// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-maildir"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Encryption modes for SMTP connections.
const (
	EncryptionNone     = "none"
	EncryptionStartTLS = "starttls"
	EncryptionSSL      = "ssl"
)

// Transport delivers composed messages.
type Transport interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
	String() string
}

// SMTPConfig configures SMTPTransport.
type SMTPConfig struct {
	Host               string
	Port               int
	Encryption         string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Addr returns host:port, defaulting the port from the encryption mode.
func (c SMTPConfig) Addr() string {
	port := c.Port
	if port == 0 {
		port = 25
		if c.Encryption == EncryptionSSL {
			port = 465
		}
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SMTPTransport sends mail through an SMTP server. Every Send opens and
// closes its own connection.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport returns an SMTPTransport.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Encryption == "" {
		cfg.Encryption = EncryptionNone
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) String() string { return "smtp://" + t.cfg.Addr() }

func (t *SMTPTransport) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         t.cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.cfg.InsecureSkipVerify, //nolint:gosec // G402: opt-in for self-signed relays
	}
}

func (t *SMTPTransport) dial() (*smtp.Client, error) {
	addr := t.cfg.Addr()
	switch t.cfg.Encryption {
	case EncryptionSSL:
		return smtp.DialTLS(addr, t.tlsConfig())
	case EncryptionStartTLS:
		return smtp.DialStartTLS(addr, t.tlsConfig())
	case EncryptionNone:
		return smtp.Dial(addr)
	}
	return nil, fmt.Errorf("unknown SMTP encryption %q", t.cfg.Encryption)
}

// Send delivers msg. The connection is closed whether or not sending
// succeeds.
func (t *SMTPTransport) Send(ctx context.Context, from string, to []string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := t.dial()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", t.cfg.Addr(), err)
	}
	defer c.Close() //nolint:errcheck // Quit already closed it on success

	c.CommandTimeout = t.cfg.Timeout
	c.SubmissionTimeout = t.cfg.Timeout

	if t.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}
	if err := c.SendMail(from, to, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return c.Quit()
}

// MaildirTransport drops messages into a local maildir instead of sending
// them.
type MaildirTransport struct {
	dir maildir.Dir
}

// NewMaildirTransport creates the maildir at path if needed.
func NewMaildirTransport(path string) (*MaildirTransport, error) {
	dir := maildir.Dir(path)
	if err := dir.Init(); err != nil {
		return nil, fmt.Errorf("init maildir %s: %w", path, err)
	}
	return &MaildirTransport{dir: dir}, nil
}

func (t *MaildirTransport) String() string { return "maildir://" + string(t.dir) }

// Send delivers msg into the maildir's new/ folder.
func (t *MaildirTransport) Send(_ context.Context, _ string, _ []string, msg []byte) error {
	d, err := maildir.NewDelivery(string(t.dir))
	if err != nil {
		return fmt.Errorf("maildir delivery: %w", err)
	}
	if _, err := d.Write(msg); err != nil {
		_ = d.Abort()
		return fmt.Errorf("maildir write: %w", err)
	}
	return d.Close()
}

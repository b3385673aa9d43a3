// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package main

import (
	"errors"
	"fmt"

	"github.com/tomtom215/rdiffgate/internal/access"
	"github.com/tomtom215/rdiffgate/internal/catalogue"
	"github.com/tomtom215/rdiffgate/internal/config"
	"github.com/tomtom215/rdiffgate/internal/events"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/notify"
	"github.com/tomtom215/rdiffgate/internal/rdiff"
	"github.com/tomtom215/rdiffgate/internal/restore"
)

// app holds the components shared by the subcommands.
type app struct {
	cfg    *config.Config
	bus    *events.Bus
	store  *catalogue.Store
	engine *rdiff.Engine
	facade *access.Facade
}

func newApp(cfg *config.Config) (*app, error) {
	bus := events.NewBus(logging.NewWatermillAdapter(logging.WithComponent("events")))
	store, err := catalogue.Open(catalogue.Config{
		Path:     cfg.Catalogue.Path,
		InMemory: cfg.Catalogue.InMemory,
	}, bus)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}

	engine := newEngine(cfg)
	return &app{
		cfg:    cfg,
		bus:    bus,
		store:  store,
		engine: engine,
		facade: access.New(store, access.Config{
			DefaultEncoding: cfg.Repos.DefaultEncoding,
			DiscoveryDepth:  cfg.Repos.DiscoveryDepth,
			Engine:          engine,
			Locks:           rdiff.DefaultLocks,
		}),
	}, nil
}

func newEngine(cfg *config.Config) *rdiff.Engine {
	return &rdiff.Engine{Executable: cfg.Engine.Executable, TempDir: cfg.Engine.TempDir}
}

// Close releases the catalogue and the event bus.
func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.bus.Close())
}

func (a *app) pipeline() *restore.Pipeline {
	return restore.New(restore.Config{ScratchDir: a.cfg.Engine.TempDir})
}

// notifier builds the mail notifier. It returns notify.ErrNoTransport when
// neither an SMTP host nor a maildir is configured.
func (a *app) notifier() (*notify.Notifier, error) {
	smtp := a.cfg.SMTP
	if !smtp.Enabled() {
		return nil, notify.ErrNoTransport
	}
	n, err := notify.New(notify.Config{
		SMTP: notify.SMTPConfig{
			Host:               smtp.Host,
			Port:               smtp.Port,
			Encryption:         smtp.Encryption,
			Username:           smtp.Username,
			Password:           smtp.Password,
			Timeout:            smtp.Timeout,
			InsecureSkipVerify: smtp.InsecureSkipVerify,
		},
		Maildir:          smtp.Maildir,
		From:             smtp.From,
		AppName:          a.cfg.Notify.AppName,
		BaseURL:          a.cfg.Notify.BaseURL,
		SendEmailChanged: a.cfg.Notify.SendEmailChanged,
	})
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	return n, nil
}

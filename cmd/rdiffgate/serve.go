// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/rdiffgate/internal/api"
	"github.com/tomtom215/rdiffgate/internal/config"
	"github.com/tomtom215/rdiffgate/internal/jobs"
	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/notify"
	"github.com/tomtom215/rdiffgate/internal/supervisor"
	"github.com/tomtom215/rdiffgate/internal/supervisor/services"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	logging.Info().Str("addr", cfg.Server.Addr()).Str("catalogue", cfg.Catalogue.Path).Msg("Starting rdiffgate")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalogue")
		}
	}()

	if _, err := a.engine.Resolve(); err != nil {
		logging.Warn().Err(err).Msg("rdiff-backup not found; restores and pruning will fail until it is installed")
	}
	if cfg.HasWildcardCORS() {
		logging.Warn().Msg("CORS allows any origin; restrict server.cors_origins in production")
	}

	treeCfg := supervisor.DefaultTreeConfig()
	if cfg.Server.ShutdownTimeout > 0 {
		treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return err
	}

	if err := addJobs(tree, a); err != nil {
		return err
	}

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Server.RateLimitReqs
	mwCfg.RateLimitDisabled = cfg.Server.RateLimitReqs == 0
	mwCfg.UserHeader = cfg.Server.UserHeader
	mwCfg.RestoresPerMinute = cfg.Server.RestoreRatePerMinute
	mwCfg.RestoreBurst = cfg.Server.RestoreBurst

	handler := api.NewHandler(api.HandlerConfig{
		Facade:   a.facade,
		Restorer: a.pipeline(),
		Settings: a.store,
		Engine:   a.engine,
	})
	router := api.NewRouter(handler, api.NewChiMiddleware(mwCfg), api.RouterConfig{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})
	// No write timeout: restore streams of large trees run for a long time.
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))

	if opts.configPath != "" {
		watchLogLevel(opts)
	}

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport() //nolint:errcheck // report is best effort after shutdown
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("rdiffgate stopped")
	return nil
}

// addJobs registers the enabled job runners and the account notifier.
func addJobs(tree *supervisor.SupervisorTree, a *app) error {
	cfg := a.cfg.Jobs

	if cfg.PruneEnabled {
		trigger, err := jobs.ParseDaily(cfg.PruneTime, time.Local)
		if err != nil {
			return err
		}
		tree.AddJobService(jobs.NewRunner(jobs.NewPruner(a.facade), trigger))
	}

	n, err := a.notifier()
	switch {
	case errors.Is(err, notify.ErrNoTransport):
		logging.Warn().Msg("No SMTP host or maildir configured; notifications are disabled")
	case err != nil:
		return err
	default:
		if cfg.NotifyEnabled {
			trigger, err := jobs.ParseDaily(cfg.NotifyTime, time.Local)
			if err != nil {
				return err
			}
			tree.AddJobService(jobs.NewRunner(jobs.NewStaleness(a.facade, n), trigger))
		}
		tree.AddEventService(services.NewAccountNotifierService(n, a.bus))
	}

	if cfg.DiscoverEnabled {
		runner := jobs.NewRunner(jobs.NewDiscovery(a.facade), jobs.Interval{Every: cfg.DiscoverInterval})
		tree.AddJobService(runner)
		if cfg.DiscoverOnStartup {
			tree.AddJobService(services.NewStartupService(runner))
		}
	}
	return nil
}

// watchLogLevel reapplies the logging section whenever the config file
// changes. Other settings need a restart.
func watchLogLevel(opts *rootOptions) {
	err := config.WatchConfigFile(opts.configPath, func() {
		cfg, err := config.Load(config.LoadOptions{Path: opts.configPath})
		if err != nil {
			logging.Warn().Err(err).Msg("Ignoring invalid configuration change")
			return
		}
		logging.Init(logging.Config{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			Caller:    cfg.Logging.Caller,
			Timestamp: true,
			Output:    opts.stderr,
		})
		logging.Info().Str("level", cfg.Logging.Level).Msg("Logging configuration reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", opts.configPath).Msg("Cannot watch config file")
	}
}

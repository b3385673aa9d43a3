// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig selects optional endpoints.
type RouterConfig struct {
	MetricsEnabled bool
	MetricsPath    string
}

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	config        RouterConfig
}

// NewRouter returns a Router.
func NewRouter(handler *Handler, mw *ChiMiddleware, cfg RouterConfig) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Router{handler: handler, chiMiddleware: mw, config: cfg}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to every route, in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.Get("/healthz", router.handler.Health)
	if router.config.MetricsEnabled {
		r.Handle(router.config.MetricsPath, promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(PrometheusMetrics)
		r.Use(router.chiMiddleware.TrustedUser())

		r.Group(func(r chi.Router) {
			r.Use(Compression)
			r.Get("/repos", router.handler.Repos)
			r.Get("/browse/*", router.handler.Browse)
			r.Get("/history/*", router.handler.History)
			r.Get("/dates/*", router.handler.Dates)
			r.Put("/settings/*", router.handler.RepoSettings)
		})
		r.With(router.chiMiddleware.LimitRestores()).Get("/restore/*", router.handler.Restore)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}

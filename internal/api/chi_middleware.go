// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/metrics"
)

// ChiMiddlewareConfig holds configuration for Chi middleware factories.
type ChiMiddlewareConfig struct {
	// CORS configuration
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	CORSMaxAge           int // seconds

	// Rate limiting configuration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
	RateLimitKeyFunc  httprate.KeyFunc

	// UserHeader names the header the trusted front end sets to the
	// authenticated user name.
	UserHeader string

	// RestoresPerMinute and RestoreBurst bound how fast one user can start
	// restores. Zero RestoresPerMinute disables the limit.
	RestoresPerMinute int
	RestoreBurst      int
}

// DefaultChiMiddlewareConfig returns a secure default configuration.
// CORS origins default to empty, requiring explicit configuration.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins:   []string{},
		CORSAllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		CORSAllowedHeaders:   []string{"Content-Type"},
		CORSAllowCredentials: false,
		CORSMaxAge:           86400,

		RateLimitRequests: 600,
		RateLimitWindow:   time.Minute,

		UserHeader:        "X-Remote-User",
		RestoresPerMinute: 6,
		RestoreBurst:      3,
	}
}

// ChiMiddleware provides Chi-compatible middleware factories.
type ChiMiddleware struct {
	config   *ChiMiddlewareConfig
	cors     func(http.Handler) http.Handler
	restores *RestoreLimiter
}

// NewChiMiddleware creates a new Chi middleware factory with the given configuration.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}
	if config.UserHeader == "" {
		config.UserHeader = "X-Remote-User"
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   config.CORSAllowedMethods,
		AllowedHeaders:   append([]string{config.UserHeader}, config.CORSAllowedHeaders...),
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: config.CORSAllowCredentials,
		MaxAge:           config.CORSMaxAge,
	})

	return &ChiMiddleware{
		config:   config,
		cors:     corsHandler,
		restores: NewRestoreLimiter(config.RestoresPerMinute, config.RestoreBurst),
	}
}

// CORS returns a Chi-compatible CORS middleware using go-chi/cors.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns a Chi-compatible rate limiting middleware using go-chi/httprate.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled || m.config.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	keyFunc := m.config.RateLimitKeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).TooManyRequests("Too many requests")
		}),
	)
}

type userKey struct{}

// UserFromContext returns the user name set by TrustedUser.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKey{}).(string); ok {
		return v
	}
	return ""
}

// TrustedUser reads the user name from the configured header. Requests
// without it are rejected with 401.
func (m *ChiMiddleware) TrustedUser() func(http.Handler) http.Handler {
	header := m.config.UserHeader
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := r.Header.Get(header)
			if user == "" {
				NewResponseWriter(w, r).Unauthorized("Missing user")
				return
			}
			ctx := context.WithValue(r.Context(), userKey{}, user)
			ctx = logging.ContextWithLogger(ctx, logging.LoggerFromContext(ctx).With().Str("user", sanitizeLogValue(user)).Logger())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LimitRestores attaches the per-user restore limiter to the request. The
// handler charges it only once the request is valid, so rejected requests
// do not spend a user's restore budget.
func (m *ChiMiddleware) LimitRestores() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), restoreLimiterKey{}, m.restores)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type restoreLimiterKey struct{}

// allowRestore charges the limiter attached by LimitRestores. Requests
// without one are always allowed.
func allowRestore(r *http.Request) bool {
	l, ok := r.Context().Value(restoreLimiterKey{}).(*RestoreLimiter)
	return !ok || l.Allow(UserFromContext(r.Context()))
}

// RestoreLimiter holds one token bucket per user.
type RestoreLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *xsync.MapOf[string, *rate.Limiter]
}

// NewRestoreLimiter allows perMinute restore starts per user with the given
// burst. perMinute <= 0 disables limiting.
func NewRestoreLimiter(perMinute, burst int) *RestoreLimiter {
	if burst <= 0 {
		burst = 1
	}
	l := &RestoreLimiter{burst: burst, limiters: xsync.NewMapOf[string, *rate.Limiter]()}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
	} else {
		l.limit = rate.Inf
	}
	return l
}

// Allow reports whether user may start a restore now.
func (l *RestoreLimiter) Allow(user string) bool {
	if l.limit == rate.Inf {
		return true
	}
	lim, _ := l.limiters.LoadOrCompute(user, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
	return lim.Allow()
}

// RequestIDWithLogging returns a middleware that adds request ID to the context
// and integrates with the logging package for distributed tracing.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			ctx = logging.ContextWithNewCorrelationID(ctx)

			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrometheusMetrics records request counts and latency by route pattern.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(code), time.Since(start))
	})
}

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Engine    EngineConfig    `koanf:"engine"`
	Repos     ReposConfig     `koanf:"repos"`
	Catalogue CatalogueConfig `koanf:"catalogue"`
	Password  PasswordConfig  `koanf:"password"`
	Jobs      JobsConfig      `koanf:"jobs"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Notify    NotifyConfig    `koanf:"notify"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ServerConfig holds the HTTP surface settings.
//
// Environment Variables:
//   - HTTP_HOST, HTTP_PORT: bind address (default: 127.0.0.1:8080)
//   - HTTP_READ_TIMEOUT, HTTP_IDLE_TIMEOUT: connection timeouts
//   - HTTP_SHUTDOWN_TIMEOUT: graceful shutdown budget (default: 15s)
//   - USER_HEADER: request header carrying the authenticated user (default: X-Remote-User)
//   - CORS_ORIGINS: comma-separated allowed origins
//   - RESTORE_RATE_PER_MINUTE: restores a user may start per minute (0 = unlimited)
//   - RATE_LIMIT_REQS: requests per minute per client address (0 = unlimited)
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// UserHeader names the header set by the authenticating front end.
	// Requests without it are rejected.
	UserHeader string `koanf:"user_header" validate:"required"`

	CORSOrigins []string `koanf:"cors_origins"`

	// RestoreRatePerMinute bounds restore starts per user.
	RestoreRatePerMinute int `koanf:"restore_rate_per_minute" validate:"gte=0"`
	RestoreBurst         int `koanf:"restore_burst" validate:"gte=0"`

	RateLimitReqs int `koanf:"rate_limit_reqs" validate:"gte=0"`
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file and line number in logs.
	// Default: false
	Caller bool `koanf:"caller"`
}

// EngineConfig locates the rdiff-backup executable.
type EngineConfig struct {
	// Executable is a name looked up on PATH or an absolute path.
	Executable string `koanf:"executable" validate:"required"`

	// TempDir is exported to the engine as TMPDIR and also hosts the
	// restore scratch directories. Empty means the system default.
	TempDir string `koanf:"temp_dir"`
}

// ReposConfig holds repository defaults.
type ReposConfig struct {
	DefaultEncoding string `koanf:"default_encoding" validate:"encoding"`
	DiscoveryDepth  int    `koanf:"discovery_depth" validate:"min=1,max=32"`
}

// CatalogueConfig locates the user catalogue.
type CatalogueConfig struct {
	Path     string `koanf:"path" validate:"required_without=InMemory"`
	InMemory bool   `koanf:"in_memory"`
}

// PasswordConfig selects the policy applied when passwords are set.
//
// Environment Variables:
//   - PASSWORD_MIN_LENGTH: minimum length (default: 8)
//   - PASSWORD_STRICT: apply the strict policy to every user (default: false)
type PasswordConfig struct {
	MinLength int  `koanf:"min_length" validate:"min=1,max=128"`
	Strict    bool `koanf:"strict"`
}

// JobsConfig schedules the background jobs. Times are HH:MM in server
// local time.
type JobsConfig struct {
	PruneEnabled      bool          `koanf:"prune_enabled"`
	PruneTime         string        `koanf:"prune_time" validate:"clock"`
	NotifyEnabled     bool          `koanf:"notify_enabled"`
	NotifyTime        string        `koanf:"notify_time" validate:"clock"`
	DiscoverEnabled   bool          `koanf:"discover_enabled"`
	DiscoverInterval  time.Duration `koanf:"discover_interval"`
	DiscoverOnStartup bool          `koanf:"discover_on_startup"`
}

// SMTPConfig configures mail delivery.
//
// Environment Variables:
//   - SMTP_HOST, SMTP_PORT: server address; an empty host disables SMTP
//   - SMTP_ENCRYPTION: none, starttls or ssl (default: none)
//   - SMTP_USERNAME, SMTP_PASSWORD: PLAIN credentials (optional)
//   - SMTP_FROM: sender address, required when SMTP or maildir is enabled
//   - SMTP_MAILDIR: write messages to this maildir when SMTP_HOST is empty
type SMTPConfig struct {
	Host               string        `koanf:"host"`
	Port               int           `koanf:"port" validate:"gte=0,lte=65535"`
	Encryption         string        `koanf:"encryption" validate:"oneof=none starttls ssl"`
	Username           string        `koanf:"username"`
	Password           string        `koanf:"password"`
	From               string        `koanf:"from"`
	Timeout            time.Duration `koanf:"timeout"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	Maildir            string        `koanf:"maildir"`
}

// Enabled reports whether any delivery path is configured.
func (c SMTPConfig) Enabled() bool { return c.Host != "" || c.Maildir != "" }

// NotifyConfig controls notification content.
type NotifyConfig struct {
	AppName          string `koanf:"app_name" validate:"required"`
	BaseURL          string `koanf:"base_url"`
	SendEmailChanged bool   `koanf:"send_email_changed"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Addr returns the HTTP listen address.
func (c ServerConfig) Addr() string {
	return joinHostPort(c.Host, c.Port)
}

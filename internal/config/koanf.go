// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/rdiffgate/internal/rdiff"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"rdiffgate.yaml",
	"rdiffgate.yml",
	"/etc/rdiffgate/config.yaml",
	"/etc/rdiffgate/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                 "127.0.0.1",
			Port:                 8080,
			ReadTimeout:          30 * time.Second,
			IdleTimeout:          120 * time.Second,
			ShutdownTimeout:      15 * time.Second,
			UserHeader:           "X-Remote-User",
			CORSOrigins:          []string{},
			RestoreRatePerMinute: 6,
			RestoreBurst:         3,
			RateLimitReqs:        600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Engine: EngineConfig{
			Executable: rdiff.DefaultEngine,
		},
		Repos: ReposConfig{
			DefaultEncoding: rdiff.DefaultEncoding,
			DiscoveryDepth:  3,
		},
		Catalogue: CatalogueConfig{
			Path: "/var/lib/rdiffgate/catalogue",
		},
		Password: PasswordConfig{
			MinLength: 8,
		},
		Jobs: JobsConfig{
			PruneEnabled:      true,
			PruneTime:         "23:00",
			NotifyEnabled:     true,
			NotifyTime:        "23:00",
			DiscoverEnabled:   true,
			DiscoverInterval:  time.Hour,
			DiscoverOnStartup: true,
		},
		SMTP: SMTPConfig{
			Encryption: "none",
			Timeout:    30 * time.Second,
		},
		Notify: NotifyConfig{
			AppName:          "rdiffgate",
			SendEmailChanged: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config { return defaultConfig() }

// LoadOptions tweaks Load.
type LoadOptions struct {
	// Path is an explicit config file; it must exist. Empty searches
	// CONFIG_PATH and DefaultConfigPaths.
	Path string
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in defaults
//  2. Config File: optional YAML config file
//  3. Environment Variables: override any mapped setting
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := opts.Path
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	} else {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// SMTP_HOST -> smtp.host, LOG_LEVEL -> logging.level
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		trimmed := []string{}
		for _, p := range strings.Split(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Server mappings
	"http_host":               "server.host",
	"http_port":               "server.port",
	"http_read_timeout":       "server.read_timeout",
	"http_idle_timeout":       "server.idle_timeout",
	"http_shutdown_timeout":   "server.shutdown_timeout",
	"user_header":             "server.user_header",
	"cors_origins":            "server.cors_origins",
	"restore_rate_per_minute": "server.restore_rate_per_minute",
	"restore_burst":           "server.restore_burst",
	"rate_limit_reqs":         "server.rate_limit_reqs",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Engine mappings
	"rdiff_backup_path": "engine.executable",
	"rdiffgate_tmpdir":  "engine.temp_dir",

	// Repository mappings
	"default_encoding": "repos.default_encoding",
	"discovery_depth":  "repos.discovery_depth",

	// Catalogue mappings
	"catalogue_path":      "catalogue.path",
	"catalogue_in_memory": "catalogue.in_memory",

	// Password policy mappings
	"password_min_length": "password.min_length",
	"password_strict":     "password.strict",

	// Job mappings
	"prune_enabled":       "jobs.prune_enabled",
	"prune_time":          "jobs.prune_time",
	"notify_enabled":      "jobs.notify_enabled",
	"notify_time":         "jobs.notify_time",
	"discover_enabled":    "jobs.discover_enabled",
	"discover_interval":   "jobs.discover_interval",
	"discover_on_startup": "jobs.discover_on_startup",

	// SMTP mappings
	"smtp_host":                 "smtp.host",
	"smtp_port":                 "smtp.port",
	"smtp_encryption":           "smtp.encryption",
	"smtp_username":             "smtp.username",
	"smtp_password":             "smtp.password",
	"smtp_from":                 "smtp.from",
	"smtp_timeout":              "smtp.timeout",
	"smtp_insecure_skip_verify": "smtp.insecure_skip_verify",
	"smtp_maildir":              "smtp.maildir",

	// Notification mappings
	"app_name":           "notify.app_name",
	"base_url":           "notify.base_url",
	"send_email_changed": "notify.send_email_changed",

	// Metrics mappings
	"metrics_enabled": "metrics.enabled",
	"metrics_path":    "metrics.path",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - SMTP_HOST -> smtp.host
//   - PRUNE_TIME -> jobs.prune_time
//   - RDIFF_BACKUP_PATH -> engine.executable
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls callback whenever the file at path changes. The
// caller owns synchronization around the reloaded configuration.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

/*
Package config provides centralized configuration management for rdiffgate.

# Configuration Sources

Load layers three sources, later ones winning:
  - Built-in defaults (defaultConfig)
  - An optional YAML file: --config, CONFIG_PATH, or the first of DefaultConfigPaths
  - Environment variables mapped explicitly in envMappings

The CLI loads .env files into the process environment before Load runs,
so they behave exactly like real environment variables.

# Configuration Structure

  - ServerConfig: HTTP surface, trusted user header, CORS and rate limits
  - LoggingConfig: zerolog level, format and caller annotation
  - EngineConfig: rdiff-backup executable and scratch directory
  - ReposConfig: default filesystem encoding and discovery depth
  - CatalogueConfig: BadgerDB location of the user catalogue
  - PasswordConfig: policy applied when passwords are set
  - JobsConfig: prune and notify times, discovery interval
  - SMTPConfig: mail server, encryption mode, credentials, maildir fallback
  - NotifyConfig: application name and links in notification mail
  - MetricsConfig: Prometheus endpoint

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT (default: 127.0.0.1:8080)
  - USER_HEADER (default: X-Remote-User)
  - CORS_ORIGINS: comma-separated list
  - RESTORE_RATE_PER_MINUTE, RESTORE_BURST (default: 6, 3)

Engine and repositories:
  - RDIFF_BACKUP_PATH (default: rdiff-backup)
  - RDIFFGATE_TMPDIR: scratch directory for restores
  - DEFAULT_ENCODING (default: utf-8)
  - DISCOVERY_DEPTH (default: 3)

Jobs:
  - PRUNE_ENABLED, PRUNE_TIME (default: true, 23:00)
  - NOTIFY_ENABLED, NOTIFY_TIME (default: true, 23:00)
  - DISCOVER_ENABLED, DISCOVER_INTERVAL (default: true, 1h)

Mail:
  - SMTP_HOST, SMTP_PORT, SMTP_ENCRYPTION (none, starttls, ssl)
  - SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM
  - SMTP_MAILDIR: offline delivery when SMTP_HOST is empty
  - APP_NAME, BASE_URL, SEND_EMAIL_CHANGED

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Validation

Validate runs the struct tags through internal/validation (including the
custom encoding and clock tags) and then the cross-field checks: SMTP
sender and credentials, base URL shape, discovery interval floor.
*/
package config

// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package config

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/tomtom215/rdiffgate/internal/logging"
	"github.com/tomtom215/rdiffgate/internal/validation"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	validators := []func() error{
		c.validateLogging,
		c.validateServer,
		c.validateJobs,
		c.validateSMTP,
		c.validateNotify,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateLogging validates the log level; the format is covered by tags.
func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	return nil
}

const minServerTimeout = time.Second

func (c *Config) validateServer() error {
	if strings.ContainsAny(c.Server.UserHeader, " :\t") {
		return fmt.Errorf("USER_HEADER %q is not a valid header name", c.Server.UserHeader)
	}
	if c.Server.ReadTimeout != 0 && c.Server.ReadTimeout < minServerTimeout {
		return fmt.Errorf("HTTP_READ_TIMEOUT must be at least 1s")
	}
	if c.Server.RestoreRatePerMinute > 0 && c.Server.RestoreBurst == 0 {
		return fmt.Errorf("RESTORE_BURST must be positive when RESTORE_RATE_PER_MINUTE is set")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.DiscoverEnabled && c.Jobs.DiscoverInterval < time.Minute {
		return fmt.Errorf("DISCOVER_INTERVAL must be at least 1m")
	}
	return nil
}

// validateSMTP checks delivery settings only when a delivery path exists.
func (c *Config) validateSMTP() error {
	s := c.SMTP
	if !s.Enabled() {
		return nil
	}
	if s.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST or SMTP_MAILDIR is set")
	}
	if _, err := mail.ParseAddress(s.From); err != nil {
		return fmt.Errorf("SMTP_FROM is invalid: %w", err)
	}
	if (s.Username == "") != (s.Password == "") {
		return fmt.Errorf("SMTP_USERNAME and SMTP_PASSWORD must be set together")
	}
	if s.Password != "" && containsPlaceholder(s.Password) {
		return fmt.Errorf("SMTP_PASSWORD contains a placeholder value")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.BaseURL == "" {
		return nil
	}
	if err := validateHTTPURL(c.Notify.BaseURL, "BASE_URL"); err != nil {
		return fmt.Errorf("BASE_URL is invalid: %w", err)
	}
	return nil
}

// HasWildcardCORS reports whether any origin is allowed.
func (c *Config) HasWildcardCORS() bool {
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// placeholderPatterns defines common placeholder patterns that indicate
// the user forgot to set a real value.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_PASSWORD",
	"PLACEHOLDER",
}

// containsPlaceholder checks if a value contains common placeholder patterns.
func containsPlaceholder(value string) bool {
	upperValue := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upperValue, pattern) {
			return true
		}
	}
	return false
}

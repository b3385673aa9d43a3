// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// isolateEnv clears the config path so tests never pick up a local file.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, "")
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rdiffgate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestDefaultConfig verifies that defaultConfig() returns valid defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Jobs.PruneTime != "23:00" || cfg.Jobs.NotifyTime != "23:00" {
		t.Errorf("job times = %q/%q, want 23:00", cfg.Jobs.PruneTime, cfg.Jobs.NotifyTime)
	}
	if cfg.Engine.Executable != "rdiff-backup" {
		t.Errorf("Engine.Executable = %q", cfg.Engine.Executable)
	}
	if cfg.SMTP.Enabled() {
		t.Error("SMTP should be disabled by default")
	}
}

func TestLoad_Layers(t *testing.T) {
	isolateEnv(t)
	path := writeYAML(t, `
server:
  port: 9090
  cors_origins: ["https://a.example"]
jobs:
  prune_time: "01:30"
smtp:
  host: mail.example.com
  from: backups@example.com
  encryption: starttls
repos:
  default_encoding: latin1
`)
	// Environment wins over the file.
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("PRUNE_TIME", "02:45")
	t.Setenv("DISCOVER_INTERVAL", "30m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load(LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if diff := cmp.Diff([]string{"https://a.example"}, cfg.Server.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Jobs.PruneTime != "02:45" {
		t.Errorf("Jobs.PruneTime = %q, want env value 02:45", cfg.Jobs.PruneTime)
	}
	if cfg.Jobs.NotifyTime != "23:00" {
		t.Errorf("Jobs.NotifyTime = %q, want default", cfg.Jobs.NotifyTime)
	}
	if cfg.Jobs.DiscoverInterval != 30*time.Minute {
		t.Errorf("Jobs.DiscoverInterval = %v", cfg.Jobs.DiscoverInterval)
	}
	want := SMTPConfig{
		Host:       "mail.example.com",
		Port:       2525,
		Encryption: "starttls",
		From:       "backups@example.com",
		Timeout:    30 * time.Second,
	}
	if diff := cmp.Diff(want, cfg.SMTP); diff != "" {
		t.Errorf("SMTP mismatch (-want +got):\n%s", diff)
	}
	if cfg.Repos.DefaultEncoding != "latin1" || cfg.Logging.Level != "debug" {
		t.Errorf("encoding/level = %q/%q", cfg.Repos.DefaultEncoding, cfg.Logging.Level)
	}
}

func TestLoad_CORSFromEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins mismatch (-want +got):\n%s", diff)
	}
	if cfg.HasWildcardCORS() {
		t.Error("no wildcard configured")
	}
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	path := writeYAML(t, "notify:\n  app_name: Backups\n")
	t.Setenv(ConfigPathEnvVar, path)
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notify.AppName != "Backups" {
		t.Errorf("Notify.AppName = %q", cfg.Notify.AppName)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolateEnv(t)
	if _, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad clock", map[string]string{"PRUNE_TIME": "25:00"}, "PruneTime"},
		{"bad encoding", map[string]string{"DEFAULT_ENCODING": "klingon"}, "DefaultEncoding"},
		{"bad smtp mode", map[string]string{"SMTP_ENCRYPTION": "tls"}, "Encryption"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}, "Format"},
		{"smtp without from", map[string]string{"SMTP_HOST": "mail.example.com"}, "SMTP_FROM is required"},
		{"maildir without from", map[string]string{"SMTP_MAILDIR": "/tmp/mail"}, "SMTP_FROM is required"},
		{"bad from", map[string]string{"SMTP_HOST": "mail.example.com", "SMTP_FROM": "not an address"}, "SMTP_FROM is invalid"},
		{"half credentials", map[string]string{"SMTP_HOST": "h", "SMTP_FROM": "a@b.c", "SMTP_USERNAME": "u"}, "set together"},
		{"placeholder password", map[string]string{"SMTP_HOST": "h", "SMTP_FROM": "a@b.c", "SMTP_USERNAME": "u", "SMTP_PASSWORD": "changeme"}, "placeholder"},
		{"base url query", map[string]string{"BASE_URL": "https://backup.example/?x=1"}, "BASE_URL"},
		{"base url scheme", map[string]string{"BASE_URL": "ftp://backup.example"}, "BASE_URL"},
		{"short discovery", map[string]string{"DISCOVER_INTERVAL": "10s"}, "DISCOVER_INTERVAL"},
		{"bad header", map[string]string{"USER_HEADER": "X Remote"}, "USER_HEADER"},
		{"no catalogue", map[string]string{"CATALOGUE_PATH": ""}, "Path"},
		{"zero port", map[string]string{"HTTP_PORT": "0"}, "Port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(LoadOptions{})
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestLoad_InMemoryCatalogue(t *testing.T) {
	isolateEnv(t)
	t.Setenv("CATALOGUE_PATH", "")
	t.Setenv("CATALOGUE_IN_MEMORY", "true")
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Catalogue.InMemory {
		t.Error("Catalogue.InMemory not set")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"SMTP_HOST":         "smtp.host",
		"smtp_host":         "smtp.host",
		"RDIFF_BACKUP_PATH": "engine.executable",
		"PRUNE_TIME":        "jobs.prune_time",
		"HOME":              "",
		"PATH":              "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateHTTPURL(t *testing.T) {
	for in, ok := range map[string]bool{
		"https://backup.example":          true,
		"http://backup.example:8080/web/": true,
		"backup.example":                  false,
		"https://":                        false,
		"https://backup.example/#top":     false,
	} {
		if err := validateHTTPURL(in, "BASE_URL"); (err == nil) != ok {
			t.Errorf("validateHTTPURL(%q) = %v, want ok=%v", in, err, ok)
		}
	}
}

package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
link:
  endpoint: udpin:0.0.0.0:14550
  waitTimeout: 5s
  targetSystem: 2
storage:
  enabled: true
  dataDirectory: flights
metrics:
  address: 127.0.0.1:9464
`)

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if c.Settings.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %s", c.Settings.LogLevel)
	}
	if c.Link.Endpoint != "udpin:0.0.0.0:14550" || c.Link.TargetSystem != 2 {
		t.Errorf("unexpected link config: %+v", c.Link)
	}
	if c.Link.WaitTimeout.Duration() != 5*time.Second {
		t.Errorf("expected 5s wait timeout, got %s", c.Link.WaitTimeout.Duration())
	}
	if !c.Storage.Enabled || c.Storage.DataDirectory != "flights" {
		t.Errorf("unexpected storage config: %+v", c.Storage)
	}
	if c.Metrics.Address != "127.0.0.1:9464" {
		t.Errorf("unexpected metrics address %q", c.Metrics.Address)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, "link:\n  simulate: true\n"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if c.Settings.LogLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %s", c.Settings.LogLevel)
	}
	if c.Link.WaitTimeout.Duration() != defaultWaitTimeout {
		t.Errorf("expected default wait timeout, got %s", c.Link.WaitTimeout.Duration())
	}
	if c.Storage.Enabled || c.Metrics.Address != "" {
		t.Error("storage and metrics should be off by default")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing endpoint", "link:\n  simulate: false\n", "link.endpoint is required"},
		{"bad scheme", "link:\n  endpoint: http:localhost:80\n", "unknown scheme"},
		{"bad duration", "link:\n  simulate: true\n  waitTimeout: soon\n", "failed to parse"},
		{"zero wait", "link:\n  simulate: true\n  waitTimeout: 0s\n", "must be positive"},
		{"storage without directory", "link:\n  simulate: true\nstorage:\n  enabled: true\n  dataDirectory: \"\"\n", "dataDirectory is required"},
		{"bad log level", "settings:\n  logLevel: loud\nlink:\n  simulate: true\n", "parsing configuration"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

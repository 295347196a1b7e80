package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_GROQ_KEY", "gsk_secret")
	t.Setenv("TEST_AUTH_KEY", "hmac_secret")

	path := writeConfig(t, `
project_name: MindViza
listen:
  port: 9090
groq:
  api_key: ${TEST_GROQ_KEY}
  timeout_sec: 30
auth:
  secret_key: ${TEST_AUTH_KEY}
quota:
  guest_daily_limit: 5
memory:
  search_limit: 7
  summarize_after: 40
data_dir: /var/lib/mindviza
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Groq.APIKey != "gsk_secret" {
		t.Errorf("api_key = %q, env not expanded", cfg.Groq.APIKey)
	}
	if cfg.Auth.SecretKey != "hmac_secret" {
		t.Errorf("secret_key = %q, env not expanded", cfg.Auth.SecretKey)
	}
	if cfg.Listen.Port != 9090 {
		t.Errorf("port = %d", cfg.Listen.Port)
	}
	if cfg.Groq.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Groq.Timeout())
	}
	if cfg.Quota.Limit() != 5 {
		t.Errorf("quota limit = %d", cfg.Quota.Limit())
	}
	if cfg.Memory.Limit() != 7 {
		t.Errorf("search limit = %d", cfg.Memory.Limit())
	}
	if cfg.DatabasePath() != "/var/lib/mindviza/mindviza.db" {
		t.Errorf("database path = %s", cfg.DatabasePath())
	}
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, `
groq:
  api_key: gsk_x
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Listen.Port)
	}
	if cfg.Groq.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("base_url = %s", cfg.Groq.BaseURL)
	}
	if cfg.Groq.Timeout() != 60*time.Second {
		t.Errorf("timeout = %v, want 60s default", cfg.Groq.Timeout())
	}
	if cfg.Auth.Algorithm != "HS256" {
		t.Errorf("algorithm = %s", cfg.Auth.Algorithm)
	}
	if cfg.Quota.Limit() != 10 {
		t.Errorf("quota limit = %d, want 10", cfg.Quota.Limit())
	}
	if cfg.Memory.Limit() != 3 {
		t.Errorf("search limit = %d, want 3", cfg.Memory.Limit())
	}
	if cfg.Defaults.Identity != "80" || cfg.Defaults.ThreadID != "90" {
		t.Errorf("rest defaults = %+v", cfg.Defaults)
	}
}

func TestFindConfig(t *testing.T) {
	path := writeConfig(t, "project_name: test\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig explicit: %v", err)
	}
	if got != path {
		t.Errorf("path = %s, want %s", got, path)
	}

	if _, err := FindConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("FindConfig succeeded for a missing explicit path")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"trace", false},
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"verbose", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel(%q) err = %v", tt.input, err)
			}
		})
	}

	if level, err := ParseLogLevel("trace"); err != nil || level != LevelTrace {
		t.Errorf("trace level = %v, %v", level, err)
	}
}

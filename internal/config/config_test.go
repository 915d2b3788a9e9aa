package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.MaxConcurrency != 4 {
		t.Errorf("expected default max concurrency 4, got %d", cfg.MaxConcurrency)
	}
	if cfg.BaseURL != "https://updates.oracle.com" {
		t.Errorf("unexpected default base URL %s", cfg.BaseURL)
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("expected default retry attempts 5, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != time.Second {
		t.Errorf("expected default retry backoff 1s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 30*time.Second {
		t.Errorf("expected default retry max backoff 30s, got %v", cfg.Retry.MaxBackoff)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
credentials:
  username: user@example.com
  password: hunter2
platforms:
  - "226P"
  - "Linux.*"
ignored_releases:
  - "^12\\."
ignored_description_words:
  - "OJVM"
download_root: /data/patches
max_concurrency: 8
retry:
  attempts: 10
  backoff: 2s
  max_backoff: 60s
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Credentials.Username != "user@example.com" {
		t.Errorf("unexpected username %s", cfg.Credentials.Username)
	}
	if cfg.Credentials.Password != "hunter2" {
		t.Errorf("unexpected password %s", cfg.Credentials.Password)
	}
	if len(cfg.Platforms) != 2 || cfg.Platforms[1] != "Linux.*" {
		t.Errorf("unexpected platforms %v", cfg.Platforms)
	}
	if len(cfg.IgnoredDescriptionWords) != 1 || cfg.IgnoredDescriptionWords[0] != "OJVM" {
		t.Errorf("unexpected ignored description words %v", cfg.IgnoredDescriptionWords)
	}
	if cfg.DownloadRoot != "/data/patches" {
		t.Errorf("unexpected download root %s", cfg.DownloadRoot)
	}
	if cfg.MaxConcurrency != 8 {
		t.Errorf("expected max concurrency 8, got %d", cfg.MaxConcurrency)
	}
	if cfg.Retry.Attempts != 10 {
		t.Errorf("expected retry attempts 10, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("expected retry backoff 2s, got %v", cfg.Retry.Backoff)
	}

	// Unset fields keep their defaults.
	if cfg.BaseURL != "https://updates.oracle.com" {
		t.Errorf("expected default base URL to survive, got %s", cfg.BaseURL)
	}
}

func TestLoadFromYAMLBadDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("retry:\n  backoff: fast\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for unparsable duration")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OQPD_USERNAME", "env-user")
	t.Setenv("OQPD_PLATFORMS", "226P, Linux.*")
	t.Setenv("OQPD_MAX_CONCURRENCY", "2")
	t.Setenv("OQPD_RETRY_BACKOFF", "3s")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Credentials.Username != "env-user" {
		t.Errorf("unexpected username %s", cfg.Credentials.Username)
	}
	if len(cfg.Platforms) != 2 || cfg.Platforms[0] != "226P" {
		t.Errorf("unexpected platforms %v", cfg.Platforms)
	}
	if cfg.MaxConcurrency != 2 {
		t.Errorf("expected max concurrency 2, got %d", cfg.MaxConcurrency)
	}
	if cfg.Retry.Backoff != 3*time.Second {
		t.Errorf("expected retry backoff 3s, got %v", cfg.Retry.Backoff)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("OQPD_MAX_CONCURRENCY", "many")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for non-numeric OQPD_MAX_CONCURRENCY")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Credentials.Username = "user@example.com"
	valid.DownloadRoot = "/data/patches"
	valid.Platforms = []string{"226P"}

	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing username", func(c *Config) { c.Credentials.Username = "" }},
		{"missing download root", func(c *Config) { c.DownloadRoot = "" }},
		{"no platforms", func(c *Config) { c.Platforms = nil }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }},
		{"missing base url", func(c *Config) { c.BaseURL = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credentials holds the catalog service logon.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RetryConfig defines retry behavior for catalog queries and transfers.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Config defines configuration for the oqpd CLI.
type Config struct {
	Credentials             Credentials `yaml:"credentials"`
	Platforms               []string    `yaml:"platforms"`
	IgnoredReleases         []string    `yaml:"ignored_releases"`
	IgnoredDescriptionWords []string    `yaml:"ignored_description_words"`
	DownloadRoot            string      `yaml:"download_root"`
	CacheDir                string      `yaml:"cache_dir"`
	MaxConcurrency          int         `yaml:"max_concurrency"`
	BaseURL                 string      `yaml:"base_url"`
	Retry                   RetryConfig `yaml:"retry"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		MaxConcurrency: 4,
		BaseURL:        "https://updates.oracle.com",
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	Credentials             Credentials     `yaml:"credentials"`
	Platforms               []string        `yaml:"platforms"`
	IgnoredReleases         []string        `yaml:"ignored_releases"`
	IgnoredDescriptionWords []string        `yaml:"ignored_description_words"`
	DownloadRoot            string          `yaml:"download_root"`
	CacheDir                string          `yaml:"cache_dir"`
	MaxConcurrency          int             `yaml:"max_concurrency"`
	BaseURL                 string          `yaml:"base_url"`
	Retry                   yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	cfg.Credentials = yc.Credentials
	if len(yc.Platforms) > 0 {
		cfg.Platforms = yc.Platforms
	}
	if len(yc.IgnoredReleases) > 0 {
		cfg.IgnoredReleases = yc.IgnoredReleases
	}
	if len(yc.IgnoredDescriptionWords) > 0 {
		cfg.IgnoredDescriptionWords = yc.IgnoredDescriptionWords
	}
	if yc.DownloadRoot != "" {
		cfg.DownloadRoot = yc.DownloadRoot
	}
	if yc.CacheDir != "" {
		cfg.CacheDir = yc.CacheDir
	}
	if yc.MaxConcurrency != 0 {
		cfg.MaxConcurrency = yc.MaxConcurrency
	}
	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the OQPD_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("OQPD_USERNAME"); v != "" {
		c.Credentials.Username = v
	}
	if v := os.Getenv("OQPD_PASSWORD"); v != "" {
		c.Credentials.Password = v
	}
	if v := os.Getenv("OQPD_PLATFORMS"); v != "" {
		c.Platforms = splitList(v)
	}
	if v := os.Getenv("OQPD_IGNORED_RELEASES"); v != "" {
		c.IgnoredReleases = splitList(v)
	}
	if v := os.Getenv("OQPD_IGNORED_DESCRIPTION_WORDS"); v != "" {
		c.IgnoredDescriptionWords = splitList(v)
	}
	if v := os.Getenv("OQPD_DOWNLOAD_ROOT"); v != "" {
		c.DownloadRoot = v
	}
	if v := os.Getenv("OQPD_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("OQPD_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse OQPD_MAX_CONCURRENCY: %w", err)
		}
		c.MaxConcurrency = n
	}
	if v := os.Getenv("OQPD_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("OQPD_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse OQPD_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("OQPD_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse OQPD_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("OQPD_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse OQPD_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration for a download run.
func (c *Config) Validate() error {
	if c.Credentials.Username == "" {
		return errors.New("config: credentials.username is required")
	}
	if c.DownloadRoot == "" {
		return errors.New("config: download_root is required")
	}
	if len(c.Platforms) == 0 {
		return errors.New("config: at least one platform pattern is required")
	}
	if c.MaxConcurrency <= 0 {
		return errors.New("config: max_concurrency must be positive")
	}
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

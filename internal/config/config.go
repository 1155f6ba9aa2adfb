// Package config loads service configuration: compiled defaults, an optional
// YAML file, then environment variables, each layer overriding the last. The
// webhook domain allowlist additionally hot-reloads from the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	DatabaseURL string `yaml:"database_url"`
	DBPoolSize  int    `yaml:"db_pool_size"`

	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`

	MaxActiveTasks  int `yaml:"max_active_tasks"`
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	WebhookTimeout    time.Duration `yaml:"webhook_timeout"`
	WebhookMaxRetries int           `yaml:"webhook_max_retries"`
	HMACSecret        string        `yaml:"hmac_secret"`
	AllowedDomains    []string      `yaml:"allowed_webhook_domains"`

	RateLimit       int           `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`

	SMTP SMTPConfig `yaml:"smtp"`

	Production bool `yaml:"production"`
	TrustProxy bool `yaml:"trust_proxy"`
}

// SMTPConfig holds outbound mail settings for email callbacks.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaults() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8080,
		DatabaseURL:       ":memory:",
		DBPoolSize:        10,
		PollInterval:      10 * time.Second,
		BatchSize:         50,
		LockTimeout:       60 * time.Second,
		MaxActiveTasks:    100,
		MaxPayloadBytes:   65536,
		WebhookTimeout:    30 * time.Second,
		WebhookMaxRetries: 3,
		RateLimit:         100,
		RateLimitWindow:   15 * time.Minute,
		SMTP:              SMTPConfig{Port: 587},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty and the file exists), then environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.HMACSecret == "" && cfg.Production {
		return nil, fmt.Errorf("HMAC_SECRET is required in production")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString("HOST", &cfg.Host)
	envInt("PORT", &cfg.Port)
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envInt("DB_POOL_SIZE", &cfg.DBPoolSize)
	envDuration("SCHEDULER_POLL_INTERVAL", &cfg.PollInterval)
	envInt("SCHEDULER_BATCH_SIZE", &cfg.BatchSize)
	envDuration("SCHEDULER_LOCK_TIMEOUT", &cfg.LockTimeout)
	envInt("MAX_ACTIVE_TASKS", &cfg.MaxActiveTasks)
	envInt("MAX_PAYLOAD_SIZE", &cfg.MaxPayloadBytes)
	envDuration("WEBHOOK_TIMEOUT", &cfg.WebhookTimeout)
	envInt("WEBHOOK_MAX_RETRIES", &cfg.WebhookMaxRetries)
	envString("HMAC_SECRET", &cfg.HMACSecret)
	envInt("RATE_LIMIT", &cfg.RateLimit)
	envDuration("RATE_LIMIT_WINDOW", &cfg.RateLimitWindow)

	if v := os.Getenv("ALLOWED_WEBHOOK_DOMAINS"); v != "" {
		cfg.AllowedDomains = splitDomains(v)
	}

	envString("SMTP_HOST", &cfg.SMTP.Host)
	envInt("SMTP_PORT", &cfg.SMTP.Port)
	envString("SMTP_USERNAME", &cfg.SMTP.Username)
	envString("SMTP_PASSWORD", &cfg.SMTP.Password)
	envString("SMTP_FROM", &cfg.SMTP.From)

	if isProductionEnv() {
		cfg.Production = true
	}
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		cfg.TrustProxy = v == "1" || strings.EqualFold(v, "true")
	}
}

// isProductionEnv honors both APP_ENV and NODE_ENV so deployments migrated
// from other runtimes keep working.
func isProductionEnv() bool {
	for _, key := range []string{"APP_ENV", "NODE_ENV"} {
		if strings.EqualFold(os.Getenv(key), "production") {
			return true
		}
	}
	return false
}

func splitDomains(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if d := strings.ToLower(strings.TrimSpace(p)); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// envDuration accepts either a Go duration string or a bare integer meaning
// seconds.
func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}

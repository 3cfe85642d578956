// Package config loads gymctl configuration from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultBackendURL is used when BACKEND_URL is not configured.
const DefaultBackendURL = "http://localhost:8080"

// Session store kinds.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	BackendURL             string        `mapstructure:"backend_url"`              // gym backend origin; /api is appended
	KratosURL              string        `mapstructure:"kratos_url"`               // Kratos public API
	KratosAdminURL         string        `mapstructure:"kratos_admin_url"`         // Kratos admin API, enables session extension
	KratosTokenizeTemplate string        `mapstructure:"kratos_tokenize_template"` // tokenizer template for backend JWTs
	PushAppID              string        `mapstructure:"push_app_id"`              // push-notification app; empty disables registration
	TokenExpiryBuffer      time.Duration `mapstructure:"token_expiry_buffer"`
	DefaultTokenTTL        time.Duration `mapstructure:"default_token_ttl"`
	HTTPTimeout            time.Duration `mapstructure:"http_timeout"`
	SessionStore           string        `mapstructure:"session_store"`
	SessionFile            string        `mapstructure:"session_file"`
	RedisURL               string        `mapstructure:"redis_url"`
	RedisKeyPrefix         string        `mapstructure:"redis_key_prefix"`
	Port                   string        `mapstructure:"port"`
	ListenAddr             string        `mapstructure:"listen_addr"` // host:port for serve; empty binds loopback on Port
	RateLimitRPS           float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst         int           `mapstructure:"rate_limit_burst"`
	LogLevel               string        `mapstructure:"log_level"`

	// Warnings lists non-fatal problems found while loading.
	Warnings []string `mapstructure:"-"`
}

var keys = []string{
	"backend_url", "kratos_url", "kratos_admin_url", "kratos_tokenize_template",
	"push_app_id", "token_expiry_buffer", "default_token_ttl", "http_timeout",
	"session_store", "session_file", "redis_url", "redis_key_prefix", "port",
	"listen_addr", "rate_limit_rps", "rate_limit_burst", "log_level",
}

// Load reads configuration from file and environment variables. Environment
// variables win over the file; KEY_FILE points at a file holding KEY's value.
// A missing KRATOS_URL is an error, a missing BACKEND_URL or PUSH_APP_ID only a
// warning.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".gymctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gymctl")
	}

	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := resolveFileRefs(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	for _, k := range keys {
		v.SetDefault(k, "")
	}

	v.SetDefault("token_expiry_buffer", "60s")
	v.SetDefault("default_token_ttl", "1h")
	v.SetDefault("http_timeout", "10s")
	v.SetDefault("session_store", StoreFile)
	v.SetDefault("session_file", defaultSessionFile())
	v.SetDefault("redis_key_prefix", "gymsession")
	v.SetDefault("port", "8090")
	v.SetDefault("rate_limit_rps", 10)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("log_level", "info")
}

// resolveFileRefs applies KEY_FILE indirection for every known key.
func resolveFileRefs(v *viper.Viper) error {
	for _, k := range keys {
		envName := strings.ToUpper(k) + "_FILE"
		path := os.Getenv(envName)
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", envName, err)
		}
		v.Set(k, strings.TrimSpace(string(content)))
	}
	return nil
}

func (c *Config) applyFallbacks() {
	if c.BackendURL == "" {
		c.Warnings = append(c.Warnings,
			fmt.Sprintf("BACKEND_URL is not set, using %s", DefaultBackendURL))
		c.BackendURL = DefaultBackendURL
	}

	if c.PushAppID == "" {
		c.Warnings = append(c.Warnings, "PUSH_APP_ID is not set, push registration disabled")
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.KratosURL == "" {
		return fmt.Errorf("KRATOS_URL cannot be empty")
	}

	if err := checkURL("KRATOS_URL", c.KratosURL); err != nil {
		return err
	}
	if c.KratosAdminURL != "" {
		if err := checkURL("KRATOS_ADMIN_URL", c.KratosAdminURL); err != nil {
			return err
		}
	}
	if err := checkURL("BACKEND_URL", c.BackendURL); err != nil {
		return err
	}

	if c.TokenExpiryBuffer < 0 {
		return fmt.Errorf("TOKEN_EXPIRY_BUFFER must not be negative")
	}
	if c.DefaultTokenTTL <= 0 {
		return fmt.Errorf("DEFAULT_TOKEN_TTL must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	switch c.SessionStore {
	case StoreMemory:
	case StoreFile:
		if c.SessionFile == "" {
			return fmt.Errorf("SESSION_FILE cannot be empty when SESSION_STORE=file")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be one of file, memory, redis (got %q)", c.SessionStore)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL (got %q)", name, raw)
	}
	return nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".gymctl-session.json"
	}
	return filepath.Join(dir, "gymctl", "session.json")
}

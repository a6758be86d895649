package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// WildcardOrigin allows any origin. It is meant for local development only.
const WildcardOrigin = "*"

// DefaultJWTSecret is the development secret written into fresh config files.
const DefaultJWTSecret = "dev-secret-change-me"

// ErrWildcardWithCredentials is returned when credentialed connections are allowed from any origin.
var ErrWildcardWithCredentials = errors.New("allowed_origins \"*\" cannot be combined with allow_credentials")

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTRequired bool   `mapstructure:"jwt_required" yaml:"jwt_required"`

	SendQueueSize   int     `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	MaxMessageBytes int64   `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimit       float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst" yaml:"rate_burst"`

	RedisAddr          string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisChannelPrefix string `mapstructure:"redis_channel_prefix" yaml:"redis_channel_prefix"`

	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":3001",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		WriteTimeout:       10 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DatabasePath:       "roomcast.db",
		AllowedOrigins:     []string{WildcardOrigin},
		AllowCredentials:   false,
		JWTSecret:          DefaultJWTSecret,
		JWTIssuer:          "roomcast",
		JWTAudience:        "",
		JWTRequired:        false,
		SendQueueSize:      64,
		MaxMessageBytes:    64 << 10,
		RateLimit:          20,
		RateBurst:          40,
		RedisAddr:          "",
		RedisChannelPrefix: "roomcast:room:",
		MetricsEnabled:     true,
	}
}

// WildcardOrigins reports whether any origin is accepted.
func (c *Config) WildcardOrigins() bool {
	return slices.Contains(c.AllowedOrigins, WildcardOrigin)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.WildcardOrigins() && c.AllowCredentials {
		return ErrWildcardWithCredentials
	}
	if c.SendQueueSize < 0 {
		return fmt.Errorf("send_queue_size must not be negative, got %d", c.SendQueueSize)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("rate_limit and rate_burst must not be negative")
	}
	return nil
}

// Warnings lists settings that are accepted but unsafe outside development.
func (c *Config) Warnings() []string {
	var out []string
	if c.WildcardOrigins() {
		out = append(out, "allowed_origins is \"*\"; any site may open connections (development only)")
	}
	if c.JWTSecret == DefaultJWTSecret {
		out = append(out, "jwt_secret is the built-in development secret")
	}
	return out
}

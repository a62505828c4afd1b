// Package config loads client configuration from defaults and environment
// variables. A single base URL yields both the REST endpoint and the socket
// endpoint by scheme substitution.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the client's environment variables, e.g.
// PARTYCHAT_BASE_URL, PARTYCHAT_HEARTBEAT_INTERVAL.
const envPrefix = "PARTYCHAT_"

// Config holds all chat client configuration.
type Config struct {
	// BaseURL is the HTTP(S) origin of the backend. Required.
	BaseURL string `koanf:"base_url"`

	// SocketPath is appended to the derived socket origin.
	SocketPath string `koanf:"socket_path"`

	// HeartbeatInterval is how often the client pings while connected.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`

	// ReconnectDelay is the fixed wait before redialing after an unexpected
	// close. Deliberately constant: no backoff growth, no jitter.
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`

	// DialTimeout bounds the socket handshake.
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// HistoryPageSize is the page size for backward history fetches.
	HistoryPageSize int `koanf:"history_page_size"`

	// Token is the session bearer token. Optional; without it the client
	// connects unauthenticated.
	Token string `koanf:"token"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

func defaults() *Config {
	return &Config{
		SocketPath:        "/ws",
		HeartbeatInterval: 10 * time.Second,
		ReconnectDelay:    5 * time.Second,
		DialTimeout:       10 * time.Second,
		HistoryPageSize:   30,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load builds a Config from compiled defaults overridden by PARTYCHAT_*
// environment variables.
func Load() (*Config, error) {
	return LoadWithBaseURL("")
}

// LoadWithBaseURL is Load with the base URL forced to the given value when
// non-empty, for callers that take the endpoint as an argument.
func LoadWithBaseURL(baseURL string) (*Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value sanity.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base_url", ErrConfigRequired)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: base_url scheme %q", ErrConfigInvalid, u.Scheme)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat_interval must be positive", ErrConfigInvalid)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: reconnect_delay must be positive", ErrConfigInvalid)
	}
	if c.HistoryPageSize <= 0 {
		return fmt.Errorf("%w: history_page_size must be positive", ErrConfigInvalid)
	}
	return nil
}

// HTTPURL returns the REST base URL without a trailing slash.
func (c *Config) HTTPURL() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// SocketURL derives the socket endpoint from the base URL: https becomes
// wss, http becomes ws, and SocketPath is appended.
func (c *Config) SocketURL() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.SocketPath
	return u.String()
}

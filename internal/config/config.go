package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime setting, populated from LIVECLASS_* environment
// variables on top of the defaults below.
type Config struct {
	HTTP      HTTPConfig      `envconfig:"HTTP"`
	WebSocket WebSocketConfig `envconfig:"WS"`
	Store     StoreConfig     `envconfig:"STORE"`
	Auth      AuthConfig      `envconfig:"AUTH"`
	Session   SessionConfig   `envconfig:"SESSION"`
}

type HTTPConfig struct {
	Host         string        `split_words:"true" default:"0.0.0.0"`
	Port         int           `split_words:"true" default:"8080"`
	ReadTimeout  time.Duration `split_words:"true" default:"30s"`
	WriteTimeout time.Duration `split_words:"true" default:"30s"`
}

type WebSocketConfig struct {
	QueueSize     int           `split_words:"true" default:"256"`
	PingInterval  time.Duration `split_words:"true" default:"30s"`
	ReadTimeout   time.Duration `split_words:"true" default:"60s"`
	WriteTimeout  time.Duration `split_words:"true" default:"10s"`
	RatePerMinute int           `split_words:"true" default:"100"`
}

type StoreConfig struct {
	Path string `split_words:"true" default:"./data/liveclass.db"`
}

type AuthConfig struct {
	Secret string `split_words:"true"`
	Issuer string `split_words:"true" default:"liveclass"`
}

type SessionConfig struct {
	DefaultCapacity int `split_words:"true" default:"50"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// Missing .env is fine; it only exists in development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("LIVECLASS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return errors.New("http timeouts must be positive")
	}
	if c.WebSocket.QueueSize <= 0 {
		return errors.New("websocket queue size must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return errors.New("websocket intervals must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return errors.New("ping interval must be shorter than the read timeout")
	}
	if c.WebSocket.RatePerMinute <= 0 {
		return errors.New("rate limit must be positive")
	}
	if c.Store.Path == "" {
		return errors.New("store path cannot be empty")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required")
	}
	if c.Session.DefaultCapacity <= 0 {
		return errors.New("session default capacity must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

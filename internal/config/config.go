// Package config loads taskboard.yml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no path is given.
const DefaultPath = "taskboard.yml"

// Config represents the top-level taskboard.yml configuration
type Config struct {
	Version       string              `yaml:"version"`
	API           APIConfig           `yaml:"api"`
	Bus           BusConfig           `yaml:"bus"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Identity      IdentityConfig      `yaml:"identity,omitempty"`
	Token         string              `yaml:"token,omitempty"` // Bearer credential for the API and STOMP bus
	Debug         bool                `yaml:"debug,omitempty"`
}

// APIConfig locates the persistence API
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// BusConfig locates the message bus. The URL scheme selects the transport:
// redis:// or rediss:// for Redis Pub/Sub, ws://, wss://, tcp:// or stomp:// for STOMP.
type BusConfig struct {
	URL            string        `yaml:"url"`
	Prefix         string        `yaml:"prefix,omitempty"` // Redis channel namespace
	ReconnectDelay time.Duration `yaml:"reconnect_delay,omitempty"`
	Heartbeat      time.Duration `yaml:"heartbeat,omitempty"`
}

// NotificationsConfig bounds the toast queue
type NotificationsConfig struct {
	Capacity int           `yaml:"capacity,omitempty"`
	Lifetime time.Duration `yaml:"lifetime,omitempty"`
}

// IdentityConfig names the local user. Both fields are read from the token
// when left empty.
type IdentityConfig struct {
	UserID   int64  `yaml:"user_id,omitempty"`
	Username string `yaml:"username,omitempty"`
}

// Transport kinds returned by BusConfig.Transport.
const (
	TransportRedis = "redis"
	TransportStomp = "stomp"
)

// Default returns a configuration for a local development server.
func Default() *Config {
	c := &Config{Version: "1.0"}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8080"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 15 * time.Second
	}
	if c.Bus.URL == "" {
		c.Bus.URL = "redis://localhost:6379/0"
	}
	if c.Bus.Prefix == "" {
		c.Bus.Prefix = "taskboard"
	}
	if c.Bus.ReconnectDelay == 0 {
		c.Bus.ReconnectDelay = 5 * time.Second
	}
	if c.Bus.Heartbeat == 0 {
		c.Bus.Heartbeat = 4 * time.Second
	}
	if c.Notifications.Capacity == 0 {
		c.Notifications.Capacity = 5
	}
	if c.Notifications.Lifetime == 0 {
		c.Notifications.Lifetime = 5 * time.Second
	}
}

// Transport returns the transport kind for the bus URL.
func (b BusConfig) Transport() (string, error) {
	u, err := url.Parse(b.URL)
	if err != nil {
		return "", fmt.Errorf("invalid bus url: %w", err)
	}
	switch u.Scheme {
	case "redis", "rediss":
		return TransportRedis, nil
	case "ws", "wss", "tcp", "stomp":
		return TransportStomp, nil
	default:
		return "", fmt.Errorf("unsupported bus url scheme %q (expected redis, rediss, ws, wss, tcp or stomp)", u.Scheme)
	}
}

// Validate performs strict validation on the configuration and fills in
// defaults for omitted values
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}
	c.applyDefaults()

	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must be http or https, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}

	if _, err := c.Bus.Transport(); err != nil {
		return fmt.Errorf("bus.url: %w", err)
	}
	if c.Bus.ReconnectDelay < 0 {
		return fmt.Errorf("bus.reconnect_delay must be positive, got %s", c.Bus.ReconnectDelay)
	}
	if c.Bus.Heartbeat < 0 {
		return fmt.Errorf("bus.heartbeat must be positive, got %s", c.Bus.Heartbeat)
	}

	if c.Notifications.Capacity < 1 {
		return fmt.Errorf("notifications.capacity must be >= 1, got %d", c.Notifications.Capacity)
	}
	if c.Notifications.Lifetime < 0 {
		return fmt.Errorf("notifications.lifetime must be positive, got %s", c.Notifications.Lifetime)
	}
	if c.Identity.UserID < 0 {
		return fmt.Errorf("identity.user_id must be positive, got %d", c.Identity.UserID)
	}
	return nil
}

// ApplyEnv overrides fields from TASKBOARD_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TASKBOARD_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := getenv("TASKBOARD_BUS_URL"); v != "" {
		c.Bus.URL = v
	}
	if v := getenv("TASKBOARD_TOKEN"); v != "" {
		c.Token = v
	}
	if v := getenv("TASKBOARD_USERNAME"); v != "" {
		c.Identity.Username = v
	}
	if v := getenv("TASKBOARD_USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TASKBOARD_USER_ID: %w", err)
		}
		c.Identity.UserID = id
	}
	if v := getenv("TASKBOARD_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("TASKBOARD_DEBUG: %w", err)
		}
		c.Debug = debug
	}
	return nil
}

// Load reads and validates taskboard.yml from the specified path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Resolve loads path, falling back to defaults when path is DefaultPath and
// the file does not exist, then applies environment overrides.
func Resolve(path string, getenv func(string) string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	cfg, err = Load(path)
	if err != nil {
		if path != DefaultPath || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

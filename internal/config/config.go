package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Tailscale   TailscaleConfig   `yaml:"tailscale"`
	Session     SessionConfig     `yaml:"session"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	// APIKey, when set, is required in the X-API-Key header of every API
	// request. Empty disables auth, for loopback-only deployments.
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type SessionConfig struct {
	// DefaultRestSeconds is the rest time given to freshly synthesized sets.
	DefaultRestSeconds int `yaml:"default_rest_seconds"`
	// RestNotifications gates scheduling a local notification for rest
	// timer completion.
	RestNotifications bool `yaml:"rest_notifications"`
}

type PersistenceConfig struct {
	// BackgroundAttempts and UrgentAttempts bound save retries; urgent
	// saves (finish, app exit) try harder.
	BackgroundAttempts int `yaml:"background_attempts"`
	UrgentAttempts     int `yaml:"urgent_attempts"`
	BaseDelayMS        int `yaml:"base_delay_ms"`
	MaxDelayMS         int `yaml:"max_delay_ms"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. Env vars use the prefix LIFTLOG_ and underscore-separated
// paths:
//
//	LIFTLOG_SERVER_HOST, LIFTLOG_SERVER_PORT, LIFTLOG_DB_PATH,
//	LIFTLOG_API_KEY, LIFTLOG_TS_ENABLED, LIFTLOG_TS_HOSTNAME,
//	LIFTLOG_TS_STATE_DIR
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Session: SessionConfig{
			DefaultRestSeconds: 90,
			RestNotifications:  true,
		},
		Persistence: PersistenceConfig{
			BackgroundAttempts: 3,
			UrgentAttempts:     5,
			BaseDelayMS:        500,
			MaxDelayMS:         8000,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIFTLOG_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LIFTLOG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LIFTLOG_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LIFTLOG_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("LIFTLOG_TS_ENABLED"); v != "" {
		cfg.Tailscale.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LIFTLOG_TS_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("LIFTLOG_TS_STATE_DIR"); v != "" {
		cfg.Tailscale.StateDir = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Session.DefaultRestSeconds < 0 {
		return fmt.Errorf("session.default_rest_seconds must not be negative")
	}
	if c.Persistence.BackgroundAttempts < 1 || c.Persistence.UrgentAttempts < 1 {
		return fmt.Errorf("persistence attempts must be at least 1")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/keydeck/keydeck/internal/safefile"
	"gopkg.in/yaml.v3"
)

// maxConfigBytes caps the size of a config file read from disk.
const maxConfigBytes = 1 << 20

// PasswordEnv overrides backend.password for CLI commands.
const PasswordEnv = "KEYDECK_BACKEND_PASSWORD"

// Config is the top-level keydeck configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Session   SessionConfig   `yaml:"session"`
	Audit     AuditConfig     `yaml:"audit"`
	UI        UIConfig        `yaml:"ui"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds console HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel string `yaml:"log_level"`
}

// BackendConfig points the console at the key-rotation proxy it manages.
type BackendConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Password       string `yaml:"password,omitempty"` // CLI only; the web console always asks
}

// SessionConfig selects where console sessions live.
type SessionConfig struct {
	Store      string `yaml:"store"` // memory, redis
	RedisAddr  string `yaml:"redis_addr,omitempty"`
	TTLHours   int    `yaml:"ttl_hours"`
	CookieName string `yaml:"cookie_name"`
}

// AuditConfig configures the console action log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Driver        string `yaml:"driver"` // sqlite, postgres
	DSN           string `yaml:"dsn"`
	RetentionDays int    `yaml:"retention_days"` // 0 = keep forever
}

// UIConfig holds presentation settings. It is the only section reloaded at runtime.
type UIConfig struct {
	ToastMillis  int `yaml:"toast_ms"`
	HistoryLimit int `yaml:"history_limit"`
	ChartWidth   int `yaml:"chart_width"`
	ChartHeight  int `yaml:"chart_height"`
}

// TelemetryConfig toggles metrics and tracing.
type TelemetryConfig struct {
	Metrics bool `yaml:"metrics"`
	Tracing bool `yaml:"tracing"`
}

// Load reads and parses a keydeck config file.
func Load(path string) (*Config, error) {
	data, err := safefile.ReadFileMax(path, maxConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	cfg.fillZero()
	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8090,
			LogLevel: "info",
		},
		Backend: BackendConfig{
			URL:            "http://127.0.0.1:5000",
			TimeoutSeconds: 30,
		},
		Session: SessionConfig{
			Store:      "memory",
			TTLHours:   24,
			CookieName: "keydeck_session",
		},
		Audit: AuditConfig{
			Enabled: true,
			Driver:  "sqlite",
			DSN:     "keydeck.db",
		},
		UI: UIConfig{
			ToastMillis:  3000,
			HistoryLimit: 10,
			ChartWidth:   640,
			ChartHeight:  300,
		},
		Telemetry: TelemetryConfig{
			Metrics: true,
		},
	}
}

func (c *Config) fillZero() {
	d := Defaults()
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = d.Backend.TimeoutSeconds
	}
	if c.Session.Store == "" {
		c.Session.Store = d.Session.Store
	}
	if c.Session.TTLHours == 0 {
		c.Session.TTLHours = d.Session.TTLHours
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = d.Session.CookieName
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = d.Audit.Driver
	}
	if c.UI.ToastMillis == 0 {
		c.UI.ToastMillis = d.UI.ToastMillis
	}
	if c.UI.HistoryLimit == 0 {
		c.UI.HistoryLimit = d.UI.HistoryLimit
	}
	if c.UI.ChartWidth == 0 {
		c.UI.ChartWidth = d.UI.ChartWidth
	}
	if c.UI.ChartHeight == 0 {
		c.UI.ChartHeight = d.UI.ChartHeight
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url: %q", c.Backend.URL)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid backend timeout: %d", c.Backend.TimeoutSeconds)
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required when session.store is redis")
		}
	default:
		return fmt.Errorf("invalid session store %q", c.Session.Store)
	}
	if c.Audit.Enabled {
		switch c.Audit.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("invalid audit driver %q", c.Audit.Driver)
		}
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required when audit is enabled")
		}
	}
	if c.UI.HistoryLimit < 1 || c.UI.HistoryLimit > 100 {
		return fmt.Errorf("ui.history_limit must be between 1 and 100, got %d", c.UI.HistoryLimit)
	}
	if c.UI.ToastMillis < 500 {
		return fmt.Errorf("ui.toast_ms must be at least 500, got %d", c.UI.ToastMillis)
	}
	return nil
}

// BackendTimeout returns the backend request timeout.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// SessionTTL returns how long a console session stays valid.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// BackendPassword returns the CLI password, preferring the environment.
func (c *Config) BackendPassword() string {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw
	}
	return c.Backend.Password
}

// ABOUTME: Configuration loading and parsing for voyengo-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Database drivers
const (
	DriverSQLite   = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3  = "sqlite3" // mattn/go-sqlite3, needs cgo
	DriverPostgres = "postgres"
)

// Notify backends
const (
	NotifyMemory = "memory"
	NotifyRedis  = "redis"
)

// Config represents the complete voyengo-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale" toml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Notify      NotifyConfig      `yaml:"notify" toml:"notify"`
	Live        LiveConfig        `yaml:"live" toml:"live"`
	Store       StoreConfig       `yaml:"store" toml:"store"`
	Offers      OffersConfig      `yaml:"offers" toml:"offers"`
	Idempotency IdempotencyConfig `yaml:"idempotency" toml:"idempotency"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr" toml:"grpc_addr"`
	CORSOrigins     []string      `yaml:"cors_origins" toml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve HTTP on :443 with a tailnet cert
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose HTTP publicly (implies HTTPS)
}

// DatabaseConfig selects and locates the store backend
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"` // sqlite file
	DSN    string `yaml:"dsn" toml:"dsn"`   // postgres connection string
}

// AuthConfig holds identity token configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// NotifyConfig selects the change notification backend
type NotifyConfig struct {
	Backend       string `yaml:"backend" toml:"backend"`
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db"`
	ChannelPrefix string `yaml:"channel_prefix" toml:"channel_prefix"`
}

// LiveConfig tunes live subscriptions
type LiveConfig struct {
	ResyncInterval time.Duration `yaml:"-" toml:"-"`
	InboxLimit     int           `yaml:"inbox_limit" toml:"inbox_limit"`

	ResyncIntervalRaw string `yaml:"resync_interval" toml:"resync_interval"`
}

// StoreConfig tunes retries of idempotent store operations
type StoreConfig struct {
	RetryAttempts  int           `yaml:"retry_attempts" toml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"-" toml:"-"`

	RetryBaseDelayRaw string `yaml:"retry_base_delay" toml:"retry_base_delay"`
}

// OffersConfig bounds the offer listing
type OffersConfig struct {
	MaxPageSize int `yaml:"max_page_size" toml:"max_page_size"`
}

// IdempotencyConfig sizes the message resubmission cache
type IdempotencyConfig struct {
	TTL        time.Duration `yaml:"-" toml:"-"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // json or text
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw configuration, applies defaults and validates it.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// applyDefaults fills in zero values.
func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 30 * 24 * time.Hour
	}
	if c.Notify.Backend == "" {
		c.Notify.Backend = NotifyMemory
	}
	if c.Notify.ChannelPrefix == "" {
		c.Notify.ChannelPrefix = "voyengo:"
	}
	if c.Live.InboxLimit == 0 {
		c.Live.InboxLimit = 100
	}
	if c.Store.RetryAttempts == 0 {
		c.Store.RetryAttempts = 3
	}
	if c.Store.RetryBaseDelay == 0 {
		c.Store.RetryBaseDelay = 50 * time.Millisecond
	}
	if c.Offers.MaxPageSize == 0 {
		c.Offers.MaxPageSize = 50
	}
	if c.Idempotency.TTL == 0 {
		c.Idempotency.TTL = 10 * time.Minute
	}
	if c.Idempotency.MaxEntries == 0 {
		c.Idempotency.MaxEntries = 10_000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server addresses are required unless Tailscale is enabled
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required (or enable tailscale)")
		}
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverSQLite3:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, sqlite3, postgres", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	switch c.Notify.Backend {
	case NotifyMemory:
	case NotifyRedis:
		if c.Notify.RedisAddr == "" {
			return fmt.Errorf("notify.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("notify.backend %q is not one of memory, redis", c.Notify.Backend)
	}

	if c.Offers.MaxPageSize < 1 {
		return fmt.Errorf("offers.max_page_size must be positive")
	}
	if c.Store.RetryAttempts < 1 {
		return fmt.Errorf("store.retry_attempts must be at least 1")
	}
	if c.Live.ResyncInterval < 0 {
		return fmt.Errorf("live.resync_interval must not be negative")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"live.resync_interval", cfg.Live.ResyncIntervalRaw, &cfg.Live.ResyncInterval},
		{"store.retry_base_delay", cfg.Store.RetryBaseDelayRaw, &cfg.Store.RetryBaseDelay},
		{"idempotency.ttl", cfg.Idempotency.TTLRaw, &cfg.Idempotency.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// DefaultPath returns the path to the gateway config file.
// Priority: VOYENGO_CONFIG env var > XDG_CONFIG_HOME/voyengo/gateway.yaml > ~/.config/voyengo/gateway.yaml
func DefaultPath() string {
	if envPath := os.Getenv("VOYENGO_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "voyengo", "gateway.yaml")
}

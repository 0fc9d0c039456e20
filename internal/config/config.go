package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Backend   BackendConfig   `yaml:"backend"`
	Directory DirectoryConfig `yaml:"directory"`
	Audit     AuditConfig     `yaml:"audit"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"` // Failed login throttling
	Seed      SeedConfig      `yaml:"seed"`
	Nginx     NginxConfig     `yaml:"nginx"`
	Traefik   TraefikConfig   `yaml:"traefik"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"` // Prometheus metrics configuration
}

// ServerConfig contains server-wide settings
type ServerConfig struct {
	Name string `yaml:"name"` // Context name used as broadcast source (default: hostname)
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout     time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs      []string      `yaml:"allowed_ips"`      // Static IPs/CIDRs allowed on admin routes (empty = allow all)
	TrustedProxies  []string      `yaml:"trusted_proxies"`  // Peers whose X-Forwarded-For/X-Real-IP is honoured
	EventsPingEvery time.Duration `yaml:"events_ping_every"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig enables HTTPS on the API listener when both files are set
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether a certificate is configured
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// StorageConfig contains local record store settings
type StorageConfig struct {
	Path        string        `yaml:"path"`
	OpenTimeout time.Duration `yaml:"open_timeout"` // bbolt file lock wait
}

// BroadcastConfig selects the change notification transport
type BroadcastConfig struct {
	Driver  string      `yaml:"driver"` // local, redis
	Channel string      `yaml:"channel"`
	Buffer  int         `yaml:"buffer"` // per-endpoint queue length
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// BackendConfig contains PostgreSQL backend settings
type BackendConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	NotifyChannel   string        `yaml:"notify_channel"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DirectoryConfig selects where the public directory reads extensions
type DirectoryConfig struct {
	Source string `yaml:"source"` // local, backend
}

// AuditConfig contains audit log settings
type AuditConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// AuthConfig contains admin login settings
type AuthConfig struct {
	SharedPassword string        `yaml:"shared_password"`
	PasswordHash   string        `yaml:"password_hash"` // bcrypt, takes precedence over shared_password
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
}

// RateLimitConfig limits failed admin logins
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Limits across all clients
	Global *LimitValues `yaml:"global,omitempty"`

	// Limits per client IP (default: 20/hour, 100/day when enabled)
	PerIP *LimitValues `yaml:"per_ip,omitempty"`

	// Limits per login email (default: 10/hour, 50/day when enabled)
	PerEmail *LimitValues `yaml:"per_email,omitempty"`

	FlushInterval time.Duration `yaml:"flush_interval"` // Counter persistence interval (default: 10s)
}

// LimitValues contains rate limit values
type LimitValues struct {
	FailuresPerHour int `yaml:"failures_per_hour"`
	FailuresPerDay  int `yaml:"failures_per_day"`
}

// SeedConfig controls first-run sample data
type SeedConfig struct {
	Enabled *bool `yaml:"enabled"` // default: true
}

// NginxConfig points at the nginx file holding the allow block
type NginxConfig struct {
	ConfPath   string `yaml:"conf_path"`
	BackupPath string `yaml:"backup_path"`
}

// TraefikConfig points at the Traefik dynamic configuration file
type TraefikConfig struct {
	DynamicConfigPath string `yaml:"dynamic_config_path"`
	BackupPath        string `yaml:"backup_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to access metrics
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		hostname, _ := os.Hostname()
		c.Server.Name = hostname
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}
	if c.API.EventsPingEvery == 0 {
		c.API.EventsPingEvery = 30 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/phonebook/phonebook.db"
	}
	if c.Storage.OpenTimeout == 0 {
		c.Storage.OpenTimeout = time.Second
	}

	if c.Broadcast.Driver == "" {
		c.Broadcast.Driver = "local"
	}
	if c.Broadcast.Channel == "" {
		c.Broadcast.Channel = "extensions_sync"
	}
	if c.Broadcast.Buffer == 0 {
		c.Broadcast.Buffer = 64
	}
	if c.Broadcast.Redis.DialTimeout == 0 {
		c.Broadcast.Redis.DialTimeout = 5 * time.Second
	}

	if c.Backend.NotifyChannel == "" {
		c.Backend.NotifyChannel = "phonebook_changes"
	}
	if c.Backend.MaxConns == 0 {
		c.Backend.MaxConns = 10
	}
	if c.Backend.ConnectTimeout == 0 {
		c.Backend.ConnectTimeout = 10 * time.Second
	}
	if c.Backend.QueryTimeout == 0 {
		c.Backend.QueryTimeout = 5 * time.Second
	}

	if c.Directory.Source == "" {
		c.Directory.Source = "local"
	}

	if c.Audit.MaxEntries == 0 {
		c.Audit.MaxEntries = 1000
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.PerIP == nil {
			c.RateLimit.PerIP = &LimitValues{FailuresPerHour: 20, FailuresPerDay: 100}
		}
		if c.RateLimit.PerEmail == nil {
			c.RateLimit.PerEmail = &LimitValues{FailuresPerHour: 10, FailuresPerDay: 50}
		}
		if c.RateLimit.FlushInterval == 0 {
			c.RateLimit.FlushInterval = 10 * time.Second
		}
	}

	if c.Seed.Enabled == nil {
		enabled := true
		c.Seed.Enabled = &enabled
	}

	if c.Nginx.ConfPath == "" {
		c.Nginx.ConfPath = "/etc/nginx/nginx.conf"
	}
	if c.Nginx.BackupPath == "" {
		c.Nginx.BackupPath = c.Nginx.ConfPath + ".backup"
	}

	if c.Traefik.DynamicConfigPath == "" {
		c.Traefik.DynamicConfigPath = "/etc/traefik/dynamic/ipwhitelist.yml"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Metrics defaults
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.PasswordHash != "" && !strings.HasPrefix(c.Auth.PasswordHash, "$2") {
		return fmt.Errorf("auth.password_hash must be a bcrypt hash")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	for _, p := range c.API.TrustedProxies {
		if !validNet(strings.TrimSpace(p)) {
			return fmt.Errorf("invalid api.trusted_proxies entry: %s", p)
		}
	}

	if (c.API.TLS.CertFile == "") != (c.API.TLS.KeyFile == "") {
		return fmt.Errorf("api.tls requires both cert_file and key_file")
	}

	if c.Audit.MaxEntries < 0 {
		return fmt.Errorf("audit.max_entries must not be negative")
	}

	for name, v := range map[string]*LimitValues{
		"global":    c.RateLimit.Global,
		"per_ip":    c.RateLimit.PerIP,
		"per_email": c.RateLimit.PerEmail,
	} {
		if v != nil && (v.FailuresPerHour < 0 || v.FailuresPerDay < 0) {
			return fmt.Errorf("rate_limit.%s values must not be negative", name)
		}
	}

	if err := c.validateBroadcast(); err != nil {
		return err
	}

	if err := c.validateBackend(); err != nil {
		return err
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// validateBroadcast validates the transport selection
func (c *Config) validateBroadcast() error {
	switch c.Broadcast.Driver {
	case "local":
	case "redis":
		if c.Broadcast.Redis.Addr == "" {
			return fmt.Errorf("broadcast.redis.addr is required when driver is redis")
		}
	default:
		return fmt.Errorf("invalid broadcast.driver: %s (must be local or redis)", c.Broadcast.Driver)
	}

	if c.Broadcast.Buffer < 0 {
		return fmt.Errorf("broadcast.buffer must not be negative")
	}
	return nil
}

// validateBackend validates the backend and directory source settings
func (c *Config) validateBackend() error {
	if c.Backend.Enabled && c.Backend.DSN == "" {
		return fmt.Errorf("backend.dsn is required when backend is enabled")
	}
	if c.Backend.MinConns > c.Backend.MaxConns {
		return fmt.Errorf("backend.min_conns must not exceed backend.max_conns")
	}

	switch c.Directory.Source {
	case "local":
	case "backend":
		if !c.Backend.Enabled {
			return fmt.Errorf("directory.source backend requires backend.enabled")
		}
	default:
		return fmt.Errorf("invalid directory.source: %s (must be local or backend)", c.Directory.Source)
	}
	return nil
}

// SeedEnabled reports whether sample data is written on first run
func (c *Config) SeedEnabled() bool {
	return c.Seed.Enabled == nil || *c.Seed.Enabled
}

// validNet accepts a single IP or a CIDR
func validNet(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

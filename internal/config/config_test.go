package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  name: "desk-1"

api:
  listen_addr: ":9080"
  allowed_ips:
    - "10.0.0.0/8"

storage:
  path: "/tmp/test.db"
  open_timeout: 2s

broadcast:
  driver: "redis"
  channel: "sync"
  redis:
    addr: "localhost:6379"
    db: 2

backend:
  enabled: true
  dsn: "postgres://phonebook@localhost/phonebook"
  max_conns: 4
  min_conns: 1
  query_timeout: 3s

directory:
  source: "backend"

audit:
  max_entries: 50

auth:
  jwt_secret: "0123456789abcdef0123"
  token_ttl: 1h

seed:
  enabled: false

nginx:
  conf_path: "/tmp/nginx.conf"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Name != "desk-1" {
		t.Errorf("Server.Name = %v, want desk-1", cfg.Server.Name)
	}
	if cfg.API.ListenAddr != ":9080" {
		t.Errorf("API.ListenAddr = %v, want :9080", cfg.API.ListenAddr)
	}
	if len(cfg.API.AllowedIPs) != 1 {
		t.Errorf("API.AllowedIPs = %v, want one entry", cfg.API.AllowedIPs)
	}
	if cfg.Storage.OpenTimeout != 2*time.Second {
		t.Errorf("Storage.OpenTimeout = %v, want 2s", cfg.Storage.OpenTimeout)
	}
	if cfg.Broadcast.Driver != "redis" || cfg.Broadcast.Redis.DB != 2 {
		t.Errorf("Broadcast = %+v", cfg.Broadcast)
	}
	if cfg.Broadcast.Channel != "sync" {
		t.Errorf("Broadcast.Channel = %v, want sync", cfg.Broadcast.Channel)
	}
	if !cfg.Backend.Enabled || cfg.Backend.MaxConns != 4 || cfg.Backend.QueryTimeout != 3*time.Second {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Directory.Source != "backend" {
		t.Errorf("Directory.Source = %v, want backend", cfg.Directory.Source)
	}
	if cfg.Audit.MaxEntries != 50 {
		t.Errorf("Audit.MaxEntries = %v, want 50", cfg.Audit.MaxEntries)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 1h", cfg.Auth.TokenTTL)
	}
	if cfg.SeedEnabled() {
		t.Error("SeedEnabled() = true, want false")
	}
	if cfg.Nginx.BackupPath != "/tmp/nginx.conf.backup" {
		t.Errorf("Nginx.BackupPath = %v", cfg.Nginx.BackupPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
auth:
  jwt_secret: "0123456789abcdef0123"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("API.ListenAddr = %v, want :8080", cfg.API.ListenAddr)
	}
	if cfg.Storage.Path != "/var/lib/phonebook/phonebook.db" {
		t.Errorf("Storage.Path = %v", cfg.Storage.Path)
	}
	if cfg.Broadcast.Driver != "local" || cfg.Broadcast.Channel != "extensions_sync" || cfg.Broadcast.Buffer != 64 {
		t.Errorf("Broadcast = %+v", cfg.Broadcast)
	}
	if cfg.Backend.NotifyChannel != "phonebook_changes" {
		t.Errorf("Backend.NotifyChannel = %v", cfg.Backend.NotifyChannel)
	}
	if cfg.Directory.Source != "local" {
		t.Errorf("Directory.Source = %v, want local", cfg.Directory.Source)
	}
	if cfg.Audit.MaxEntries != 1000 {
		t.Errorf("Audit.MaxEntries = %v, want 1000", cfg.Audit.MaxEntries)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 12h", cfg.Auth.TokenTTL)
	}
	if !cfg.SeedEnabled() {
		t.Error("SeedEnabled() = false, want true")
	}
	if cfg.Server.Name == "" {
		t.Error("Server.Name should default to the hostname")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
	if cfg.Metrics.ListenAddr != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.PerIP != nil {
		t.Errorf("RateLimit should stay off by default: %+v", cfg.RateLimit)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{Auth: AuthConfig{JWTSecret: testSecret}}
		c.setDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "short jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: true},
		{name: "password hash not bcrypt", mutate: func(c *Config) { c.Auth.PasswordHash = "plain" }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "invalid" }, wantErr: true},
		{name: "invalid log format", mutate: func(c *Config) { c.Logging.Format = "invalid" }, wantErr: true},
		{name: "negative audit cap", mutate: func(c *Config) { c.Audit.MaxEntries = -1 }, wantErr: true},
		{name: "unknown broadcast driver", mutate: func(c *Config) { c.Broadcast.Driver = "kafka" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) { c.Broadcast.Driver = "redis" }, wantErr: true},
		{
			name:   "redis with addr",
			mutate: func(c *Config) { c.Broadcast.Driver = "redis"; c.Broadcast.Redis.Addr = "localhost:6379" },
		},
		{name: "backend without dsn", mutate: func(c *Config) { c.Backend.Enabled = true }, wantErr: true},
		{name: "min conns above max", mutate: func(c *Config) { c.Backend.MinConns = 20 }, wantErr: true},
		{name: "backend directory without backend", mutate: func(c *Config) { c.Directory.Source = "backend" }, wantErr: true},
		{name: "unknown directory source", mutate: func(c *Config) { c.Directory.Source = "ldap" }, wantErr: true},
		{name: "invalid trusted proxy", mutate: func(c *Config) { c.API.TrustedProxies = []string{"lb.internal"} }, wantErr: true},
		{name: "trusted proxies", mutate: func(c *Config) { c.API.TrustedProxies = []string{"127.0.0.1", "10.0.0.0/8"} }},
		{name: "tls cert without key", mutate: func(c *Config) { c.API.TLS.CertFile = "/etc/phonebook/cert.pem" }, wantErr: true},
		{
			name: "tls cert and key",
			mutate: func(c *Config) {
				c.API.TLS = TLSConfig{CertFile: "/etc/phonebook/cert.pem", KeyFile: "/etc/phonebook/key.pem"}
			},
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RateLimit.Global = &LimitValues{FailuresPerHour: -1} },
			wantErr: true,
		},
		{
			name: "metrics path without slash",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Path = "metrics"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateLimitDefaults(t *testing.T) {
	cfg := Config{
		Auth:      AuthConfig{JWTSecret: testSecret},
		RateLimit: RateLimitConfig{Enabled: true, PerEmail: &LimitValues{FailuresPerHour: 3}},
	}
	cfg.setDefaults()

	if cfg.RateLimit.PerIP == nil || cfg.RateLimit.PerIP.FailuresPerHour != 20 || cfg.RateLimit.PerIP.FailuresPerDay != 100 {
		t.Errorf("PerIP = %+v, want 20/100", cfg.RateLimit.PerIP)
	}
	if cfg.RateLimit.PerEmail.FailuresPerHour != 3 || cfg.RateLimit.PerEmail.FailuresPerDay != 0 {
		t.Errorf("PerEmail = %+v, explicit values must be kept", cfg.RateLimit.PerEmail)
	}
	if cfg.RateLimit.FlushInterval != 10*time.Second {
		t.Errorf("FlushInterval = %v, want 10s", cfg.RateLimit.FlushInterval)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `invalid: yaml: content: [`))
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	if err == nil {
		t.Error("Load() expected error without auth.jwt_secret")
	}
}

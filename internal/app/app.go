package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/phonebook/internal/api"
	"github.com/foxzi/phonebook/internal/audit"
	"github.com/foxzi/phonebook/internal/backend"
	"github.com/foxzi/phonebook/internal/broadcast"
	"github.com/foxzi/phonebook/internal/config"
	"github.com/foxzi/phonebook/internal/directory"
	"github.com/foxzi/phonebook/internal/ipfilter"
	"github.com/foxzi/phonebook/internal/metrics"
	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/ratelimit"
	"github.com/foxzi/phonebook/internal/realtime"
	"github.com/foxzi/phonebook/internal/repository"
	"github.com/foxzi/phonebook/internal/session"
	"github.com/foxzi/phonebook/internal/store"
	phonebookTLS "github.com/foxzi/phonebook/internal/tls"
)

// Endpoint names on the broadcast transport. Repositories publish as
// "api"; watchers listen as "watchers" so they see the API's writes.
const (
	endpointAPI      = "api"
	endpointWatchers = "watchers"
)

// Backend tables pushed to event clients without a local snapshot
var feedOnlyTables = []string{"departments", "technicians"}

// App is the main application
type App struct {
	config    *config.Config
	logger    *slog.Logger
	storage   *store.BoltStorage
	transport broadcast.Transport
	publisher broadcast.Broadcaster
	listener  broadcast.Broadcaster
	backend   *backend.Client

	extensions *realtime.Watcher[[]models.Extension]
	queues     *realtime.Watcher[[]models.Queue]
	allowedIPs *realtime.Watcher[[]models.AllowedIP]

	filter        *ipfilter.Filter
	limiter       *ratelimit.Limiter
	events        *api.EventHub
	apiServer     *api.Server
	metricsServer *metrics.Server
	unsubscribe   []func()
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	m := metrics.New()
	metrics.SetGlobal(m)

	storage, err := store.NewBoltStorage(cfg.Storage.Path, cfg.Storage.OpenTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	a := &App{
		config:  cfg,
		logger:  logger,
		storage: storage,
		filter:  ipfilter.New(cfg.API.AllowedIPs, logger.With("component", "ipfilter")),
		events:  api.NewEventHub(cfg.API.EventsPingEvery, logger),
	}

	if err := a.setup(ctx, m); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) setup(ctx context.Context, m *metrics.Metrics) error {
	cfg := a.config
	logger := a.logger

	transport, err := OpenTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.transport = transport
	a.publisher = transport.Join(cfg.Server.Name + "/" + endpointAPI)
	a.listener = transport.Join(cfg.Server.Name + "/" + endpointWatchers)

	auditLog := audit.New(a.storage, a.publisher, cfg.Audit.MaxEntries, logger.With("component", "audit"))
	repos := repository.New(repository.Deps{
		Store:       a.storage,
		Broadcaster: a.publisher,
		Audit:       auditLog,
		Logger:      logger.With("component", "repository"),
	})

	if cfg.SeedEnabled() {
		seeded, err := repos.Seed(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
		if seeded {
			logger.Info("seeded sample data", "admin", repository.SeedAdminEmail)
		}
	}

	tokens, err := session.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	sessions := session.NewManager(a.storage, repos.Users, session.Options{
		PasswordHash:   cfg.Auth.PasswordHash,
		SharedPassword: cfg.Auth.SharedPassword,
	}, logger.With("component", "session"))

	if cfg.Backend.Enabled {
		a.backend, err = backend.Connect(ctx, backend.Config{
			DSN:             cfg.Backend.DSN,
			MaxConns:        cfg.Backend.MaxConns,
			MinConns:        cfg.Backend.MinConns,
			MaxConnLifetime: cfg.Backend.MaxConnLifetime,
			ConnectTimeout:  cfg.Backend.ConnectTimeout,
		}, cfg.Backend.NotifyChannel, cfg.Backend.QueryTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to connect backend: %w", err)
		}
		logger.Info("backend connected", "notify_channel", cfg.Backend.NotifyChannel)
	}

	if cfg.RateLimit.Enabled {
		a.limiter, err = ratelimit.NewLimiter(a.storage.DB(), &ratelimit.Config{
			Global:        limitConfig(cfg.RateLimit.Global),
			PerIP:         limitConfig(cfg.RateLimit.PerIP),
			PerEmail:      limitConfig(cfg.RateLimit.PerEmail),
			FlushInterval: cfg.RateLimit.FlushInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to create login limiter: %w", err)
		}
		logger.Info("login rate limiting enabled")
	}

	proxies, err := ipfilter.NewTrustedProxies(cfg.API.TrustedProxies)
	if err != nil {
		return err
	}
	a.filter.SetTrustedProxies(proxies)

	var serverTLS *tls.Config
	if cfg.API.TLS.Enabled() {
		serverTLS, err = phonebookTLS.LoadCertificate(cfg.API.TLS.CertFile, cfg.API.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load API certificate: %w", err)
		}
	}

	a.setupWatchers(repos)

	a.apiServer = api.NewServer(api.Deps{
		Repos:     repos,
		Audit:     auditLog,
		Sessions:  sessions,
		Tokens:    tokens,
		Directory: directory.New(a.extensions.Data, a.queues.Data),
		Filter:    a.filter,
		Proxies:   proxies,
		Backend:   a.backend,
		Events:    a.events,
		Limiter:   a.limiter,
		TLS:       serverTLS,
		Nginx:     cfg.Nginx,
		Traefik:   cfg.Traefik,

		BackendExtensions: cfg.Directory.Source == "backend" && a.backend != nil,
	}, &cfg.API, logger)

	if cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.metricsServer.SetStorageSize(a.storage.SizeBytes)
	}
	return nil
}

// setupWatchers builds the snapshots behind the public directory and the
// admin allowlist. Directory extensions come from the local store or the
// backend depending on directory.source.
func (a *App) setupWatchers(repos *repository.Repositories) {
	local := realtime.NewBroadcastSource(a.listener)
	logger := a.logger.With("component", "realtime")

	if a.config.Directory.Source == "backend" && a.backend != nil {
		a.extensions = realtime.NewWatcher("extensions", a.backend.Extensions.List, a.backend.Feed, "extensions", logger)
	} else {
		a.extensions = realtime.NewWatcher("extensions", func(context.Context) ([]models.Extension, error) {
			return repos.Extensions.List(), nil
		}, local, broadcast.TypeExtensions, logger)
	}

	a.queues = realtime.NewWatcher("queues", func(context.Context) ([]models.Queue, error) {
		return repos.Queues.List(), nil
	}, local, broadcast.TypeQueues, logger)

	a.unsubscribe = append(a.unsubscribe,
		a.extensions.OnChange(func([]models.Extension) {
			a.events.Publish(broadcast.Changed(broadcast.TypeExtensions))
		}),
		a.queues.OnChange(func([]models.Queue) {
			a.events.Publish(broadcast.Changed(broadcast.TypeQueues))
		}),
	)

	if a.backend == nil {
		return
	}

	a.allowedIPs = realtime.NewWatcher("allowed_ips", func(ctx context.Context) ([]models.AllowedIP, error) {
		return a.backend.AllowedIPs.List(ctx, true)
	}, a.backend.Feed, "allowed_ips", logger)
	a.unsubscribe = append(a.unsubscribe, a.allowedIPs.OnChange(a.reloadFilter))

	for _, table := range feedOnlyTables {
		a.unsubscribe = append(a.unsubscribe, a.backend.Feed.Subscribe(table, func() {
			a.events.Publish(broadcast.Changed(table))
		}))
	}
}

func limitConfig(v *config.LimitValues) *ratelimit.LimitConfig {
	if v == nil {
		return nil
	}
	return &ratelimit.LimitConfig{FailuresPerHour: v.FailuresPerHour, FailuresPerDay: v.FailuresPerDay}
}

// reloadFilter merges the static allowlist with the backend entries
func (a *App) reloadFilter(entries []models.AllowedIP) {
	merged := StaticAllowlist(a.config.API.AllowedIPs)
	merged = append(merged, entries...)
	a.filter.Reload(merged)
}

// StaticAllowlist converts configured IPs/CIDRs to active allowlist entries
func StaticAllowlist(ips []string) []models.AllowedIP {
	out := make([]models.AllowedIP, 0, len(ips))
	for _, ip := range ips {
		out = append(out, models.AllowedIP{IP: ip, Active: true})
	}
	return out
}

// OpenTransport creates the broadcast transport selected by broadcast.driver
func OpenTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (broadcast.Transport, error) {
	logger = logger.With("component", "broadcast")

	switch cfg.Broadcast.Driver {
	case "redis":
		client, err := broadcast.OpenRedis(ctx, broadcast.RedisConfig{
			Addr:        cfg.Broadcast.Redis.Addr,
			Password:    cfg.Broadcast.Redis.Password,
			DB:          cfg.Broadcast.Redis.DB,
			DialTimeout: cfg.Broadcast.Redis.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		logger.Info("redis broadcast enabled", "addr", cfg.Broadcast.Redis.Addr, "channel", cfg.Broadcast.Channel)
		return broadcast.NewRedisTransport(client, cfg.Broadcast.Channel, cfg.Broadcast.Buffer, logger), nil
	default:
		return broadcast.NewHub(cfg.Broadcast.Buffer, logger), nil
	}
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting phonebook",
		"name", a.config.Server.Name,
		"api_addr", a.config.API.ListenAddr,
		"directory_source", a.config.Directory.Source,
		"broadcast", a.config.Broadcast.Driver,
		"backend", a.backend != nil,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 3)

	if a.backend != nil {
		go func() {
			if err := a.backend.Feed.Run(ctx); err != nil {
				errCh <- fmt.Errorf("backend feed: %w", err)
			}
		}()
	}

	a.StartWatchers(ctx)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// StartWatchers loads the directory and allowlist snapshots and follows
// their changes until ctx ends
func (a *App) StartWatchers(ctx context.Context) {
	a.extensions.Start(ctx)
	a.queues.Start(ctx)
	if a.allowedIPs != nil {
		a.allowedIPs.Start(ctx)
		a.reloadFilter(a.allowedIPs.Data())
	}
}

// Handler returns the API router for serving on a caller-owned listener
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.close()
	a.logger.Info("shutdown complete")
	return nil
}

// close releases watchers, transport, backend and storage in reverse
// order of creation. Safe on a partially built App.
func (a *App) close() {
	for _, fn := range a.unsubscribe {
		fn()
	}
	a.unsubscribe = nil

	if a.allowedIPs != nil {
		a.allowedIPs.Close()
	}
	if a.queues != nil {
		a.queues.Close()
	}
	if a.extensions != nil {
		a.extensions.Close()
	}

	for _, b := range []broadcast.Broadcaster{a.listener, a.publisher} {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			a.logger.Warn("broadcast endpoint close error", "error", err)
		}
	}
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.logger.Warn("broadcast transport close error", "error", err)
		}
	}

	if a.backend != nil {
		a.backend.Close()
	}

	// Stop persists counters
	if a.limiter != nil {
		if err := a.limiter.Stop(); err != nil {
			a.logger.Error("login limiter stop error", "error", err)
		}
	}

	if err := a.storage.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

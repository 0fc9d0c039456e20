package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/foxzi/phonebook/internal/audit"
	"github.com/foxzi/phonebook/internal/broadcast"
	"github.com/foxzi/phonebook/internal/config"
	"github.com/foxzi/phonebook/internal/repository"
	"github.com/foxzi/phonebook/internal/session"
	"github.com/foxzi/phonebook/internal/store"
)

// workspace is a CLI context on the local record store. bbolt locks the
// file for its opener, so a workspace only opens while no server holds the
// store; with --server the CLI edits through the running server instead.
type workspace struct {
	cfg       *config.Config
	logger    *slog.Logger
	storage   *store.BoltStorage
	transport *broadcast.Hub
	endpoint  broadcast.Broadcaster
	audit     *audit.Logger
	repos     *repository.Repositories
	sessions  *session.Manager
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func openWorkspace(_ context.Context) (*workspace, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cliLogger()

	storage, err := store.NewBoltStorage(cfg.Storage.Path, cfg.Storage.OpenTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open store (server running? use --server): %w", err)
	}

	transport := broadcast.NewHub(cfg.Broadcast.Buffer, logger)
	endpoint := transport.Join(cfg.Server.Name + "/cli")

	auditLog := audit.New(storage, endpoint, cfg.Audit.MaxEntries, logger)
	repos := repository.New(repository.Deps{
		Store:       storage,
		Broadcaster: endpoint,
		Audit:       auditLog,
		Logger:      logger,
	})

	return &workspace{
		cfg:       cfg,
		logger:    logger,
		storage:   storage,
		transport: transport,
		endpoint:  endpoint,
		audit:     auditLog,
		repos:     repos,
		sessions: session.NewManager(storage, repos.Users, session.Options{
			PasswordHash:   cfg.Auth.PasswordHash,
			SharedPassword: cfg.Auth.SharedPassword,
		}, logger),
	}, nil
}

// session returns the identity of the logged-in CLI user
func (w *workspace) session() *session.Session {
	s := w.sessions.Current()
	if host, err := os.Hostname(); err == nil {
		s.UserAgent = "phonebook-cli/" + version + " (" + host + ")"
	}
	return s
}

func (w *workspace) Close() {
	w.endpoint.Close()
	w.transport.Close()
	w.storage.Close()
}

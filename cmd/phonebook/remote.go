package main

import (
	"context"
	"os"

	"github.com/foxzi/phonebook/internal/client"
	"github.com/foxzi/phonebook/internal/models"
)

var (
	serverURL   string
	serverToken string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", os.Getenv("PHONEBOOK_SERVER"), "running server URL; edits go through its API (env PHONEBOOK_SERVER)")
	rootCmd.PersistentFlags().StringVar(&serverToken, "token", os.Getenv("PHONEBOOK_TOKEN"), "bearer token for --server (env PHONEBOOK_TOKEN)")
}

// directoryOps is what the extension and audit commands need, served
// either by the local store or by a running server
type directoryOps interface {
	Queues(ctx context.Context) ([]models.Queue, error)
	Extensions(ctx context.Context, department string) ([]models.Extension, error)
	AddExtension(ctx context.Context, in models.ExtensionInput) (*models.Extension, error)
	UpdateExtension(ctx context.Context, id string, patch models.ExtensionPatch) (*models.Extension, error)
	DeleteExtension(ctx context.Context, id string) error
	AuditLogs(ctx context.Context, f models.AuditLogFilter) ([]models.AuditLog, error)
	Close()
}

// remote returns an API client when --server is set
func remote() *client.Client {
	if serverURL == "" {
		return nil
	}
	return client.New(serverURL, serverToken)
}

func openOps(ctx context.Context) (directoryOps, error) {
	if c := remote(); c != nil {
		return remoteOps{c}, nil
	}
	ws, err := openWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	return localOps{ws}, nil
}

type remoteOps struct {
	*client.Client
}

func (remoteOps) Close() {}

// localOps runs the commands against the workspace as the logged-in user.
// Missing ids are reported as client.ErrNotFound like the remote side.
type localOps struct {
	ws *workspace
}

func (l localOps) Queues(context.Context) ([]models.Queue, error) {
	return l.ws.repos.Queues.List(), nil
}

func (l localOps) Extensions(_ context.Context, department string) ([]models.Extension, error) {
	all := l.ws.repos.Extensions.List()
	if department == "" {
		return all, nil
	}
	var out []models.Extension
	for _, e := range all {
		if e.Department == department {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l localOps) AddExtension(ctx context.Context, in models.ExtensionInput) (*models.Extension, error) {
	return l.ws.repos.Extensions.Add(ctx, l.ws.session(), in)
}

func (l localOps) UpdateExtension(ctx context.Context, id string, patch models.ExtensionPatch) (*models.Extension, error) {
	e, err := l.ws.repos.Extensions.Update(ctx, l.ws.session(), id, patch)
	if err == nil && e == nil {
		return nil, client.ErrNotFound
	}
	return e, err
}

func (l localOps) DeleteExtension(ctx context.Context, id string) error {
	deleted, err := l.ws.repos.Extensions.Delete(ctx, l.ws.session(), id)
	if err == nil && !deleted {
		return client.ErrNotFound
	}
	return err
}

func (l localOps) AuditLogs(_ context.Context, f models.AuditLogFilter) ([]models.AuditLog, error) {
	return l.ws.audit.Filter(f), nil
}

func (l localOps) Close() {
	l.ws.Close()
}

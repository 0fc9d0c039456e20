package api

import (
	"context"
	"errors"

	"github.com/foxzi/phonebook/internal/audit"
	"github.com/foxzi/phonebook/internal/backend"
	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/repository"
	"github.com/foxzi/phonebook/internal/session"
	"github.com/foxzi/phonebook/internal/store"
)

// extensionStore is where admin extension reads and writes go. Lookups
// return nil, nil (or false) when the extension does not exist.
type extensionStore interface {
	List(ctx context.Context, department string) ([]models.Extension, error)
	Get(ctx context.Context, id string) (*models.Extension, error)
	GetByNumber(ctx context.Context, number string) (*models.Extension, error)
	Add(ctx context.Context, sess *session.Session, in models.ExtensionInput) (*models.Extension, error)
	Update(ctx context.Context, sess *session.Session, id string, patch models.ExtensionPatch) (*models.Extension, error)
	Delete(ctx context.Context, sess *session.Session, id string) (bool, error)
}

// extensions picks the store the public directory reads from
func (s *Server) extensions() extensionStore {
	if s.BackendExtensions && s.Backend != nil {
		return &backendExtensions{repo: s.Backend.Extensions, audit: s.Audit}
	}
	return localExtensions{repo: s.Repos.Extensions}
}

// localExtensions serves the bbolt collection
type localExtensions struct {
	repo *repository.Extensions
}

func (l localExtensions) List(_ context.Context, department string) ([]models.Extension, error) {
	all := l.repo.List()
	if department == "" {
		return all, nil
	}
	out := make([]models.Extension, 0, len(all))
	for _, e := range all {
		if e.Department == department {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l localExtensions) Get(_ context.Context, id string) (*models.Extension, error) {
	e, _ := l.repo.Get(id)
	return e, nil
}

func (l localExtensions) GetByNumber(_ context.Context, number string) (*models.Extension, error) {
	return l.repo.GetByNumber(number), nil
}

func (l localExtensions) Add(ctx context.Context, sess *session.Session, in models.ExtensionInput) (*models.Extension, error) {
	return l.repo.Add(ctx, sess, in)
}

func (l localExtensions) Update(ctx context.Context, sess *session.Session, id string, patch models.ExtensionPatch) (*models.Extension, error) {
	return l.repo.Update(ctx, sess, id, patch)
}

func (l localExtensions) Delete(ctx context.Context, sess *session.Session, id string) (bool, error) {
	return l.repo.Delete(ctx, sess, id)
}

// backendExtensions serves the PostgreSQL table. Writes are audited here
// since the backend repository does not know the acting session; the change
// feed refreshes the directory.
type backendExtensions struct {
	repo  *backend.Extensions
	audit *audit.Logger
}

func (b *backendExtensions) List(ctx context.Context, department string) ([]models.Extension, error) {
	if department != "" {
		return b.repo.ListByDepartment(ctx, department)
	}
	return b.repo.List(ctx)
}

func (b *backendExtensions) Get(ctx context.Context, id string) (*models.Extension, error) {
	return absent(b.repo.Get(ctx, id))
}

func (b *backendExtensions) GetByNumber(ctx context.Context, number string) (*models.Extension, error) {
	return absent(b.repo.GetByNumber(ctx, number))
}

func (b *backendExtensions) Add(ctx context.Context, sess *session.Session, in models.ExtensionInput) (*models.Extension, error) {
	e, err := b.repo.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	b.audit.Log(ctx, sess, models.ActionCreate, store.KeyExtensions, e.ID, nil, e)
	return e, nil
}

func (b *backendExtensions) Update(ctx context.Context, sess *session.Session, id string, patch models.ExtensionPatch) (*models.Extension, error) {
	old, err := b.Get(ctx, id)
	if err != nil || old == nil {
		return nil, err
	}
	e, err := absent(b.repo.Update(ctx, id, patch))
	if err != nil || e == nil {
		return nil, err
	}
	b.audit.Log(ctx, sess, models.ActionUpdate, store.KeyExtensions, id, old, e)
	return e, nil
}

func (b *backendExtensions) Delete(ctx context.Context, sess *session.Session, id string) (bool, error) {
	old, err := b.Get(ctx, id)
	if err != nil || old == nil {
		return false, err
	}
	if err := b.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	b.audit.Log(ctx, sess, models.ActionDelete, store.KeyExtensions, id, old, nil)
	return true, nil
}

// absent turns backend.ErrNotFound into nil, nil
func absent(e *models.Extension, err error) (*models.Extension, error) {
	if errors.Is(err, backend.ErrNotFound) {
		return nil, nil
	}
	return e, err
}

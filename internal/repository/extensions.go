package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/session"
	"github.com/foxzi/phonebook/internal/store"
)

// Extensions is the local extension collection
type Extensions struct {
	c *collection[models.Extension]
}

// NewExtensions creates the extension repository
func NewExtensions(deps Deps) *Extensions {
	return &Extensions{c: newCollection(store.KeyExtensions, deps, accessors[models.Extension]{
		id:        func(e *models.Extension) string { return e.ID },
		updatedAt: func(e *models.Extension) time.Time { return e.UpdatedAt },
		touch:     func(e *models.Extension, t time.Time) { e.UpdatedAt = t },
	})}
}

// List returns every extension
func (r *Extensions) List() []models.Extension {
	return r.c.list()
}

// Get returns the extension with the given id
func (r *Extensions) Get(id string) (*models.Extension, bool) {
	return r.c.get(id)
}

// GetByNumber returns the earliest-created extension with the given
// number, or nil. Numbers are not unique.
func (r *Extensions) GetByNumber(number string) *models.Extension {
	var found *models.Extension
	for _, e := range r.c.list() {
		if e.Number != number {
			continue
		}
		if found == nil || e.CreatedAt.Before(found.CreatedAt) {
			e := e
			found = &e
		}
	}
	return found
}

// ReplaceAll overwrites the collection without recording an audit entry
func (r *Extensions) ReplaceAll(ctx context.Context, list []models.Extension) error {
	return r.c.replaceAll(ctx, list)
}

// Add creates an extension
func (r *Extensions) Add(ctx context.Context, sess *session.Session, in models.ExtensionInput) (*models.Extension, error) {
	now := r.c.now().UTC()
	ext := models.Extension{
		ID:         uuid.New().String(),
		Number:     in.Number,
		Name:       in.Name,
		Department: in.Department,
		QueueID:    in.QueueID,
		Status:     in.Status,
		Metadata:   in.Metadata.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return r.c.insert(ctx, sess, ext)
}

// Update merges patch into the extension with the given id. It returns
// nil, nil when the extension does not exist.
func (r *Extensions) Update(ctx context.Context, sess *session.Session, id string, patch models.ExtensionPatch) (*models.Extension, error) {
	return r.c.modify(ctx, sess, id, patch.Apply)
}

// Delete removes the extension with the given id
func (r *Extensions) Delete(ctx context.Context, sess *session.Session, id string) (bool, error) {
	return r.c.remove(ctx, sess, id)
}

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/session"
	"github.com/foxzi/phonebook/internal/store"
)

// Users is the local admin user collection
type Users struct {
	c *collection[models.AdminUser]
}

// NewUsers creates the admin user repository
func NewUsers(deps Deps) *Users {
	return &Users{c: newCollection(store.KeyAdminUsers, deps, accessors[models.AdminUser]{
		id:        func(u *models.AdminUser) string { return u.ID },
		updatedAt: func(u *models.AdminUser) time.Time { return u.UpdatedAt },
		touch:     func(u *models.AdminUser, t time.Time) { u.UpdatedAt = t },
	})}
}

// List returns every admin user
func (r *Users) List() []models.AdminUser {
	return r.c.list()
}

// Get returns the admin user with the given id
func (r *Users) Get(id string) (*models.AdminUser, bool) {
	return r.c.get(id)
}

// FindByEmail returns the admin user with the given email, ignoring case
func (r *Users) FindByEmail(email string) *models.AdminUser {
	for _, u := range r.c.list() {
		if strings.EqualFold(u.Email, email) {
			return &u
		}
	}
	return nil
}

// ReplaceAll overwrites the collection without recording an audit entry
func (r *Users) ReplaceAll(ctx context.Context, list []models.AdminUser) error {
	return r.c.replaceAll(ctx, list)
}

// Add creates an admin user
func (r *Users) Add(ctx context.Context, sess *session.Session, in models.AdminUserInput) (*models.AdminUser, error) {
	now := r.c.now().UTC()
	u := models.AdminUser{
		ID:        uuid.New().String(),
		FullName:  in.FullName,
		Email:     in.Email,
		Role:      in.Role,
		SIPConfig: in.SIPConfig,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.c.insert(ctx, sess, u)
}

// Update merges patch into the admin user with the given id. It returns
// nil, nil when the user does not exist.
func (r *Users) Update(ctx context.Context, sess *session.Session, id string, patch models.AdminUserPatch) (*models.AdminUser, error) {
	return r.c.modify(ctx, sess, id, patch.Apply)
}

// Delete removes the admin user with the given id
func (r *Users) Delete(ctx context.Context, sess *session.Session, id string) (bool, error) {
	return r.c.remove(ctx, sess, id)
}

// RecordLogin stamps last_login on the user. It is bookkeeping: other
// contexts are notified but no audit entry is written and updated_at is
// left alone.
func (r *Users) RecordLogin(ctx context.Context, id string, at time.Time) (*models.AdminUser, error) {
	updated, _, err := r.c.rewrite(id, func(u *models.AdminUser) {
		u.LastLogin = &at
	})
	if err != nil || updated == nil {
		return nil, err
	}
	r.c.publish(ctx)
	return updated, nil
}

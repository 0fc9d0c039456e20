package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUsers struct {
	users    map[string]*models.AdminUser
	recorded []string
}

func (f *fakeUsers) FindByEmail(email string) *models.AdminUser {
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c
		}
	}
	return nil
}

func (f *fakeUsers) RecordLogin(_ context.Context, id string, at time.Time) (*models.AdminUser, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	u.LastLogin = &at
	f.recorded = append(f.recorded, id)
	c := *u
	return &c, nil
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*models.AdminUser{
		"u1": {ID: "u1", FullName: "Administrador", Email: "admin@empresa.com", Role: models.RoleSuperAdmin},
	}}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid credentials", "admin@empresa.com", "admin123", nil},
		{"email with whitespace", "  admin@empresa.com ", "admin123", nil},
		{"wrong password", "admin@empresa.com", "nope", ErrInvalidCredentials},
		{"unknown email", "ghost@empresa.com", "admin123", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newFakeUsers()
			m := NewManager(store.NewMemoryStorage(), users, Options{}, newTestLogger())

			user, err := m.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}

			if tt.wantErr != nil {
				if m.CurrentUser() != nil {
					t.Error("failed login must not set the current user")
				}
				if len(users.recorded) != 0 {
					t.Error("failed login must not stamp last_login")
				}
				return
			}

			if user.LastLogin == nil {
				t.Error("last_login not stamped")
			}
			current := m.CurrentUser()
			if current == nil || current.ID != "u1" {
				t.Fatalf("CurrentUser() = %+v", current)
			}
			if current.LastLogin == nil {
				t.Error("current user should carry last_login")
			}
		})
	}
}

func TestLoginWithPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(store.NewMemoryStorage(), newFakeUsers(), Options{PasswordHash: string(hash)}, newTestLogger())

	if _, err := m.Login(context.Background(), "admin@empresa.com", "admin123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("default password must not work when a hash is set, got %v", err)
	}
	if _, err := m.Login(context.Background(), "admin@empresa.com", "s3cret"); err != nil {
		t.Errorf("Login with hashed secret failed: %v", err)
	}
}

func TestLogout(t *testing.T) {
	s := store.NewMemoryStorage()
	m := NewManager(s, newFakeUsers(), Options{}, newTestLogger())

	if _, err := m.Login(context.Background(), "admin@empresa.com", "admin123"); err != nil {
		t.Fatal(err)
	}
	if err := m.Logout(); err != nil {
		t.Fatal(err)
	}
	if m.CurrentUser() != nil {
		t.Error("current user should be cleared")
	}
	if !m.Current().Anonymous() {
		t.Error("session after logout should be anonymous")
	}

	// the slot is shared by every manager on the same store
	other := NewManager(s, newFakeUsers(), Options{}, newTestLogger())
	if other.CurrentUser() != nil {
		t.Error("logout must be visible through the shared store")
	}
}

func TestSessionAccessors(t *testing.T) {
	var nilSession *Session
	if !nilSession.Anonymous() || nilSession.UserID() != nil || nilSession.IP() != nil || nilSession.Agent() != nil {
		t.Error("nil session should be anonymous with no attributes")
	}

	s := &Session{
		User:      &models.AdminUser{ID: "u1", Email: "a@b.c", Role: models.RoleAdmin},
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8",
	}
	if *s.UserID() != "u1" || *s.UserEmail() != "a@b.c" || *s.IP() != "10.0.0.1" || *s.Agent() != "curl/8" {
		t.Error("accessors returned wrong values")
	}
	if s.Role() != models.RoleAdmin {
		t.Errorf("Role() = %s", s.Role())
	}

	anon := &Session{IPAddress: "10.0.0.2"}
	if !anon.Anonymous() || anon.UserID() != nil || anon.UserEmail() != nil {
		t.Error("session without user should be anonymous")
	}
	if anon.IP() == nil {
		t.Error("anonymous session should still carry the client address")
	}
}

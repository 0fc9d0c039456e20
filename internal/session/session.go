// Package session carries the acting identity of a request or CLI run
// and manages the persisted current user slot.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/phonebook/internal/metrics"
	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/store"
)

// DefaultSharedPassword is the shared secret used when none is configured
const DefaultSharedPassword = "admin123"

// ErrInvalidCredentials is returned for an unknown email or wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// Session is the identity attributed to mutations. A nil Session or one
// without a user is anonymous.
type Session struct {
	User      *models.AdminUser
	IPAddress string
	UserAgent string
}

// Anonymous returns true if no user is attached
func (s *Session) Anonymous() bool {
	return s == nil || s.User == nil
}

// UserID returns the acting user id, or nil when anonymous
func (s *Session) UserID() *string {
	if s.Anonymous() || s.User.ID == "" {
		return nil
	}
	id := s.User.ID
	return &id
}

// UserEmail returns the acting user email, or nil when anonymous
func (s *Session) UserEmail() *string {
	if s.Anonymous() || s.User.Email == "" {
		return nil
	}
	email := s.User.Email
	return &email
}

// IP returns the client address, or nil when unknown
func (s *Session) IP() *string {
	if s == nil || s.IPAddress == "" {
		return nil
	}
	ip := s.IPAddress
	return &ip
}

// Agent returns the client user agent, or nil when unknown
func (s *Session) Agent() *string {
	if s == nil || s.UserAgent == "" {
		return nil
	}
	ua := s.UserAgent
	return &ua
}

// Role returns the acting user's role, or empty when anonymous
func (s *Session) Role() models.UserRole {
	if s.Anonymous() {
		return ""
	}
	return s.User.Role
}

// Users is the admin user lookup used by Login
type Users interface {
	FindByEmail(email string) *models.AdminUser
	// RecordLogin stamps last_login without producing an audit entry
	RecordLogin(ctx context.Context, id string, at time.Time) (*models.AdminUser, error)
}

// Options configures the shared secret check
type Options struct {
	// PasswordHash is a bcrypt hash; when set it takes precedence
	PasswordHash string
	// SharedPassword is compared in constant time when no hash is set
	SharedPassword string
}

// Manager owns the current user slot
type Manager struct {
	store  store.Store
	users  Users
	opts   Options
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// NewManager creates a session manager
func NewManager(s store.Store, users Users, opts Options, logger *slog.Logger) *Manager {
	if opts.PasswordHash == "" && opts.SharedPassword == "" {
		opts.SharedPassword = DefaultSharedPassword
	}
	return &Manager{
		store:  s,
		users:  users,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// CurrentUser returns the persisted current user, or nil
func (m *Manager) CurrentUser() *models.AdminUser {
	return store.Load[*models.AdminUser](m.store, store.KeyCurrentUser, nil)
}

// SetCurrentUser stores u as the current user; nil clears the slot
func (m *Manager) SetCurrentUser(u *models.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return store.Save(m.store, store.KeyCurrentUser, u)
}

// Current returns a session for the persisted current user
func (m *Manager) Current() *Session {
	return &Session{User: m.CurrentUser()}
}

// CheckPassword verifies password against the configured shared secret
func (m *Manager) CheckPassword(password string) bool {
	if m.opts.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(m.opts.PasswordHash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(m.opts.SharedPassword)) == 1
}

// Authenticate checks credentials and stamps last_login, without
// touching the current user slot
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*models.AdminUser, error) {
	user := m.users.FindByEmail(strings.TrimSpace(email))
	if user == nil || !m.CheckPassword(password) {
		metrics.IncLogin("failed")
		m.logger.Warn("login failed", "email", email)
		return nil, ErrInvalidCredentials
	}

	updated, err := m.users.RecordLogin(ctx, user.ID, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	if updated == nil {
		// removed between lookup and stamp
		metrics.IncLogin("failed")
		return nil, ErrInvalidCredentials
	}

	metrics.IncLogin("success")
	m.logger.Info("login succeeded", "user_id", updated.ID, "email", updated.Email)
	return updated, nil
}

// Login authenticates and stores the user as the current user
func (m *Manager) Login(ctx context.Context, email, password string) (*models.AdminUser, error) {
	user, err := m.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.SetCurrentUser(user); err != nil {
		return nil, fmt.Errorf("failed to store current user: %w", err)
	}
	return user, nil
}

// Logout clears the current user slot
func (m *Manager) Logout() error {
	return m.SetCurrentUser(nil)
}

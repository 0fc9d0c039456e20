// Package audit records an append-only, capped log of admin mutations.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/phonebook/internal/broadcast"
	"github.com/foxzi/phonebook/internal/metrics"
	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/session"
	"github.com/foxzi/phonebook/internal/store"
)

// DefaultMaxEntries is the default number of retained entries
const DefaultMaxEntries = 1000

// Logger appends audit entries to the shared store
type Logger struct {
	store       store.Store
	broadcaster broadcast.Broadcaster
	logger      *slog.Logger
	max         int

	mu  sync.Mutex
	now func() time.Time
}

// New creates an audit logger retaining at most max entries
func New(s store.Store, b broadcast.Broadcaster, max int, logger *slog.Logger) *Logger {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Logger{
		store:       s,
		broadcaster: b,
		logger:      logger,
		max:         max,
		now:         time.Now,
	}
}

// Log records a mutation attributed to sess. Failures are logged and
// never returned.
func (l *Logger) Log(ctx context.Context, sess *session.Session, action models.AuditAction, entityType, entityID string, oldData, newData any) {
	entry := models.AuditLog{
		ID:         uuid.New().String(),
		UserID:     sess.UserID(),
		UserEmail:  sess.UserEmail(),
		Action:     action,
		EntityType: entityType,
		OldData:    l.snapshot(oldData),
		NewData:    l.snapshot(newData),
		IPAddress:  sess.IP(),
		UserAgent:  sess.Agent(),
	}
	if entityID != "" {
		entry.EntityID = &entityID
	}

	l.mu.Lock()
	entry.CreatedAt = l.now().UTC()
	logs := store.Load(l.store, store.KeyAuditLogs, []models.AuditLog{})
	logs = append([]models.AuditLog{entry}, logs...)
	if len(logs) > l.max {
		logs = logs[:l.max]
	}
	err := store.Save(l.store, store.KeyAuditLogs, logs)
	l.mu.Unlock()

	if err != nil {
		metrics.IncAuditErrors()
		l.logger.Error("failed to write audit entry",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
		return
	}
	metrics.SetAuditEntries(len(logs))

	l.publish(ctx)
}

func (l *Logger) publish(ctx context.Context) {
	if l.broadcaster == nil {
		return
	}
	if err := l.broadcaster.Publish(ctx, broadcast.Changed(broadcast.TypeAuditLogs)); err != nil {
		l.logger.Warn("failed to publish audit change", "error", err)
	}
}

func (l *Logger) snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		metrics.IncAuditErrors()
		l.logger.Warn("failed to encode audit snapshot", "error", err)
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	return data
}

// List returns all retained entries, newest first
func (l *Logger) List() []models.AuditLog {
	return store.Load(l.store, store.KeyAuditLogs, []models.AuditLog{})
}

// Filter returns the entries matching f, newest first
func (l *Logger) Filter(f models.AuditLogFilter) []models.AuditLog {
	logs := l.List()

	out := make([]models.AuditLog, 0, len(logs))
	for _, entry := range logs {
		if f.Action != "" && entry.Action != f.Action {
			continue
		}
		if f.EntityType != "" && entry.EntityType != f.EntityType {
			continue
		}
		if f.UserID != "" && (entry.UserID == nil || *entry.UserID != f.UserID) {
			continue
		}
		out = append(out, entry)
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []models.AuditLog{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

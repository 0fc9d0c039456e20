// Package store provides durable key-value persistence for JSON-encoded
// record collections.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Fixed keys of the persisted state layout
const (
	KeyExtensions  = "extensions"
	KeyQueues      = "queues"
	KeyAdminUsers  = "admin_users"
	KeyAuditLogs   = "audit_logs"
	KeyCurrentUser = "current_user"
)

// CorruptSuffix names the key a blob that fails to decode is copied to
// before the default replaces it
const CorruptSuffix = ".corrupt"

// Store is a blob store keyed by name
type Store interface {
	// Get returns the stored value, or nil, nil if the key is absent
	Get(key string) ([]byte, error)

	// Set persists value under key
	Set(key string, value []byte) error

	// Close releases the underlying resources
	Close() error
}

// Load returns the value stored under key, or def when the key is absent,
// the store is nil, or the stored blob can not be decoded. An undecodable
// blob is kept under key+CorruptSuffix so the next Save does not lose it.
func Load[T any](s Store, key string, def T) T {
	if s == nil {
		return def
	}

	data, err := s.Get(key)
	if err != nil {
		slog.Warn("failed to read record", "key", key, "error", err)
		return def
	}
	if data == nil {
		return def
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Error("corrupted record, using default", "key", key, "copy", key+CorruptSuffix, "error", err)
		if err := s.Set(key+CorruptSuffix, data); err != nil {
			slog.Error("failed to keep corrupted record", "key", key, "error", err)
		}
		return def
	}
	return v
}

// Save encodes v as JSON and stores it under key.
// A nil store is a no-op.
func Save[T any](s Store, key string, v T) error {
	if s == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.Set(key, data); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

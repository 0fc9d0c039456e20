package models

import (
	"encoding/json"
	"time"
)

// AuditAction is the kind of mutation recorded in the audit log
type AuditAction string

const (
	ActionCreate AuditAction = "CREATE"
	ActionUpdate AuditAction = "UPDATE"
	ActionDelete AuditAction = "DELETE"
)

// AuditLog is an immutable record of a single mutation
type AuditLog struct {
	ID         string          `json:"id"`
	UserID     *string         `json:"user_id"`
	UserEmail  *string         `json:"user_email"`
	Action     AuditAction     `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   *string         `json:"entity_id"`
	OldData    json.RawMessage `json:"old_data"`
	NewData    json.RawMessage `json:"new_data"`
	IPAddress  *string         `json:"ip_address"`
	UserAgent  *string         `json:"user_agent"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditLogFilter narrows an audit log listing
type AuditLogFilter struct {
	Action     AuditAction
	EntityType string
	UserID     string
	Limit      int
	Offset     int
}

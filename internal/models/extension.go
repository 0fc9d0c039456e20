package models

import (
	"encoding/json"
	"time"
)

// ExtensionStatus represents the operational state of an extension
type ExtensionStatus string

const (
	StatusActive      ExtensionStatus = "active"
	StatusInactive    ExtensionStatus = "inactive"
	StatusMaintenance ExtensionStatus = "maintenance"
)

// Valid reports whether s is a known status
func (s ExtensionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusMaintenance:
		return true
	}
	return false
}

// Extension represents a dialable phone extension in the directory
type Extension struct {
	ID         string            `json:"id"`
	Number     string            `json:"number"`
	Name       string            `json:"name"`
	Department string            `json:"department"`
	QueueID    string            `json:"queue_id,omitempty"`
	Status     ExtensionStatus   `json:"status"`
	Metadata   ExtensionMetadata `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ExtensionInput holds the caller-supplied fields of a new extension
type ExtensionInput struct {
	Number     string            `json:"number"`
	Name       string            `json:"name"`
	Department string            `json:"department"`
	QueueID    string            `json:"queue_id,omitempty"`
	Status     ExtensionStatus   `json:"status"`
	Metadata   ExtensionMetadata `json:"metadata"`
}

// ExtensionPatch holds a partial update; nil fields are left unchanged
type ExtensionPatch struct {
	Number     *string            `json:"number,omitempty"`
	Name       *string            `json:"name,omitempty"`
	Department *string            `json:"department,omitempty"`
	QueueID    *string            `json:"queue_id,omitempty"`
	Status     *ExtensionStatus   `json:"status,omitempty"`
	Metadata   *ExtensionMetadata `json:"metadata,omitempty"`
}

// Apply merges the patch into e
func (p ExtensionPatch) Apply(e *Extension) {
	if p.Number != nil {
		e.Number = *p.Number
	}
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Department != nil {
		e.Department = *p.Department
	}
	if p.QueueID != nil {
		e.QueueID = *p.QueueID
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.Metadata != nil {
		e.Metadata = p.Metadata.Clone()
	}
}

// MetadataSchemaVersion is the current version of ExtensionMetadata
const MetadataSchemaVersion = 1

// ExtensionMetadata carries the optional directory flags of an extension.
// Keys outside the known schema are kept in Extra so foreign records
// survive a read-modify-write cycle.
type ExtensionMetadata struct {
	SchemaVersion    int
	Supervisor       bool
	Coordinator      bool
	SupervisorLabel  string
	CoordinatorLabel string
	Description      string
	Extra            map[string]json.RawMessage
}

var metadataKeys = map[string]struct{}{
	"schema_version":    {},
	"supervisor":        {},
	"coordinator":       {},
	"supervisor_label":  {},
	"coordinator_label": {},
	"description":       {},
	"coordenador":       {},
}

// MarshalJSON flattens known fields and Extra into one object
func (m ExtensionMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+6)
	for k, v := range m.Extra {
		if _, known := metadataKeys[k]; !known {
			out[k] = v
		}
	}
	version := m.SchemaVersion
	if version == 0 {
		version = MetadataSchemaVersion
	}
	out["schema_version"] = version
	if m.Supervisor {
		out["supervisor"] = true
	}
	if m.Coordinator {
		out["coordinator"] = true
	}
	if m.SupervisorLabel != "" {
		out["supervisor_label"] = m.SupervisorLabel
	}
	if m.CoordinatorLabel != "" {
		out["coordinator_label"] = m.CoordinatorLabel
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both the versioned schema and legacy open maps
func (m *ExtensionMetadata) UnmarshalJSON(data []byte) error {
	*m = ExtensionMetadata{}
	if string(data) == "null" {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for k, v := range raw {
		var err error
		switch k {
		case "schema_version":
			err = json.Unmarshal(v, &m.SchemaVersion)
		case "supervisor":
			err = json.Unmarshal(v, &m.Supervisor)
		case "coordinator", "coordenador":
			err = json.Unmarshal(v, &m.Coordinator)
		case "supervisor_label":
			err = json.Unmarshal(v, &m.SupervisorLabel)
		case "coordinator_label":
			err = json.Unmarshal(v, &m.CoordinatorLabel)
		case "description":
			err = json.Unmarshal(v, &m.Description)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]json.RawMessage)
			}
			m.Extra[k] = v
		}
		if err != nil {
			return err
		}
	}

	if m.SchemaVersion == 0 {
		m.SchemaVersion = MetadataSchemaVersion
	}
	return nil
}

// Clone returns a deep copy of the metadata
func (m ExtensionMetadata) Clone() ExtensionMetadata {
	c := m
	if m.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

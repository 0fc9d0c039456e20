package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/foxzi/phonebook/internal/models"
)

const extensionColumns = "id, number, name, department, queue_id, status, metadata, created_at, updated_at"

// Extensions reads and writes the backend extensions table
type Extensions struct {
	base
}

// NewExtensions creates the extension repository
func NewExtensions(db DBTX, timeout time.Duration) *Extensions {
	return &Extensions{base{db: db, timeout: timeout}}
}

func scanExtension(row pgx.Row) (*models.Extension, error) {
	var (
		e        models.Extension
		queueID  *string
		status   string
		metadata []byte
	)
	if err := row.Scan(&e.ID, &e.Number, &e.Name, &e.Department, &queueID, &status, &metadata, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if queueID != nil {
		e.QueueID = *queueID
	}
	e.Status = models.ExtensionStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of extension %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func collectExtensions(rows pgx.Rows) ([]models.Extension, error) {
	defer rows.Close()

	out := []models.Extension{}
	for rows.Next() {
		e, err := scanExtension(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extension: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extensions: %w", err)
	}
	return out, nil
}

// List returns every extension ordered by number
func (r *Extensions) List(ctx context.Context) ([]models.Extension, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, "SELECT "+extensionColumns+" FROM extensions ORDER BY number")
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions: %w", err)
	}
	return collectExtensions(rows)
}

// ListByDepartment returns the extensions of one department ordered by number
func (r *Extensions) ListByDepartment(ctx context.Context, department string) ([]models.Extension, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, "SELECT "+extensionColumns+" FROM extensions WHERE department = $1 ORDER BY number", department)
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions of %s: %w", department, err)
	}
	return collectExtensions(rows)
}

// Get returns the extension with the given id
func (r *Extensions) Get(ctx context.Context, id string) (*models.Extension, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	e, err := scanExtension(r.db.QueryRow(ctx, "SELECT "+extensionColumns+" FROM extensions WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// GetByNumber returns the first extension with the given number
func (r *Extensions) GetByNumber(ctx context.Context, number string) (*models.Extension, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	row := r.db.QueryRow(ctx, "SELECT "+extensionColumns+" FROM extensions WHERE number = $1 ORDER BY created_at LIMIT 1", number)
	e, err := scanExtension(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// Create inserts a new extension
func (r *Extensions) Create(ctx context.Context, in models.ExtensionInput) (*models.Extension, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	status := in.Status
	if status == "" {
		status = models.StatusActive
	}

	row := r.db.QueryRow(ctx,
		"INSERT INTO extensions (id, number, name, department, queue_id, status, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+extensionColumns,
		uuid.New().String(), in.Number, in.Name, in.Department, nullable(in.QueueID), string(status), metadata,
	)
	e, err := scanExtension(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create extension: %w", err)
	}
	return e, nil
}

// Update applies the non-nil fields of patch
func (r *Extensions) Update(ctx context.Context, id string, patch models.ExtensionPatch) (*models.Extension, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var set updateSet
	if patch.Number != nil {
		set.add("number", *patch.Number)
	}
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Department != nil {
		set.add("department", *patch.Department)
	}
	if patch.QueueID != nil {
		set.add("queue_id", nullable(*patch.QueueID))
	}
	if patch.Status != nil {
		set.add("status", string(*patch.Status))
	}
	if patch.Metadata != nil {
		metadata, err := json.Marshal(patch.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		set.add("metadata", metadata)
	}
	set.add("updated_at", time.Now().UTC())

	q, args := set.sql("extensions", id, extensionColumns)
	e, err := scanExtension(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// Delete removes an extension
func (r *Extensions) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tag, err := r.db.Exec(ctx, "DELETE FROM extensions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete extension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/foxzi/phonebook/internal/models"
)

const technicianColumns = "id, name, phone, description, region, supervisor, coordinator, created_at, updated_at"

// Technicians reads and writes the backend technicians table
type Technicians struct {
	base
}

// NewTechnicians creates the technician repository
func NewTechnicians(db DBTX, timeout time.Duration) *Technicians {
	return &Technicians{base{db: db, timeout: timeout}}
}

func scanTechnician(row pgx.Row) (*models.Technician, error) {
	var t models.Technician
	if err := row.Scan(&t.ID, &t.Name, &t.Phone, &t.Description, &t.Region, &t.Supervisor, &t.Coordinator, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns technicians ordered by name, optionally of one region
func (r *Technicians) List(ctx context.Context, region string) ([]models.Technician, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if region == "" {
		rows, err = r.db.Query(ctx, "SELECT "+technicianColumns+" FROM technicians ORDER BY name")
	} else {
		rows, err = r.db.Query(ctx, "SELECT "+technicianColumns+" FROM technicians WHERE region = $1 ORDER BY name", region)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	defer rows.Close()

	out := []models.Technician{}
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan technician: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read technicians: %w", err)
	}
	return out, nil
}

// Create inserts a new technician
func (r *Technicians) Create(ctx context.Context, t models.Technician) (*models.Technician, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	row := r.db.QueryRow(ctx,
		"INSERT INTO technicians (id, name, phone, description, region, supervisor, coordinator) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+technicianColumns,
		uuid.New().String(), t.Name, t.Phone, t.Description, t.Region, t.Supervisor, t.Coordinator,
	)
	created, err := scanTechnician(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create technician: %w", err)
	}
	return created, nil
}

// Update applies the non-nil fields of patch
func (r *Technicians) Update(ctx context.Context, id string, patch models.TechnicianPatch) (*models.Technician, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var set updateSet
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Phone != nil {
		set.add("phone", *patch.Phone)
	}
	if patch.Description != nil {
		set.add("description", *patch.Description)
	}
	if patch.Region != nil {
		set.add("region", *patch.Region)
	}
	if patch.Supervisor != nil {
		set.add("supervisor", *patch.Supervisor)
	}
	if patch.Coordinator != nil {
		set.add("coordinator", *patch.Coordinator)
	}
	set.add("updated_at", time.Now().UTC())

	q, args := set.sql("technicians", id, technicianColumns)
	t, err := scanTechnician(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// Delete removes a technician
func (r *Technicians) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tag, err := r.db.Exec(ctx, "DELETE FROM technicians WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete technician: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/foxzi/phonebook/internal/models"
)

const departmentColumns = "id, name, description, color, order_index, active, created_at, updated_at"

// Departments reads and writes the backend departments table
type Departments struct {
	base
}

// NewDepartments creates the department repository
func NewDepartments(db DBTX, timeout time.Duration) *Departments {
	return &Departments{base{db: db, timeout: timeout}}
}

func scanDepartment(row pgx.Row) (*models.Department, error) {
	var d models.Department
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Color, &d.OrderIndex, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns departments ordered by order_index, optionally only active ones
func (r *Departments) List(ctx context.Context, activeOnly bool) ([]models.Department, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	q := "SELECT " + departmentColumns + " FROM departments"
	if activeOnly {
		q += " WHERE active = TRUE"
	}
	q += " ORDER BY order_index, name"

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	out := []models.Department{}
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read departments: %w", err)
	}
	return out, nil
}

// Get returns one department
func (r *Departments) Get(ctx context.Context, id string) (*models.Department, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	d, err := scanDepartment(r.db.QueryRow(ctx, "SELECT "+departmentColumns+" FROM departments WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// Create inserts a new department
func (r *Departments) Create(ctx context.Context, d models.Department) (*models.Department, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	if d.Color == "" {
		d.Color = "#3b82f6"
	}
	row := r.db.QueryRow(ctx,
		"INSERT INTO departments (id, name, description, color, order_index, active) VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+departmentColumns,
		uuid.New().String(), d.Name, d.Description, d.Color, d.OrderIndex, d.Active,
	)
	created, err := scanDepartment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create department: %w", err)
	}
	return created, nil
}

// Update applies the non-nil fields of patch
func (r *Departments) Update(ctx context.Context, id string, patch models.DepartmentPatch) (*models.Department, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var set updateSet
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Description != nil {
		set.add("description", patch.Description)
	}
	if patch.Color != nil {
		set.add("color", *patch.Color)
	}
	if patch.OrderIndex != nil {
		set.add("order_index", *patch.OrderIndex)
	}
	if patch.Active != nil {
		set.add("active", *patch.Active)
	}
	set.add("updated_at", time.Now().UTC())

	q, args := set.sql("departments", id, departmentColumns)
	d, err := scanDepartment(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// ToggleActive flips the active flag
func (r *Departments) ToggleActive(ctx context.Context, id string) (*models.Department, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	d, err := scanDepartment(r.db.QueryRow(ctx,
		"UPDATE departments SET active = NOT active, updated_at = $1 WHERE id = $2 RETURNING "+departmentColumns,
		time.Now().UTC(), id,
	))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// Delete removes a department. It refuses while extensions reference it.
func (r *Departments) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var inUse int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM extensions e JOIN departments d ON e.department = d.name OR e.department = d.id WHERE d.id = $1",
		id,
	).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("failed to check department usage: %w", err)
	}
	if inUse > 0 {
		return fmt.Errorf("%w: %d extensions", ErrDepartmentInUse, inUse)
	}

	tag, err := r.db.Exec(ctx, "DELETE FROM departments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete department: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

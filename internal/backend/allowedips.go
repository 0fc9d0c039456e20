package backend

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/foxzi/phonebook/internal/models"
)

const allowedIPColumns = "id, ip, description, active, created_at, updated_at"

// AllowedIPs reads and writes the backend allowlist table
type AllowedIPs struct {
	base
}

// NewAllowedIPs creates the allowlist repository
func NewAllowedIPs(db DBTX, timeout time.Duration) *AllowedIPs {
	return &AllowedIPs{base{db: db, timeout: timeout}}
}

// ValidIPv4 reports whether s is a dotted-quad IPv4 address. IPv4-mapped
// IPv6 forms are rejected.
func ValidIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

func scanAllowedIP(row pgx.Row) (*models.AllowedIP, error) {
	var a models.AllowedIP
	if err := row.Scan(&a.ID, &a.IP, &a.Description, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns allowlist entries ordered by creation, optionally only active ones
func (r *AllowedIPs) List(ctx context.Context, activeOnly bool) ([]models.AllowedIP, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	q := "SELECT " + allowedIPColumns + " FROM allowed_ips"
	if activeOnly {
		q += " WHERE active = TRUE"
	}
	q += " ORDER BY created_at"

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowed ips: %w", err)
	}
	defer rows.Close()

	out := []models.AllowedIP{}
	for rows.Next() {
		a, err := scanAllowedIP(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allowed ip: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read allowed ips: %w", err)
	}
	return out, nil
}

func (r *AllowedIPs) ensureUnique(ctx context.Context, ip, exceptID string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM allowed_ips WHERE ip = $1 AND id <> $2)",
		ip, exceptID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check allowed ip: %w", err)
	}
	if exists {
		return ErrDuplicateIP
	}
	return nil
}

// Create adds an allowlist entry after validating the address
func (r *AllowedIPs) Create(ctx context.Context, a models.AllowedIP) (*models.AllowedIP, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	a.IP = strings.TrimSpace(a.IP)
	if !ValidIPv4(a.IP) {
		return nil, ErrInvalidIP
	}
	if err := r.ensureUnique(ctx, a.IP, ""); err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx,
		"INSERT INTO allowed_ips (id, ip, description, active) VALUES ($1, $2, $3, $4) RETURNING "+allowedIPColumns,
		uuid.New().String(), a.IP, a.Description, a.Active,
	)
	created, err := scanAllowedIP(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create allowed ip: %w", err)
	}
	return created, nil
}

// Update applies the non-nil fields of patch
func (r *AllowedIPs) Update(ctx context.Context, id string, patch models.AllowedIPPatch) (*models.AllowedIP, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	var set updateSet
	if patch.IP != nil {
		ip := strings.TrimSpace(*patch.IP)
		if !ValidIPv4(ip) {
			return nil, ErrInvalidIP
		}
		if err := r.ensureUnique(ctx, ip, id); err != nil {
			return nil, err
		}
		set.add("ip", ip)
	}
	if patch.Description != nil {
		set.add("description", patch.Description)
	}
	if patch.Active != nil {
		set.add("active", *patch.Active)
	}
	set.add("updated_at", time.Now().UTC())

	q, args := set.sql("allowed_ips", id, allowedIPColumns)
	a, err := scanAllowedIP(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// Delete removes an allowlist entry
func (r *AllowedIPs) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.ctx(ctx)
	defer cancel()

	tag, err := r.db.Exec(ctx, "DELETE FROM allowed_ips WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete allowed ip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

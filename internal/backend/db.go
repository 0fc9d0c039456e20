// Package backend is the PostgreSQL client for the hosted admin data:
// extensions, departments, technicians and the IP allowlist.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultNotifyChannel is the LISTEN/NOTIFY channel of the change trigger
const DefaultNotifyChannel = "phonebook_changes"

var (
	ErrNotFound        = errors.New("record not found")
	ErrDepartmentInUse = errors.New("department has extensions assigned")
	ErrInvalidIP       = errors.New("invalid IPv4 address")
	ErrDuplicateIP     = errors.New("IP address already registered")
)

// DBTX is the subset of a pgx pool used by the repositories
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config holds connection pool settings
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// Open creates a connection pool and verifies it with a ping
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping backend: %w", err)
	}
	return pool, nil
}

// base carries the shared handle and per-query timeout of a repository
type base struct {
	db      DBTX
	timeout time.Duration
}

func (b base) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// updateSet accumulates the SET clause of a partial update
type updateSet struct {
	clauses []string
	args    []any
}

func (u *updateSet) add(column string, value any) {
	u.args = append(u.args, value)
	u.clauses = append(u.clauses, fmt.Sprintf("%s = $%d", column, len(u.args)))
}

// sql renders "UPDATE table SET ... WHERE id = $n RETURNING cols"
func (u *updateSet) sql(table, id, returning string) (string, []any) {
	args := append(u.args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		table, strings.Join(u.clauses, ", "), len(args), returning)
	return q, args
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

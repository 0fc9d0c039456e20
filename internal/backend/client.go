package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Client bundles the pool, the repositories and the change feed
type Client struct {
	Pool        *pgxpool.Pool
	Extensions  *Extensions
	Departments *Departments
	Technicians *Technicians
	AllowedIPs  *AllowedIPs
	Feed        *Feed
}

// Connect opens the pool, applies the schema and builds the repositories
func Connect(ctx context.Context, cfg Config, channel string, queryTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	pool, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	if err := Migrate(ctx, pool, channel); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate backend: %w", err)
	}

	return &Client{
		Pool:        pool,
		Extensions:  NewExtensions(pool, queryTimeout),
		Departments: NewDepartments(pool, queryTimeout),
		Technicians: NewTechnicians(pool, queryTimeout),
		AllowedIPs:  NewAllowedIPs(pool, queryTimeout),
		Feed:        NewFeed(pool, channel, logger),
	}, nil
}

// Close releases the pool
func (c *Client) Close() {
	c.Pool.Close()
}

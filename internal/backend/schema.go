package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

var schemaTables = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT,
		color       TEXT NOT NULL DEFAULT '#3b82f6',
		order_index INTEGER NOT NULL DEFAULT 0,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS extensions (
		id          TEXT PRIMARY KEY,
		number      TEXT NOT NULL,
		name        TEXT NOT NULL,
		department  TEXT NOT NULL DEFAULT '',
		queue_id    TEXT,
		status      TEXT NOT NULL DEFAULT 'active',
		metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS extensions_department_idx ON extensions (department)`,
	`CREATE INDEX IF NOT EXISTS extensions_number_idx ON extensions (number)`,
	`CREATE TABLE IF NOT EXISTS technicians (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		phone       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		region      TEXT NOT NULL DEFAULT '',
		supervisor  BOOLEAN NOT NULL DEFAULT FALSE,
		coordinator BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS allowed_ips (
		id          TEXT PRIMARY KEY,
		ip          TEXT NOT NULL UNIQUE,
		description TEXT,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Tables watched by the change trigger
var watchedTables = []string{"extensions", "departments", "technicians", "allowed_ips"}

const notifyFunction = `CREATE OR REPLACE FUNCTION phonebook_notify_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(TG_ARGV[0], json_build_object('table', TG_TABLE_NAME, 'op', TG_OP)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`

// Migrate creates the schema and the change notification triggers
func Migrate(ctx context.Context, db DBTX, channel string) error {
	if channel == "" {
		channel = DefaultNotifyChannel
	}

	for _, stmt := range schemaTables {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if _, err := db.Exec(ctx, notifyFunction); err != nil {
		return fmt.Errorf("failed to create notify function: %w", err)
	}

	lit := quoteLiteral(channel)
	for _, table := range watchedTables {
		trigger := pgx.Identifier{table + "_notify_change"}.Sanitize()
		tbl := pgx.Identifier{table}.Sanitize()

		if _, err := db.Exec(ctx, fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", trigger, tbl)); err != nil {
			return fmt.Errorf("failed to drop trigger on %s: %w", table, err)
		}
		stmt := fmt.Sprintf(
			"CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH STATEMENT EXECUTE FUNCTION phonebook_notify_change(%s)",
			trigger, tbl, lit)
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create trigger on %s: %w", table, err)
		}
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

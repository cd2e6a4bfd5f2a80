// Package sql creates the relational schema used by the GORM repositories.
// Both dialects carry a storage-level guard against overlapping confirmed
// bookings of one resource.
package sql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"bookly/pkg/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		display_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL,
		start_at TIMESTAMPTZ NOT NULL,
		end_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'rejected')),
		version BIGINT NOT NULL CHECK (version >= 1),
		arrival_seq BIGINT NOT NULL DEFAULT 0,
		idempotency_key TEXT,
		requested_by TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		rescheduled_from TEXT NOT NULL DEFAULT '',
		rescheduled_to TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (start_at < end_at)
	)`,
	`ALTER TABLE bookings ADD COLUMN IF NOT EXISTS arrival_seq BIGINT NOT NULL DEFAULT 0`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_idempotency ON bookings (resource_id, idempotency_key)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_resource_start ON bookings (resource_id, start_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_resource_created ON bookings (resource_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_resource_arrival ON bookings (resource_id, arrival_seq)`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
			ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
				EXCLUDE USING gist (resource_id WITH =, tstzrange(start_at, end_at, '[)') WITH &&)
				WHERE (status = 'confirmed');
		END IF;
	END $$`,
}

const sqliteOverlapGuard = `
	SELECT RAISE(ABORT, 'booking_overlap')
	WHERE EXISTS (
		SELECT 1 FROM bookings
		WHERE resource_id = NEW.resource_id
			AND status = 'confirmed'
			AND id <> NEW.id
			AND julianday(start_at) < julianday(NEW.end_at)
			AND julianday(NEW.start_at) < julianday(end_at)
	);`

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		display_name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL,
		start_at DATETIME NOT NULL,
		end_at DATETIME NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'rejected')),
		version INTEGER NOT NULL CHECK (version >= 1),
		arrival_seq INTEGER NOT NULL DEFAULT 0,
		idempotency_key TEXT,
		requested_by TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		rescheduled_from TEXT NOT NULL DEFAULT '',
		rescheduled_to TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_idempotency ON bookings (resource_id, idempotency_key)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_resource_start ON bookings (resource_id, start_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_resource_created ON bookings (resource_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_resource_arrival ON bookings (resource_id, arrival_seq)`,
	`CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_insert
		BEFORE INSERT ON bookings
		WHEN NEW.status = 'confirmed'
	BEGIN` + sqliteOverlapGuard + `
	END`,
	`CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_update
		BEFORE UPDATE OF status, start_at, end_at ON bookings
		WHEN NEW.status = 'confirmed'
	BEGIN` + sqliteOverlapGuard + `
	END`,
}

// Migrate applies the schema for the dialect of db. Every statement is
// idempotent, so the job can run on each deploy.
func Migrate(ctx context.Context, db *gorm.DB, log *logger.Logger) error {
	dialect := db.Dialector.Name()

	var statements []string
	switch dialect {
	case DialectPostgres:
		statements = postgresSchema
	case DialectSQLite:
		statements = sqliteSchema
	default:
		return fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	log.Info("Running SQL migrations", "dialect", dialect, "statements", len(statements))
	for i, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i+1, err)
		}
	}
	log.Info("All SQL migrations applied", "dialect", dialect)
	return nil
}

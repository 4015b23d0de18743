// Package postgres persists escalation records and enriched chunk metadata.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101601

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS escalations (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	topic TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL,
	attempt_count INTEGER NOT NULL,
	context JSONB NOT NULL DEFAULT '{}'::jsonb,
	priority TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_escalations_priority_created ON escalations(priority, created_at);

CREATE TABLE IF NOT EXISTS chunk_metadata (
	chunk_id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL DEFAULT '',
	source_type TEXT NOT NULL,
	source_fingerprint TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL,
	metadata JSONB NOT NULL,
	indexed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunk_metadata_fingerprint ON chunk_metadata(source_fingerprint);
`

// EnsureSchema serializes bootstrap DDL across concurrently starting binaries.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

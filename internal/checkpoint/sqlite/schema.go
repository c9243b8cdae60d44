package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
		session_id TEXT    NOT NULL,
		call_id    INTEGER NOT NULL,
		capability TEXT    NOT NULL,
		params     TEXT    NOT NULL DEFAULT '{}',
		ok         INTEGER NOT NULL DEFAULT 0,
		output     TEXT    NOT NULL DEFAULT '',
		failure    TEXT    NOT NULL DEFAULT '',
		state      TEXT    NOT NULL DEFAULT '',
		created_at TEXT    NOT NULL,
		PRIMARY KEY (session_id, call_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints(created_at)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version records how many
// have run. New versions only add tables or indexes so that upgrading
// never destroys existing rows.
var migrations = []string{
	// v1: catalog tables plus the flat key-value table older releases
	// kept their JSON blobs in.
	`
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_created ON products(created_at);
	CREATE INDEX IF NOT EXISTS idx_categories_created ON categories(created_at);

	CREATE TABLE IF NOT EXISTS legacy_kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`,

	// v2: upload drafts
	`
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL
	);
	`,

	// v3: settings records
	`
	CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL
	);
	`,
}

// SchemaVersion is the version a fully migrated database reports.
var SchemaVersion = len(migrations)

// migrate brings conn up to SchemaVersion. It is idempotent.
func migrate(ctx context.Context, conn *sql.DB) error {
	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration v%d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration v%d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration v%d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration v%d: %w", i+1, err)
		}
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
)

// LegacyValue returns the value stored under key in the legacy flat
// key-value table. ok is false when the key is absent.
func (db *DB) LegacyValue(ctx context.Context, key string) (value string, ok bool, err error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return "", false, err
	}
	err = conn.QueryRowContext(ctx, `SELECT value FROM legacy_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("legacy get", "", err)
	}
	return value, true, nil
}

// SetLegacyValue writes a legacy key. Only imports and tests use it; the
// storefront itself never writes new legacy data.
func (db *DB) SetLegacyValue(ctx context.Context, key, value string) error {
	conn, err := db.handle(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO legacy_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return storageErr("legacy set", "", err)
}

// DeleteLegacy removes a legacy key. Removing a missing key is not an error.
func (db *DB) DeleteLegacy(ctx context.Context, key string) error {
	conn, err := db.handle(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `DELETE FROM legacy_kv WHERE key = ?`, key)
	return storageErr("legacy delete", "", err)
}

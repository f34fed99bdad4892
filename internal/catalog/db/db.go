// Package db provides the local store for the storefront catalog.
//
// The local store is an embedded SQLite database (ncruces/go-sqlite3, WAL
// mode) with one table per entity kind, keyed by entity id. It is the
// durable record of truth: the sync coordinator always writes here, whether
// or not the remote store accepted the write.
//
// Architecture:
//   - Database file: <data dir>/storefront.db
//   - Tables: products, categories, drafts, settings (id, created_at, body)
//   - legacy_kv: flat key-value table older releases stored JSON blobs in
//   - Schema: versioned with PRAGMA user_version, additive migrations only
//
// Every logical operation runs in its own transaction. Operations that span
// two steps (ReplaceAll is clear then insert) are not atomic as a whole.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// DB is a lazily opened handle on the local store. It is safe for
// concurrent use; the underlying connection is opened on first use and
// reused until Close.
type DB struct {
	path string

	mu   sync.Mutex
	conn *sql.DB
}

// New returns a handle for the database at path without opening it.
func New(path string) *DB {
	return &DB{path: path}
}

// Open creates a handle and opens it immediately, creating the file and the
// schema when missing.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open(".storefront/storefront.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	d := New(path)
	if err := d.EnsureOpen(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// EnsureOpen opens the database and applies pending migrations. Calling it
// again on an open handle is a cheap no-op.
func (db *DB) EnsureOpen(ctx context.Context) error {
	_, err := db.handle(ctx)
	return err
}

func (db *DB) handle(ctx context.Context) (*sql.DB, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return db.conn, nil
	}

	if err := os.MkdirAll(filepath.Dir(db.path), 0755); err != nil {
		return nil, storageErr("open", "", fmt.Errorf("failed to create database directory: %w", err))
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate", db.path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageErr("open", "", fmt.Errorf("failed to open database: %w", err))
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, storageErr("open", "", fmt.Errorf("failed to ping database: %w", err))
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, storageErr("open", "", err)
	}

	db.conn = conn
	return conn, nil
}

// Close checkpoints the WAL and closes the connection. A later call to any
// operation re-opens the database.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Version returns the schema version recorded in the database.
func (db *DB) Version(ctx context.Context) (int, error) {
	conn, err := db.handle(ctx)
	if err != nil {
		return 0, err
	}
	var v int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, storageErr("version", "", err)
	}
	return v, nil
}

func table(kind schema.Kind) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("unknown kind %q", kind)
	}
	return kind.Table(), nil
}

// GetAll returns every record of kind. Products and categories come back
// newest first.
func (db *DB) GetAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, storageErr("get", kind, err)
	}
	conn, err := db.handle(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, created_at, body FROM ` + tbl
	if kind.Ordered() {
		query += ` ORDER BY created_at DESC, id ASC`
	} else {
		query += ` ORDER BY id ASC`
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("get", kind, fmt.Errorf("failed to query: %w", err))
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, storageErr("get", kind, err)
	}
	return docs, nil
}

// scanDocuments is a helper function to scan documents from query results.
func scanDocuments(rows *sql.Rows) ([]schema.Document, error) {
	docs := []schema.Document{}
	for rows.Next() {
		var doc schema.Document
		var body string
		if err := rows.Scan(&doc.ID, &doc.CreatedAt, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Body = []byte(body)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// Count returns the number of records of kind.
func (db *DB) Count(ctx context.Context, kind schema.Kind) (int, error) {
	tbl, err := table(kind)
	if err != nil {
		return 0, storageErr("count", kind, err)
	}
	conn, err := db.handle(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tbl).Scan(&n); err != nil {
		return 0, storageErr("count", kind, err)
	}
	return n, nil
}

const upsertSQL = `
	INSERT INTO %s (id, created_at, updated_at, body)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		body = excluded.body
`

// Put inserts or replaces one record.
func (db *DB) Put(ctx context.Context, kind schema.Kind, doc schema.Document) error {
	return db.PutMany(ctx, kind, []schema.Document{doc})
}

// PutMany upserts docs in a single transaction. Records absent from docs
// are left untouched.
func (db *DB) PutMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return db.inTx(ctx, "put", kind, func(tx *sql.Tx, tbl string) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(upsertSQL, tbl))
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UnixMilli()
		for _, doc := range docs {
			if err := doc.Validate(); err != nil {
				return fmt.Errorf("invalid document: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, doc.ID, doc.CreatedAt, now, string(doc.Body)); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", doc.ID, err)
			}
		}
		return nil
	})
}

// ReplaceAll clears kind and inserts docs. The clear and the insert are two
// separate transactions; a crash in between leaves the table empty.
func (db *DB) ReplaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if err := db.Clear(ctx, kind); err != nil {
		return err
	}
	return db.PutMany(ctx, kind, docs)
}

// Delete removes one record. Deleting a missing id is not an error.
func (db *DB) Delete(ctx context.Context, kind schema.Kind, id string) error {
	return db.DeleteMany(ctx, kind, []string{id})
}

// maxDeleteVars caps the bound parameters of one DELETE statement, well
// under SQLite's variable limit.
const maxDeleteVars = 500

// DeleteMany removes the given ids in a single transaction. Long id lists
// are split into several statements.
func (db *DB) DeleteMany(ctx context.Context, kind schema.Kind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.inTx(ctx, "delete", kind, func(tx *sql.Tx, tbl string) error {
		for start := 0; start < len(ids); start += maxDeleteVars {
			part := ids[start:min(start+maxDeleteVars, len(ids))]
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")
			args := make([]any, len(part))
			for i, id := range part {
				args[i] = id
			}
			query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", tbl, placeholders)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to delete: %w", err)
			}
		}
		return nil
	})
}

// Clear removes every record of kind.
func (db *DB) Clear(ctx context.Context, kind schema.Kind) error {
	return db.inTx(ctx, "clear", kind, func(tx *sql.Tx, tbl string) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tbl); err != nil {
			return fmt.Errorf("failed to clear: %w", err)
		}
		return nil
	})
}

// inTx runs fn inside one transaction on kind's table.
func (db *DB) inTx(ctx context.Context, op string, kind schema.Kind, fn func(tx *sql.Tx, tbl string) error) error {
	tbl, err := table(kind)
	if err != nil {
		return storageErr(op, kind, err)
	}
	conn, err := db.handle(ctx)
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, kind, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx, tbl); err != nil {
		return storageErr(op, kind, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op, kind, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

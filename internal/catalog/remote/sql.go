package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// SQLStore keeps remote collections in a SQL database reached through
// database/sql; in production that is a Turso (libSQL) database opened by
// the turso subpackage.
//
// Change notification is a per-collection revision counter that every
// write bumps in the same transaction. Subscriptions poll it.
type SQLStore struct {
	conn   *sql.DB
	opts   Options
	logger *log.Logger

	writes pending

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// NewSQLStore wraps conn and creates the remote collections when missing.
//
// If logger is nil, a default logger writing to stderr is used.
func NewSQLStore(ctx context.Context, conn *sql.DB, opts Options, logger *log.Logger) (*SQLStore, error) {
	if conn == nil {
		return nil, fmt.Errorf("conn cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	s := &SQLStore{
		conn:   conn,
		opts:   opts.withDefaults(),
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}
	if err := s.initSchema(ctx); err != nil {
		return nil, remoteErr("init", "", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	var b strings.Builder
	for _, kind := range schema.MirrorableKinds {
		fmt.Fprintf(&b, `
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_created ON %[1]s(created_at);
		`, kind.Table())
	}
	b.WriteString(`
		CREATE TABLE IF NOT EXISTS revisions (
			collection TEXT PRIMARY KEY,
			rev INTEGER NOT NULL DEFAULT 0
		);
	`)
	if _, err := s.conn.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to initialize remote schema: %w", err)
	}
	return nil
}

// GetAll implements Store.GetAll.
func (s *SQLStore) GetAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error) {
	if err := checkKind("get", kind); err != nil {
		return nil, err
	}
	query := `SELECT id, created_at, body FROM ` + kind.Table()
	if kind.Ordered() {
		query += ` ORDER BY created_at DESC, id ASC`
	} else {
		query += ` ORDER BY id ASC`
	}

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, remoteErr("get", kind, err)
	}
	defer rows.Close()

	docs := []schema.Document{}
	for rows.Next() {
		var doc schema.Document
		var body string
		if err := rows.Scan(&doc.ID, &doc.CreatedAt, &body); err != nil {
			return nil, remoteErr("get", kind, fmt.Errorf("failed to scan document: %w", err))
		}
		doc.Body = []byte(body)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, remoteErr("get", kind, err)
	}
	return docs, nil
}

// Put implements Store.Put.
func (s *SQLStore) Put(ctx context.Context, kind schema.Kind, doc schema.Document) error {
	return s.PutMany(ctx, kind, []schema.Document{doc})
}

// PutMany implements Store.PutMany.
func (s *SQLStore) PutMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if err := checkKind("put", kind); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	s.writes.begin()
	defer s.writes.end()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, created_at, body) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			body = excluded.body
	`, kind.Table())

	err := runChunks(ctx, docs, s.opts.batchSize(kind), s.opts.BatchPause, func(batch []schema.Document) error {
		return s.commit(ctx, kind, func(tx *sql.Tx) error {
			for _, doc := range batch {
				if err := doc.Validate(); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, query, doc.ID, doc.CreatedAt, string(doc.Body)); err != nil {
					return fmt.Errorf("failed to write %s: %w", doc.ID, err)
				}
			}
			return nil
		})
	})
	return remoteErr("put", kind, err)
}

// ReplaceAll implements Store.ReplaceAll.
func (s *SQLStore) ReplaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if err := s.Clear(ctx, kind); err != nil {
		return err
	}
	return s.PutMany(ctx, kind, docs)
}

// Delete implements Store.Delete.
func (s *SQLStore) Delete(ctx context.Context, kind schema.Kind, id string) error {
	return s.DeleteMany(ctx, kind, []string{id})
}

// DeleteMany implements Store.DeleteMany.
func (s *SQLStore) DeleteMany(ctx context.Context, kind schema.Kind, ids []string) error {
	if err := checkKind("delete", kind); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.writes.begin()
	defer s.writes.end()

	err := runChunks(ctx, ids, s.opts.batchSize(kind), s.opts.BatchPause, func(batch []string) error {
		return s.commit(ctx, kind, func(tx *sql.Tx) error {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
			args := make([]any, len(batch))
			for i, id := range batch {
				args[i] = id
			}
			query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", kind.Table(), placeholders)
			_, err := tx.ExecContext(ctx, query, args...)
			return err
		})
	})
	return remoteErr("delete", kind, err)
}

// Clear implements Store.Clear.
func (s *SQLStore) Clear(ctx context.Context, kind schema.Kind) error {
	if err := checkKind("clear", kind); err != nil {
		return err
	}
	s.writes.begin()
	defer s.writes.end()

	err := s.commit(ctx, kind, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM "+kind.Table())
		return err
	})
	return remoteErr("clear", kind, err)
}

// commit runs fn and bumps the collection revision in one transaction.
func (s *SQLStore) commit(ctx context.Context, kind schema.Kind, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (collection, rev) VALUES (?, 1)
		ON CONFLICT(collection) DO UPDATE SET rev = rev + 1
	`, kind.Table()); err != nil {
		return fmt.Errorf("failed to bump revision: %w", err)
	}
	return tx.Commit()
}

// Revision returns the change counter of kind's collection.
func (s *SQLStore) Revision(ctx context.Context, kind schema.Kind) (int64, error) {
	var rev int64
	err := s.conn.QueryRowContext(ctx, `SELECT rev FROM revisions WHERE collection = ?`, kind.Table()).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, remoteErr("revision", kind, err)
	}
	return rev, nil
}

// WaitForPendingWrites implements Store.WaitForPendingWrites.
func (s *SQLStore) WaitForPendingWrites(ctx context.Context) error {
	return s.writes.wait(ctx)
}

// Subscribe implements Store.Subscribe.
//
// The first snapshot is delivered right away; after that the revision
// counter is polled every PollInterval and a new snapshot is delivered
// whenever it moves. Poll failures are logged and retried on the next tick.
func (s *SQLStore) Subscribe(kind schema.Kind, onChange func([]schema.Document)) (func(), error) {
	if err := checkKind("subscribe", kind); err != nil {
		return nil, err
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, remoteErr("subscribe", kind, fmt.Errorf("store closed"))
	}
	sub := newSubscription()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go s.poll(sub, kind, onChange)

	return func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		sub.stop()
	}, nil
}

func (s *SQLStore) poll(sub *subscription, kind schema.Kind, onChange func([]schema.Document)) {
	defer close(sub.finished)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	last := int64(-1)
	check := func() {
		ctx, cancel := context.WithTimeout(sub.ctx, 30*time.Second)
		defer cancel()

		rev, err := s.Revision(ctx, kind)
		if err != nil {
			s.logger.Printf("WARNING: poll %s failed: %v", kind, err)
			return
		}
		if rev == last {
			return
		}
		docs, err := s.GetAll(ctx, kind)
		if err != nil {
			s.logger.Printf("WARNING: snapshot %s failed: %v", kind, err)
			return
		}
		last = rev
		if sub.ctx.Err() == nil {
			onChange(docs)
		}
	}

	check()
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Close stops every subscription. The connection is closed too, since the
// store owns it.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for sub := range subs {
		sub.stop()
		<-sub.finished
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close remote store: %w", err)
	}
	return nil
}

// subscription tracks one polling goroutine.
type subscription struct {
	ctx      context.Context
	cancel   context.CancelFunc
	finished chan struct{}
	once     sync.Once
}

func newSubscription() *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{ctx: ctx, cancel: cancel, finished: make(chan struct{})}
}

// stop cancels the subscription. A snapshot already being delivered
// finishes, but no further callbacks start.
func (sub *subscription) stop() {
	sub.once.Do(sub.cancel)
}

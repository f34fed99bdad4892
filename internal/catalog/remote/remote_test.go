package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

func testOptions() Options {
	return Options{
		ProductBatchSize: 2,
		BatchSize:        3,
		BatchPause:       time.Millisecond,
		PollInterval:     10 * time.Millisecond,
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remote.db")
	conn, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)")
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	s, err := NewSQLStore(context.Background(), conn, testOptions(), quietLogger())
	if err != nil {
		conn.Close()
		t.Fatalf("NewSQLStore() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func doc(id string, created int64) schema.Document {
	return schema.Document{
		ID:        id,
		CreatedAt: created,
		Body:      json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
	}
}

func docs(n int) []schema.Document {
	out := make([]schema.Document, n)
	for i := range out {
		out[i] = doc(fmt.Sprintf("d%02d", i), int64(i))
	}
	return out
}

// stores returns both implementations so behavior shared through the Store
// interface is checked once.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sql":    setupSQLStore(t),
		"memory": NewMemoryStore(testOptions()),
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 10, nil},
		{5, 10, []int{5}},
		{10, 10, []int{10}},
		{25, 10, []int{10, 10, 5}},
		{3, 0, []int{3}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.size), func(t *testing.T) {
			got := chunk(make([]int, tt.n), tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("chunk() returned %d chunks, want %d", len(got), len(tt.want))
			}
			for i, c := range got {
				if len(c) != tt.want[i] {
					t.Errorf("chunk %d has %d items, want %d", i, len(c), tt.want[i])
				}
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := Options{}.withDefaults()
	if opts.batchSize(schema.KindProducts) != 10 {
		t.Errorf("product batch = %d, want 10", opts.batchSize(schema.KindProducts))
	}
	if opts.batchSize(schema.KindCategories) != 400 {
		t.Errorf("category batch = %d, want 400", opts.batchSize(schema.KindCategories))
	}
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.PutMany(ctx, schema.KindProducts, []schema.Document{doc("a", 1), doc("b", 3), doc("c", 2)}); err != nil {
				t.Fatalf("PutMany() failed: %v", err)
			}
			got, err := s.GetAll(ctx, schema.KindProducts)
			if err != nil {
				t.Fatalf("GetAll() failed: %v", err)
			}
			ids := schema.IDs(got)
			if fmt.Sprint(ids) != "[b c a]" {
				t.Errorf("GetAll() = %v, want newest first [b c a]", ids)
			}

			if err := s.Delete(ctx, schema.KindProducts, "c"); err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
			if err := s.ReplaceAll(ctx, schema.KindProducts, []schema.Document{doc("z", 9)}); err != nil {
				t.Fatalf("ReplaceAll() failed: %v", err)
			}
			got, _ = s.GetAll(ctx, schema.KindProducts)
			if fmt.Sprint(schema.IDs(got)) != "[z]" {
				t.Errorf("after ReplaceAll GetAll() = %v, want [z]", schema.IDs(got))
			}

			if err := s.Clear(ctx, schema.KindProducts); err != nil {
				t.Fatalf("Clear() failed: %v", err)
			}
			got, _ = s.GetAll(ctx, schema.KindProducts)
			if len(got) != 0 {
				t.Errorf("after Clear GetAll() = %v, want empty", schema.IDs(got))
			}
		})
	}
}

func TestStore_RejectsDrafts(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Put(ctx, schema.KindDrafts, doc("d1", 1))
			if !errors.Is(err, ErrNotMirrorable) {
				t.Errorf("Put(drafts) error = %v, want ErrNotMirrorable", err)
			}
			if !errors.Is(err, ErrRemoteUnavailable) {
				t.Errorf("Put(drafts) error = %v should also match ErrRemoteUnavailable", err)
			}
			if _, err := s.Subscribe(schema.KindDrafts, func([]schema.Document) {}); !errors.Is(err, ErrNotMirrorable) {
				t.Errorf("Subscribe(drafts) error = %v, want ErrNotMirrorable", err)
			}
		})
	}
}

func TestSQLStore_ChunksBumpRevision(t *testing.T) {
	s := setupSQLStore(t)
	ctx := context.Background()

	// 5 products at chunk size 2 commit as 3 chunks.
	if err := s.PutMany(ctx, schema.KindProducts, docs(5)); err != nil {
		t.Fatalf("PutMany() failed: %v", err)
	}
	rev, err := s.Revision(ctx, schema.KindProducts)
	if err != nil {
		t.Fatalf("Revision() failed: %v", err)
	}
	if rev != 3 {
		t.Errorf("Revision() = %d, want 3", rev)
	}

	rev, _ = s.Revision(ctx, schema.KindCategories)
	if rev != 0 {
		t.Errorf("untouched Revision() = %d, want 0", rev)
	}
}

func TestSQLStore_InvalidChunkKeepsEarlierChunks(t *testing.T) {
	s := setupSQLStore(t)
	ctx := context.Background()

	batch := docs(4)
	batch[3].Body = json.RawMessage(`{broken`)

	err := s.PutMany(ctx, schema.KindProducts, batch)
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("PutMany() error = %v, want ErrRemoteUnavailable", err)
	}
	got, _ := s.GetAll(ctx, schema.KindProducts)
	if len(got) != 2 {
		t.Errorf("GetAll() returned %d docs, want the 2 from the first chunk", len(got))
	}
}

func TestMemoryStore_PartialFailure(t *testing.T) {
	m := NewMemoryStore(testOptions())
	ctx := context.Background()

	m.FailAfterCommits(2, errors.New("quota exceeded"))
	err := m.PutMany(ctx, schema.KindProducts, docs(6))
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("PutMany() error = %v, want ErrRemoteUnavailable", err)
	}

	m.SetFailing(nil)
	got, err := m.GetAll(ctx, schema.KindProducts)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("GetAll() returned %d docs, want 4 from two committed chunks", len(got))
	}
	if m.Commits() != 2 {
		t.Errorf("Commits() = %d, want 2", m.Commits())
	}
}

func TestMemoryStore_SetFailing(t *testing.T) {
	m := NewMemoryStore(testOptions())
	ctx := context.Background()

	m.SetFailing(errors.New("offline"))
	if _, err := m.GetAll(ctx, schema.KindCategories); !errors.Is(err, ErrRemoteUnavailable) {
		t.Errorf("GetAll() error = %v, want ErrRemoteUnavailable", err)
	}
	var re *RemoteError
	err := m.Put(ctx, schema.KindCategories, doc("c1", 1))
	if !errors.As(err, &re) || re.Op != "put" || re.Kind != schema.KindCategories {
		t.Errorf("Put() error = %#v, want RemoteError{put categories}", err)
	}
	if _, err := m.Subscribe(schema.KindCategories, func([]schema.Document) {}); err == nil {
		t.Error("Subscribe() should fail while the store is failing")
	}
}

// collector records every snapshot a subscription delivers.
type collector struct {
	mu        sync.Mutex
	snapshots [][]string
	ch        chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 64)}
}

func (c *collector) onChange(docs []schema.Document) {
	c.mu.Lock()
	c.snapshots = append(c.snapshots, schema.IDs(docs))
	c.mu.Unlock()
	select {
	case c.ch <- struct{}{}:
	default:
	}
}

// waitFor blocks until a snapshot satisfying ok arrives.
func (c *collector) waitFor(t *testing.T, ok func([]string) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		for _, s := range c.snapshots {
			if ok(s) {
				c.mu.Unlock()
				return
			}
		}
		c.mu.Unlock()
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot; got %v", c.snapshots)
		}
	}
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put(ctx, schema.KindCategories, doc("c1", 1)); err != nil {
				t.Fatalf("Put() failed: %v", err)
			}

			c := newCollector()
			cancel, err := s.Subscribe(schema.KindCategories, c.onChange)
			if err != nil {
				t.Fatalf("Subscribe() failed: %v", err)
			}
			defer cancel()

			c.waitFor(t, func(ids []string) bool { return len(ids) == 1 && ids[0] == "c1" })

			if err := s.Put(ctx, schema.KindCategories, doc("c2", 2)); err != nil {
				t.Fatalf("Put() failed: %v", err)
			}
			c.waitFor(t, func(ids []string) bool { return len(ids) == 2 })

			cancel()
			cancel()
		})
	}
}

func TestStore_SubscribeAfterCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(testOptions())

	c := newCollector()
	cancel, err := m.Subscribe(schema.KindSettings, c.onChange)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	c.waitFor(t, func(ids []string) bool { return len(ids) == 0 })
	cancel()

	c.mu.Lock()
	before := len(c.snapshots)
	c.mu.Unlock()

	if err := m.Put(ctx, schema.KindSettings, doc("s1", 1)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) != before {
		t.Errorf("got %d snapshots after cancel, want %d", len(c.snapshots), before)
	}
}

func TestWaitForPendingWrites(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.BatchPause = 20 * time.Millisecond
	m := NewMemoryStore(opts)

	done := make(chan error, 1)
	go func() { done <- m.PutMany(ctx, schema.KindProducts, docs(6)) }()

	// Give the write a moment to start.
	time.Sleep(5 * time.Millisecond)
	if err := m.WaitForPendingWrites(ctx); err != nil {
		t.Fatalf("WaitForPendingWrites() failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("PutMany() failed: %v", err)
	}
	got, _ := m.GetAll(ctx, schema.KindProducts)
	if len(got) != 6 {
		t.Errorf("GetAll() after wait = %d docs, want 6", len(got))
	}
}

func TestWaitForPendingWrites_ContextCancelled(t *testing.T) {
	var p pending
	p.begin()
	defer p.end()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestSQLStore_CloseStopsSubscriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.db")
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	s, err := NewSQLStore(context.Background(), conn, testOptions(), quietLogger())
	if err != nil {
		t.Fatalf("NewSQLStore() failed: %v", err)
	}

	c := newCollector()
	if _, err := s.Subscribe(schema.KindProducts, c.onChange); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	c.waitFor(t, func([]string) bool { return true })

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := s.Subscribe(schema.KindProducts, c.onChange); err == nil {
		t.Error("Subscribe() after Close should fail")
	}
}

package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// MemoryStore is a goroutine-safe in-process Store. It backs development
// runs without a cloud account and lets tests inject failures.
//
// Subscriptions are push based: every committed chunk wakes the
// subscribers of that kind, which then deliver a fresh snapshot. Bursts of
// changes may be coalesced into one delivery.
type MemoryStore struct {
	opts Options

	mu          sync.Mutex
	collections map[schema.Kind]map[string]schema.Document
	subs        map[schema.Kind]map[*memorySub]struct{}
	failErr     error
	failAfter   int // commits allowed before failErr kicks in, -1 = none
	commits     int

	writes pending
}

type memorySub struct {
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:        opts.withDefaults(),
		collections: make(map[schema.Kind]map[string]schema.Document),
		subs:        make(map[schema.Kind]map[*memorySub]struct{}),
		failAfter:   -1,
	}
}

// SetFailing makes every following call fail with err wrapped in a
// RemoteError. Pass nil to heal the store.
func (m *MemoryStore) SetFailing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
	m.failAfter = -1
}

// FailAfterCommits lets n more chunk commits succeed, then fails every
// later call with err.
func (m *MemoryStore) FailAfterCommits(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
	m.failAfter = m.commits + n
}

// Commits returns how many chunks have been committed so far.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// failing reports the injected error, if any. Callers hold m.mu.
func (m *MemoryStore) failing() error {
	if m.failErr == nil {
		return nil
	}
	if m.failAfter >= 0 && m.commits < m.failAfter {
		return nil
	}
	return m.failErr
}

// GetAll implements Store.GetAll.
func (m *MemoryStore) GetAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error) {
	if err := checkKind("get", kind); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return nil, remoteErr("get", kind, err)
	}
	return m.snapshotLocked(kind), nil
}

func (m *MemoryStore) snapshotLocked(kind schema.Kind) []schema.Document {
	coll := m.collections[kind]
	docs := make([]schema.Document, 0, len(coll))
	for _, d := range coll {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if kind.Ordered() && docs[i].CreatedAt != docs[j].CreatedAt {
			return docs[i].CreatedAt > docs[j].CreatedAt
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// Put implements Store.Put.
func (m *MemoryStore) Put(ctx context.Context, kind schema.Kind, doc schema.Document) error {
	return m.PutMany(ctx, kind, []schema.Document{doc})
}

// PutMany implements Store.PutMany.
func (m *MemoryStore) PutMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if err := checkKind("put", kind); err != nil {
		return err
	}
	m.writes.begin()
	defer m.writes.end()

	err := runChunks(ctx, docs, m.opts.batchSize(kind), m.opts.BatchPause, func(batch []schema.Document) error {
		for _, d := range batch {
			if err := d.Validate(); err != nil {
				return err
			}
		}
		return m.commit(kind, func(coll map[string]schema.Document) {
			for _, d := range batch {
				coll[d.ID] = d
			}
		})
	})
	return remoteErr("put", kind, err)
}

// ReplaceAll implements Store.ReplaceAll.
func (m *MemoryStore) ReplaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if err := m.Clear(ctx, kind); err != nil {
		return err
	}
	return m.PutMany(ctx, kind, docs)
}

// Delete implements Store.Delete.
func (m *MemoryStore) Delete(ctx context.Context, kind schema.Kind, id string) error {
	return m.DeleteMany(ctx, kind, []string{id})
}

// DeleteMany implements Store.DeleteMany.
func (m *MemoryStore) DeleteMany(ctx context.Context, kind schema.Kind, ids []string) error {
	if err := checkKind("delete", kind); err != nil {
		return err
	}
	m.writes.begin()
	defer m.writes.end()

	err := runChunks(ctx, ids, m.opts.batchSize(kind), m.opts.BatchPause, func(batch []string) error {
		return m.commit(kind, func(coll map[string]schema.Document) {
			for _, id := range batch {
				delete(coll, id)
			}
		})
	})
	return remoteErr("delete", kind, err)
}

// Clear implements Store.Clear.
func (m *MemoryStore) Clear(ctx context.Context, kind schema.Kind) error {
	if err := checkKind("clear", kind); err != nil {
		return err
	}
	m.writes.begin()
	defer m.writes.end()

	err := m.commit(kind, func(coll map[string]schema.Document) {
		for id := range coll {
			delete(coll, id)
		}
	})
	return remoteErr("clear", kind, err)
}

// commit applies fn atomically and wakes subscribers.
func (m *MemoryStore) commit(kind schema.Kind, fn func(map[string]schema.Document)) error {
	m.mu.Lock()
	if err := m.failing(); err != nil {
		m.mu.Unlock()
		return err
	}
	coll, ok := m.collections[kind]
	if !ok {
		coll = make(map[string]schema.Document)
		m.collections[kind] = coll
	}
	fn(coll)
	m.commits++
	subs := make([]*memorySub, 0, len(m.subs[kind]))
	for sub := range m.subs[kind] {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.wake()
	}
	return nil
}

// WaitForPendingWrites implements Store.WaitForPendingWrites.
func (m *MemoryStore) WaitForPendingWrites(ctx context.Context) error {
	return m.writes.wait(ctx)
}

// Subscribe implements Store.Subscribe.
func (m *MemoryStore) Subscribe(kind schema.Kind, onChange func([]schema.Document)) (func(), error) {
	if err := checkKind("subscribe", kind); err != nil {
		return nil, err
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}

	m.mu.Lock()
	if err := m.failing(); err != nil {
		m.mu.Unlock()
		return nil, remoteErr("subscribe", kind, err)
	}
	sub := &memorySub{notify: make(chan struct{}, 1), done: make(chan struct{})}
	if m.subs[kind] == nil {
		m.subs[kind] = make(map[*memorySub]struct{})
	}
	m.subs[kind][sub] = struct{}{}
	m.mu.Unlock()

	sub.wake()
	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-sub.notify:
			}
			m.mu.Lock()
			docs := m.snapshotLocked(kind)
			m.mu.Unlock()

			select {
			case <-sub.done:
				return
			default:
				onChange(docs)
			}
		}
	}()

	return func() {
		m.mu.Lock()
		delete(m.subs[kind], sub)
		m.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
	}, nil
}

// wake schedules a delivery, coalescing with one already pending.
func (s *memorySub) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close drops every subscription.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	all := m.subs
	m.subs = make(map[schema.Kind]map[*memorySub]struct{})
	m.mu.Unlock()

	for _, subs := range all {
		for sub := range subs {
			sub.once.Do(func() { close(sub.done) })
		}
	}
	return nil
}

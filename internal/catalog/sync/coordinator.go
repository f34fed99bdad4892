package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/crumbworks/storefront/internal/catalog/remote"
	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// LocalStore is the durable on-device store. *db.DB implements it.
type LocalStore interface {
	GetAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error)
	Put(ctx context.Context, kind schema.Kind, doc schema.Document) error
	PutMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error
	ReplaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error
	Delete(ctx context.Context, kind schema.Kind, id string) error
	DeleteMany(ctx context.Context, kind schema.Kind, ids []string) error
	Clear(ctx context.Context, kind schema.Kind) error
}

// Config selects the coordinator's behavior.
type Config struct {
	// RemoteEnabled turns on the remote mirror. It is derived from whether
	// a remote credential is configured.
	RemoteEnabled bool

	// Logger receives remote failures and resync notices. If nil, a
	// default logger writing to stderr is used.
	Logger *log.Logger
}

// Coordinator is the catalog's single read/write entry point. It is safe for
// concurrent use.
type Coordinator struct {
	strategy strategy
	tracker  *tracker
	logger   *log.Logger
}

// New builds a Coordinator over local and, when cfg.RemoteEnabled is set,
// rem. rem may be nil when remote sync is disabled.
//
// Example:
//
//	local, err := db.Open(".storefront/storefront.db")
//	if err != nil {
//	    return err
//	}
//	coord, err := sync.New(local, nil, sync.Config{})
func New(local LocalStore, rem remote.Store, cfg Config) (*Coordinator, error) {
	if local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if cfg.RemoteEnabled && rem == nil {
		return nil, fmt.Errorf("remote sync enabled but no remote store given")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	t := &tracker{remoteEnabled: cfg.RemoteEnabled}
	base := localOnly{local: local}

	var s strategy = base
	if cfg.RemoteEnabled {
		s = &localPlusRemote{localOnly: base, remote: rem, logger: logger, tracker: t}
	}
	return &Coordinator{strategy: s, tracker: t, logger: logger}, nil
}

// RemoteEnabled reports whether writes are mirrored to the remote store.
func (c *Coordinator) RemoteEnabled() bool {
	return c.tracker.remoteEnabled
}

// GetAll returns every record of kind. With remote sync on, the remote
// snapshot is fetched and copied over the local mirror first; if the remote
// cannot be reached, the local mirror is returned instead.
func (c *Coordinator) GetAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error) {
	return c.strategy.getAll(ctx, kind)
}

// Subscribe calls onChange with the local snapshot of kind before it
// returns, then again after every remote change once the local mirror has
// been resynced. The returned func detaches the subscription and may be
// called more than once.
func (c *Coordinator) Subscribe(ctx context.Context, kind schema.Kind, onChange func([]schema.Document)) (func(), error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}
	return c.strategy.subscribe(ctx, kind, onChange)
}

// Put upserts one record.
func (c *Coordinator) Put(ctx context.Context, kind schema.Kind, doc schema.Document) error {
	return c.strategy.put(ctx, kind, doc)
}

// PutMany upserts docs. Records absent from docs are kept.
func (c *Coordinator) PutMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	return c.strategy.putMany(ctx, kind, docs)
}

// ReplaceAll makes kind hold exactly docs.
func (c *Coordinator) ReplaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	return c.strategy.replaceAll(ctx, kind, docs)
}

// Delete removes one record.
func (c *Coordinator) Delete(ctx context.Context, kind schema.Kind, id string) error {
	return c.strategy.delete(ctx, kind, id)
}

// DeleteMany removes ids.
func (c *Coordinator) DeleteMany(ctx context.Context, kind schema.Kind, ids []string) error {
	return c.strategy.deleteMany(ctx, kind, ids)
}

// Clear removes every record of kind.
func (c *Coordinator) Clear(ctx context.Context, kind schema.Kind) error {
	return c.strategy.clear(ctx, kind)
}

// WaitForPendingWrites blocks until remote writes in flight have settled.
// It returns at once when remote sync is off.
func (c *Coordinator) WaitForPendingWrites(ctx context.Context) error {
	return c.strategy.flush(ctx)
}

// Status returns a snapshot of the remote mirror's health.
func (c *Coordinator) Status() Status {
	return c.tracker.snapshot()
}

// Status summarizes remote sync health. Remote failures are otherwise
// invisible to callers.
//
// Failing holds, per kind, the error of the last remote call that failed
// and has not been followed by a successful call for the same kind. A
// success for one kind never hides a failure of another.
type Status struct {
	RemoteEnabled  bool                   `json:"remote_enabled" yaml:"remote_enabled"`
	RemoteOK       int                    `json:"remote_ok" yaml:"remote_ok"`
	RemoteFailures int                    `json:"remote_failures" yaml:"remote_failures"`
	Resyncs        int                    `json:"resyncs" yaml:"resyncs"`
	Failing        map[schema.Kind]string `json:"failing,omitempty" yaml:"failing,omitempty"`
	LastError      string                 `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastErrorAt    time.Time              `json:"last_error_at,omitempty" yaml:"last_error_at,omitempty"`
	LastResyncAt   time.Time              `json:"last_resync_at,omitempty" yaml:"last_resync_at,omitempty"`
}

// Degraded reports whether some kind's most recent remote call failed.
func (s Status) Degraded() bool {
	return s.RemoteEnabled && len(s.Failing) > 0
}

// FailingKinds returns the kinds in Failing, in schema.AllKinds order.
func (s Status) FailingKinds() []schema.Kind {
	var kinds []schema.Kind
	for _, k := range schema.AllKinds {
		if _, ok := s.Failing[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

type tracker struct {
	remoteEnabled bool

	mu stdsync.Mutex
	st Status
}

func (t *tracker) ok(kind schema.Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.RemoteOK++
	delete(t.st.Failing, kind)
	if len(t.st.Failing) == 0 {
		t.st.LastError = ""
	}
}

func (t *tracker) failed(kind schema.Kind, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.RemoteFailures++
	if t.st.Failing == nil {
		t.st.Failing = make(map[schema.Kind]string)
	}
	t.st.Failing[kind] = err.Error()
	t.st.LastError = err.Error()
	t.st.LastErrorAt = time.Now()
}

func (t *tracker) resynced() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.Resyncs++
	t.st.LastResyncAt = time.Now()
}

func (t *tracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.st
	st.RemoteEnabled = t.remoteEnabled
	if len(t.st.Failing) > 0 {
		st.Failing = make(map[schema.Kind]string, len(t.st.Failing))
		for k, v := range t.st.Failing {
			st.Failing[k] = v
		}
	}
	return st
}

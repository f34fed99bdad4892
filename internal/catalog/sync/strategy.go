package sync

import (
	"context"
	"log"

	"github.com/crumbworks/storefront/internal/catalog/remote"
	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// strategy is the read/write policy chosen once by New.
type strategy interface {
	getAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error)
	subscribe(ctx context.Context, kind schema.Kind, onChange func([]schema.Document)) (func(), error)
	put(ctx context.Context, kind schema.Kind, doc schema.Document) error
	putMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error
	replaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error
	delete(ctx context.Context, kind schema.Kind, id string) error
	deleteMany(ctx context.Context, kind schema.Kind, ids []string) error
	clear(ctx context.Context, kind schema.Kind) error
	flush(ctx context.Context) error
}

func noop() {}

// localOnly serves every call from the local store.
type localOnly struct {
	local LocalStore
}

func (s localOnly) getAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error) {
	return s.local.GetAll(ctx, kind)
}

func (s localOnly) subscribe(ctx context.Context, kind schema.Kind, onChange func([]schema.Document)) (func(), error) {
	docs, err := s.local.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	onChange(docs)
	return noop, nil
}

func (s localOnly) put(ctx context.Context, kind schema.Kind, doc schema.Document) error {
	return s.local.Put(ctx, kind, doc)
}

func (s localOnly) putMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	return s.local.PutMany(ctx, kind, docs)
}

func (s localOnly) replaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	return s.local.ReplaceAll(ctx, kind, docs)
}

func (s localOnly) delete(ctx context.Context, kind schema.Kind, id string) error {
	return s.local.Delete(ctx, kind, id)
}

func (s localOnly) deleteMany(ctx context.Context, kind schema.Kind, ids []string) error {
	return s.local.DeleteMany(ctx, kind, ids)
}

func (s localOnly) clear(ctx context.Context, kind schema.Kind) error {
	return s.local.Clear(ctx, kind)
}

func (s localOnly) flush(ctx context.Context) error {
	return nil
}

// localPlusRemote tries the remote store first for mirrorable kinds and
// always finishes against the local store. Non-mirrorable kinds fall
// through to localOnly.
type localPlusRemote struct {
	localOnly
	remote  remote.Store
	logger  *log.Logger
	tracker *tracker
}

// attempt runs one remote call and absorbs its failure.
func (s *localPlusRemote) attempt(op string, kind schema.Kind, fn func() error) bool {
	if err := fn(); err != nil {
		s.tracker.failed(kind, err)
		s.logger.Printf("WARNING: remote %s %s failed, continuing locally: %v", op, kind, err)
		return false
	}
	s.tracker.ok(kind)
	return true
}

func (s *localPlusRemote) getAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error) {
	if !kind.Mirrorable() {
		return s.localOnly.getAll(ctx, kind)
	}

	var docs []schema.Document
	fetched := s.attempt("get", kind, func() error {
		var err error
		docs, err = s.remote.GetAll(ctx, kind)
		return err
	})
	if !fetched {
		return s.localOnly.getAll(ctx, kind)
	}

	if err := s.local.ReplaceAll(ctx, kind, docs); err != nil {
		return nil, err
	}
	s.tracker.resynced()
	return docs, nil
}

func (s *localPlusRemote) subscribe(ctx context.Context, kind schema.Kind, onChange func([]schema.Document)) (func(), error) {
	// First paint always comes from the local mirror.
	if _, err := s.localOnly.subscribe(ctx, kind, onChange); err != nil {
		return nil, err
	}
	if !kind.Mirrorable() {
		return noop, nil
	}

	var cancel func()
	attached := s.attempt("subscribe", kind, func() error {
		var err error
		cancel, err = s.remote.Subscribe(kind, func(docs []schema.Document) {
			s.resync(kind, docs, onChange)
		})
		return err
	})
	if !attached {
		return noop, nil
	}
	return cancel, nil
}

// resync copies a pushed remote snapshot over the local mirror, then hands
// it to the subscriber.
func (s *localPlusRemote) resync(kind schema.Kind, docs []schema.Document, onChange func([]schema.Document)) {
	if err := s.local.ReplaceAll(context.Background(), kind, docs); err != nil {
		s.logger.Printf("ERROR: resync of local %s failed: %v", kind, err)
	} else {
		s.tracker.resynced()
	}
	onChange(docs)
}

func (s *localPlusRemote) put(ctx context.Context, kind schema.Kind, doc schema.Document) error {
	if kind.Mirrorable() {
		s.attempt("put", kind, func() error { return s.remote.Put(ctx, kind, doc) })
	}
	return s.localOnly.put(ctx, kind, doc)
}

func (s *localPlusRemote) putMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if kind.Mirrorable() && len(docs) > 0 {
		s.attempt("put", kind, func() error { return s.remote.PutMany(ctx, kind, docs) })
	}
	return s.localOnly.putMany(ctx, kind, docs)
}

func (s *localPlusRemote) replaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if kind.Mirrorable() {
		s.attempt("replace", kind, func() error { return s.remote.ReplaceAll(ctx, kind, docs) })
	}
	return s.localOnly.replaceAll(ctx, kind, docs)
}

func (s *localPlusRemote) delete(ctx context.Context, kind schema.Kind, id string) error {
	if kind.Mirrorable() {
		s.attempt("delete", kind, func() error { return s.remote.Delete(ctx, kind, id) })
	}
	return s.localOnly.delete(ctx, kind, id)
}

func (s *localPlusRemote) deleteMany(ctx context.Context, kind schema.Kind, ids []string) error {
	if kind.Mirrorable() && len(ids) > 0 {
		s.attempt("delete", kind, func() error { return s.remote.DeleteMany(ctx, kind, ids) })
	}
	return s.localOnly.deleteMany(ctx, kind, ids)
}

func (s *localPlusRemote) clear(ctx context.Context, kind schema.Kind) error {
	if kind.Mirrorable() {
		s.attempt("clear", kind, func() error { return s.remote.Clear(ctx, kind) })
	}
	return s.localOnly.clear(ctx, kind)
}

func (s *localPlusRemote) flush(ctx context.Context) error {
	return s.remote.WaitForPendingWrites(ctx)
}

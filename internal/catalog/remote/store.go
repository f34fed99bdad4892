// Package remote provides the optional cloud document store the catalog
// mirrors to.
//
// One remote collection exists per mirrorable kind (products, categories,
// settings); the document id is the entity id and the document body is the
// full record, inline images included. Drafts are never sent here.
//
// Multi-record writes are split into chunks that are committed one after
// another with a short pause in between. Product chunks are smaller because
// product documents embed image data. Each chunk is atomic on its own; when
// a later chunk fails the earlier ones stay applied.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// Store is a remote document store.
//
// Implementations wrap every failure so that errors.Is(err,
// ErrRemoteUnavailable) holds. Callers are expected to log and move on.
type Store interface {
	// GetAll returns every document of kind. Products and categories come
	// back newest first.
	GetAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error)

	// Put upserts one document.
	Put(ctx context.Context, kind schema.Kind, doc schema.Document) error

	// PutMany upserts docs in sequential chunks. Documents absent from docs
	// are left untouched.
	PutMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error

	// ReplaceAll makes the collection hold exactly docs.
	ReplaceAll(ctx context.Context, kind schema.Kind, docs []schema.Document) error

	// Delete removes one document.
	Delete(ctx context.Context, kind schema.Kind, id string) error

	// DeleteMany removes ids in sequential chunks.
	DeleteMany(ctx context.Context, kind schema.Kind, ids []string) error

	// Clear removes every document of kind.
	Clear(ctx context.Context, kind schema.Kind) error

	// Subscribe delivers the current snapshot of kind to onChange, then a
	// fresh snapshot after every change. The returned func detaches the
	// subscription; calling it more than once is safe.
	Subscribe(kind schema.Kind, onChange func([]schema.Document)) (cancel func(), err error)

	// WaitForPendingWrites blocks until every write in flight has settled.
	WaitForPendingWrites(ctx context.Context) error

	// Close releases the store.
	Close() error
}

var (
	// ErrRemoteUnavailable is matched by every error a Store returns:
	// network, auth, quota or backend failures.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrNotMirrorable is returned for kinds that never leave the device.
	ErrNotMirrorable = errors.New("kind is not mirrored remotely")
)

// RemoteError describes a failed remote operation.
type RemoteError struct {
	Op   string
	Kind schema.Kind
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is makes every RemoteError match ErrRemoteUnavailable.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

func remoteErr(op string, kind schema.Kind, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Kind: kind, Err: err}
}

func checkKind(op string, kind schema.Kind) error {
	if !kind.Mirrorable() {
		return remoteErr(op, kind, ErrNotMirrorable)
	}
	return nil
}

// Options tunes batching and change polling.
type Options struct {
	// ProductBatchSize is the chunk size for product writes.
	ProductBatchSize int

	// BatchSize is the chunk size for every other kind.
	BatchSize int

	// BatchPause is the pause between two chunks of one bulk call.
	BatchPause time.Duration

	// PollInterval is how often subscriptions check for changes.
	PollInterval time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ProductBatchSize: 10,
		BatchSize:        400,
		BatchPause:       50 * time.Millisecond,
		PollInterval:     2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ProductBatchSize <= 0 {
		o.ProductBatchSize = def.ProductBatchSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.BatchPause < 0 {
		o.BatchPause = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	return o
}

// batchSize returns the chunk size used for kind.
func (o Options) batchSize(kind schema.Kind) int {
	if kind == schema.KindProducts {
		return o.ProductBatchSize
	}
	return o.BatchSize
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// runChunks commits each chunk in order, pausing between chunks. It stops
// at the first failing chunk; earlier chunks are not rolled back.
func runChunks[T any](ctx context.Context, items []T, size int, pause time.Duration, commit func([]T) error) error {
	chunks := chunk(items, size)
	for i, c := range chunks {
		if i > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
		if err := commit(c); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

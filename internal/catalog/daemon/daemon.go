package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/crumbworks/storefront/internal/catalog/media"
	"github.com/crumbworks/storefront/internal/catalog/migrate"
	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
)

// IngestedDir is the inbox subdirectory images are moved to once staged.
const IngestedDir = "ingested"

// Publisher receives everything the daemon observes. *dashboard.Handler
// implements it. Methods may be called from several goroutines.
type Publisher interface {
	OnSnapshot(kind schema.Kind, docs []schema.Document)
	OnSyncStatus(status catalogsync.Status)
	OnDraftStaged(d schema.Draft)
}

// Config holds configuration for the daemon.
type Config struct {
	// InboxDir is watched for image files to stage as drafts. Empty
	// disables the inbox.
	InboxDir string

	// DebounceInterval is how long a file must stay quiet before it is
	// ingested. Editors and copy tools write images in several steps.
	DebounceInterval time.Duration

	// StatusInterval is how often sync health is published
	StatusInterval time.Duration

	// Kinds are the collections kept subscribed (default: mirrorable kinds)
	Kinds []schema.Kind

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		StatusInterval:   5 * time.Second,
		Kinds:            schema.MirrorableKinds,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.DebounceInterval <= 0 {
		out.DebounceInterval = def.DebounceInterval
	}
	if out.StatusInterval <= 0 {
		out.StatusInterval = def.StatusInterval
	}
	if len(out.Kinds) == 0 {
		out.Kinds = def.Kinds
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	return &out
}

// Daemon keeps the catalog live for the dashboard: it runs the legacy
// migration once, holds a subscription on every configured kind, stages
// inbox images as drafts and reports sync health.
type Daemon struct {
	coord     *catalogsync.Coordinator
	local     migrate.Reader
	legacy    migrate.LegacyStore
	publisher Publisher
	config    *Config

	watcher       *InboxWatcher
	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu sync.Mutex

	cancels []func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// New creates a Daemon.
//
// local is inspected by the legacy migration; legacy may be nil to skip
// it. publisher may be nil when nobody is listening.
func New(coord *catalogsync.Coordinator, local migrate.Reader, legacy migrate.LegacyStore, publisher Publisher, config *Config) (*Daemon, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if legacy != nil && local == nil {
		return nil, fmt.Errorf("legacy migration needs the local store")
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	config = config.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		coord:       coord,
		local:       local,
		legacy:      legacy,
		publisher:   publisher,
		config:      config,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run the one-time legacy migration
// 2. Subscribe to every configured kind and publish each snapshot
// 3. Stage images already waiting in the inbox, then watch it
// 4. Publish sync status periodically
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	logger := d.config.Logger
	logger.Println("Starting daemon")

	if d.legacy != nil {
		res, err := migrate.Run(ctx, d.local, d.coord, d.legacy, migrate.MigrateOptions{Logger: logger})
		if err != nil {
			return fmt.Errorf("legacy migration failed: %w", err)
		}
		if !res.Skipped {
			logger.Printf("Migrated %d products, %d categories", res.ProductsMigrated, res.CategoriesMigrated)
		}
	}

	for _, kind := range d.config.Kinds {
		kind := kind
		cancel, err := d.coord.Subscribe(ctx, kind, func(docs []schema.Document) {
			d.publisher.OnSnapshot(kind, docs)
		})
		if err != nil {
			d.unsubscribe()
			return fmt.Errorf("failed to subscribe to %s: %w", kind, err)
		}
		d.cancels = append(d.cancels, cancel)
	}

	if d.config.InboxDir != "" {
		if err := d.startInbox(ctx); err != nil {
			d.unsubscribe()
			return err
		}
	}

	d.publisher.OnSyncStatus(d.coord.Status())
	d.wg.Add(1)
	go d.reportStatus()

	select {
	case <-ctx.Done():
		logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}
		d.wg.Wait()
		d.unsubscribe()

		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

func (d *Daemon) unsubscribe() {
	for _, cancel := range d.cancels {
		cancel()
	}
	d.cancels = nil
}

func (d *Daemon) startInbox(ctx context.Context) error {
	dir := d.config.InboxDir
	if err := os.MkdirAll(filepath.Join(dir, IngestedDir), 0750); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	watcher, err := NewInboxWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Start(dir); err != nil {
		_ = watcher.Stop()
		return err
	}
	d.watcher = watcher
	d.config.Logger.Printf("Watching inbox: %s", watcher.Dir())

	if _, err := d.ScanInbox(ctx); err != nil {
		d.config.Logger.Printf("Warning: inbox scan failed: %v", err)
	}

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	return nil
}

// ScanInbox stages every image already in the inbox, in name order, and
// returns the drafts created.
func (d *Daemon) ScanInbox(ctx context.Context) ([]schema.Draft, error) {
	entries, err := os.ReadDir(d.config.InboxDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && media.IsImageName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var drafts []schema.Draft
	for _, name := range names {
		draft, err := d.IngestFile(ctx, filepath.Join(d.config.InboxDir, name))
		if err != nil {
			d.config.Logger.Printf("Warning: failed to stage %s: %v", name, err)
			continue
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

// IngestFile stores the image at path as a new draft and moves the file
// into the ingested subdirectory. Files that are not images are left where
// they are.
func (d *Daemon) IngestFile(ctx context.Context, path string) (schema.Draft, error) {
	image, err := media.EncodeFile(path)
	if err != nil {
		return schema.Draft{}, err
	}

	draft := schema.Draft{
		ID:        schema.NewDraftID(),
		Image:     image,
		Source:    filepath.Base(path),
		CreatedAt: schema.Now(),
	}
	if err := catalogsync.Drafts(d.coord).Put(ctx, draft); err != nil {
		return schema.Draft{}, fmt.Errorf("failed to save draft: %w", err)
	}

	dest := filepath.Join(filepath.Dir(path), IngestedDir, draft.ID+filepath.Ext(path))
	if err := os.Rename(path, dest); err != nil {
		d.config.Logger.Printf("Warning: staged %s but could not move it: %v", path, err)
	}

	d.publisher.OnDraftStaged(draft)
	d.publishKind(ctx, schema.KindDrafts)
	return draft, nil
}

// publishKind sends a fresh snapshot of a kind nobody is subscribed to.
func (d *Daemon) publishKind(ctx context.Context, kind schema.Kind) {
	docs, err := d.coord.GetAll(ctx, kind)
	if err != nil {
		d.config.Logger.Printf("Error reading %s: %v", kind, err)
		return
	}
	d.publisher.OnSnapshot(kind, docs)
}

// watchFileEvents queues inbox changes for the debounce loop.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, event.Path)
			if event.Op == OpDelete {
				d.dequeue(event.Path)
				continue
			}
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[path] = time.Now()
}

func (d *Daemon) dequeue(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	delete(d.changeQueue, path)
}

// processChangeQueue ingests queued files once they have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	interval := d.config.DebounceInterval / 2
	if interval <= 0 {
		interval = d.config.DebounceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

func (d *Daemon) processPendingChanges() {
	now := time.Now()

	d.changeQueueMu.Lock()
	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		d.config.Logger.Printf("Processing change: %s", path)
		if _, err := d.IngestFile(d.ctx, path); err != nil {
			d.config.Logger.Printf("Error staging %s: %v", path, err)
		}
	}
}

// reportStatus periodically publishes sync health.
func (d *Daemon) reportStatus() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.publisher.OnSyncStatus(d.coord.Status())
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) OnSnapshot(schema.Kind, []schema.Document) {}
func (nopPublisher) OnSyncStatus(catalogsync.Status)           {}
func (nopPublisher) OnDraftStaged(schema.Draft)                {}

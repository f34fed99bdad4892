package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/text/language"

	"github.com/crumbworks/storefront/internal/catalog/db"
	"github.com/crumbworks/storefront/internal/catalog/migrate"
	"github.com/crumbworks/storefront/internal/catalog/remote"
	"github.com/crumbworks/storefront/internal/catalog/remote/turso"
	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/catalog/taxonomy"
	"github.com/crumbworks/storefront/internal/config"
	"github.com/crumbworks/storefront/internal/logging"
)

// app is the wiring shared by every command.
type app struct {
	cfg    *config.Config
	logs   *logging.Factory
	local  *db.DB
	remote remote.Store
	coord  *catalogsync.Coordinator
}

// openApp loads configuration and opens the stores. Remote connection
// failures are not fatal: the app falls back to local-only mode.
func openApp(ctx context.Context) (*app, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	logs, err := logging.New(logging.Config{File: cfg.Log.File, Quiet: cfg.Log.Quiet})
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	local, err := db.Open(cfg.DatabasePath())
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logs: logs, local: local}
	a.remote = a.openRemote(ctx)

	a.coord, err = catalogsync.New(local, a.remote, catalogsync.Config{
		RemoteEnabled: a.remote != nil,
		Logger:        logs.Logger("sync"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openRemote(ctx context.Context) remote.Store {
	logger := a.logs.Logger("remote")
	switch a.cfg.RemoteMode() {
	case config.RemoteTurso:
		store, err := turso.Open(ctx, a.cfg.Remote.URL, a.cfg.Remote.Token, a.cfg.RemoteOptions(), logger)
		if err != nil {
			logger.Printf("WARNING: remote unavailable, running local-only: %v", err)
			return nil
		}
		return store
	case config.RemoteMemory:
		mem := remote.NewMemoryStore(a.cfg.RemoteOptions())
		if err := a.seedMemory(ctx, mem); err != nil {
			logger.Printf("WARNING: could not seed in-process remote: %v", err)
		}
		return mem
	}
	return nil
}

// seedMemory copies the local catalog into a fresh in-process remote, so
// the first read-through does not wipe the local mirror.
func (a *app) seedMemory(ctx context.Context, mem *remote.MemoryStore) error {
	for _, kind := range schema.MirrorableKinds {
		docs, err := a.local.GetAll(ctx, kind)
		if err != nil {
			return err
		}
		if err := mem.ReplaceAll(ctx, kind, docs); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the stores and the log file.
func (a *app) Close() {
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logs.Logger("remote").Printf("Error closing remote: %v", err)
		}
	}
	if err := a.local.Close(); err != nil {
		a.logs.Logger("db").Printf("Error closing local store: %v", err)
	}
	_ = a.logs.Close()
}

// reconciler sorts taxonomy names by the configured locale.
func (a *app) reconciler() *taxonomy.Reconciler {
	tag, err := language.Parse(a.cfg.Locale)
	if err != nil {
		a.logs.Logger("taxonomy").Printf("Warning: unknown locale %q, using root order", a.cfg.Locale)
		tag = language.Und
	}
	return taxonomy.New(tag)
}

// resolver reconciles the current catalog.
func (a *app) resolver(ctx context.Context) (*taxonomy.Resolver, error) {
	categories, err := catalogsync.Categories(a.coord).All(ctx)
	if err != nil {
		return nil, err
	}
	products, err := catalogsync.Products(a.coord).All(ctx)
	if err != nil {
		return nil, err
	}
	return taxonomy.NewResolver(a.reconciler().Reconcile(categories, products)), nil
}

// legacyStore returns the configured legacy source: a JSON dump when
// legacy_file is set, else the local store's key-value table.
func (a *app) legacyStore(from string) migrate.LegacyStore {
	if from == "" {
		from = a.cfg.LegacyFile
	}
	if from != "" {
		return migrate.NewFileLegacyStore(from)
	}
	return a.local
}

// flush waits for in-flight remote writes before the process exits.
func (a *app) flush(ctx context.Context) {
	if err := a.coord.WaitForPendingWrites(ctx); err != nil {
		a.logs.Logger("sync").Printf("Warning: pending remote writes not confirmed: %v", err)
	}
}

// mustOpen opens the app or exits.
func mustOpen(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	return a
}

// fatalf closes the app before exiting so the local store is left clean.
func (a *app) fatalf(format string, args ...interface{}) {
	a.Close()
	fatalf(format, args...)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

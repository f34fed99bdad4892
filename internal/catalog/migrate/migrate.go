package migrate

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/crumbworks/storefront/internal/catalog/schema"
)

// Reader is the part of the local store the migration inspects.
type Reader interface {
	GetAll(ctx context.Context, kind schema.Kind) ([]schema.Document, error)
}

// Writer receives migrated records. *sync.Coordinator implements it, so
// migrated data takes the same remote-then-local path as any other write.
type Writer interface {
	PutMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error
}

// MigrateOptions configures a migration run.
type MigrateOptions struct {
	DryRun bool        // Parse and count without writing or deleting keys
	Logger *log.Logger // Defaults to stderr with a "[migrate] " prefix
}

// MigrateResult contains statistics about the migration.
type MigrateResult struct {
	Skipped            bool // Local stores already held data and nothing was left to resume
	ProductsMigrated   int
	CategoriesMigrated int
	KeysDeleted        []string
	Errors             []string
}

// Run performs the one-time legacy migration.
//
// Nothing happens unless the local products and categories stores are
// both empty, or a previous run consumed one legacy key and failed before
// the other: a kind whose store is still empty is migrated when the other
// kind's store is empty too or its legacy key is gone. Categories are
// written before products so the first product snapshot already resolves
// its category. A legacy key is deleted only after its records were
// written; a key holding no parseable array is left alone and reported in
// Errors.
//
// Example:
//
//	res, err := migrate.Run(ctx, local, coord, local, migrate.MigrateOptions{})
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("migrated %d products\n", res.ProductsMigrated)
func Run(ctx context.Context, local Reader, w Writer, legacy LegacyStore, opts MigrateOptions) (*MigrateResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}
	result := &MigrateResult{}

	steps := []*step{
		{key: CategoriesKey, kind: schema.KindCategories, decode: decodeCategories, count: &result.CategoriesMigrated},
		{key: ProductsKey, kind: schema.KindProducts, decode: decodeProducts, count: &result.ProductsMigrated},
	}
	for _, st := range steps {
		empty, err := kindEmpty(ctx, local, st.kind)
		if err != nil {
			return nil, err
		}
		st.empty = empty
		value, ok, err := legacy.LegacyValue(ctx, st.key)
		if err != nil {
			return result, fmt.Errorf("failed to read legacy key %s: %w", st.key, err)
		}
		st.value, st.present = value, ok
	}
	steps[0].eligible = steps[0].empty && (steps[1].empty || !steps[1].present)
	steps[1].eligible = steps[1].empty && (steps[0].empty || !steps[0].present)
	if !steps[0].eligible && !steps[1].eligible {
		result.Skipped = true
		return result, nil
	}

	for _, st := range steps {
		if !st.eligible || !st.present {
			continue
		}

		items, err := parseLegacyArray(st.value)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", st.key, err))
			logger.Printf("WARNING: legacy key %s left in place: %v", st.key, err)
			continue
		}
		docs := st.decode(items, result)
		*st.count = len(docs)

		if opts.DryRun {
			continue
		}
		if err := w.PutMany(ctx, st.kind, docs); err != nil {
			return result, fmt.Errorf("failed to write migrated %s: %w", st.kind, err)
		}
		if err := legacy.DeleteLegacy(ctx, st.key); err != nil {
			return result, fmt.Errorf("failed to delete legacy key %s: %w", st.key, err)
		}
		result.KeysDeleted = append(result.KeysDeleted, st.key)
	}

	if result.ProductsMigrated+result.CategoriesMigrated > 0 {
		logger.Printf("Migrated %d products and %d categories from legacy storage (errors=%d)",
			result.ProductsMigrated, result.CategoriesMigrated, len(result.Errors))
	}
	return result, nil
}

// step is one legacy key and the local kind it feeds.
type step struct {
	key    string
	kind   schema.Kind
	decode func([]jsonItem, *MigrateResult) []schema.Document
	count  *int

	empty    bool // local store for kind holds nothing
	present  bool // legacy key still exists
	value    string
	eligible bool
}

func kindEmpty(ctx context.Context, local Reader, kind schema.Kind) (bool, error) {
	docs, err := local.GetAll(ctx, kind)
	if err != nil {
		return false, fmt.Errorf("failed to inspect local %s: %w", kind, err)
	}
	return len(docs) == 0, nil
}

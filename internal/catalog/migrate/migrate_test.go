package migrate

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crumbworks/storefront/internal/catalog/db"
	"github.com/crumbworks/storefront/internal/catalog/remote"
	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
)

const legacyProducts = `[
	{"id": 1700000000000, "name": "Carrot cake", "price": 32, "tags": ["cake", 7], "categoryId": "cat_1"},
	{"id": "p2", "name": "Lemon tart", "price": "contact", "createdAt": "2024-03-01T10:00:00Z"},
	{"name": "No id yet"},
	"not an object"
]`

const legacyCategories = `[{"id": "cat_1", "name": "Cakes"}, {"id": "cat_2", "name": "  "}]`

type env struct {
	local  *db.DB
	remote *remote.MemoryStore
	coord  *catalogsync.Coordinator
	opts   MigrateOptions
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	local, err := db.Open(filepath.Join(t.TempDir(), "storefront.db"))
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	rem := remote.NewMemoryStore(remote.Options{})
	logger := log.New(io.Discard, "", 0)
	coord, err := catalogsync.New(local, rem, catalogsync.Config{RemoteEnabled: true, Logger: logger})
	if err != nil {
		t.Fatalf("sync.New() failed: %v", err)
	}
	return &env{local: local, remote: rem, coord: coord, opts: MigrateOptions{Logger: logger}}
}

func (e *env) seedLegacy(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := e.local.SetLegacyValue(ctx, ProductsKey, legacyProducts); err != nil {
		t.Fatalf("SetLegacyValue() failed: %v", err)
	}
	if err := e.local.SetLegacyValue(ctx, CategoriesKey, legacyCategories); err != nil {
		t.Fatalf("SetLegacyValue() failed: %v", err)
	}
}

func countAll(t *testing.T, e *env) (products, categories int) {
	t.Helper()
	ctx := context.Background()
	p, err := e.local.Count(ctx, schema.KindProducts)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	c, err := e.local.Count(ctx, schema.KindCategories)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	return p, c
}

func TestRun_MigratesAndDeletesKeys(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	e.seedLegacy(t)

	res, err := Run(ctx, e.local, e.coord, e.local, e.opts)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Skipped {
		t.Fatal("Run() skipped on empty stores")
	}
	if res.ProductsMigrated != 3 {
		t.Errorf("ProductsMigrated = %d, want 3", res.ProductsMigrated)
	}
	if res.CategoriesMigrated != 1 {
		t.Errorf("CategoriesMigrated = %d, want 1", res.CategoriesMigrated)
	}
	if len(res.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 (blank category name, non-object product)", res.Errors)
	}
	if len(res.KeysDeleted) != 2 {
		t.Errorf("KeysDeleted = %v, want both keys", res.KeysDeleted)
	}

	for _, key := range []string{ProductsKey, CategoriesKey} {
		if _, ok, _ := e.local.LegacyValue(ctx, key); ok {
			t.Errorf("legacy key %s still present", key)
		}
	}

	// Migrated records went through the remote path too.
	remoteDocs, err := e.remote.GetAll(ctx, schema.KindProducts)
	if err != nil {
		t.Fatalf("remote GetAll() failed: %v", err)
	}
	if len(remoteDocs) != 3 {
		t.Errorf("remote has %d products, want 3", len(remoteDocs))
	}

	products, err := catalogsync.Products(e.coord).All(ctx)
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	byName := map[string]schema.Product{}
	for _, p := range products {
		byName[p.Name] = p
	}
	carrot := byName["Carrot cake"]
	if carrot.ID != "1700000000000" {
		t.Errorf("numeric legacy id became %q, want 1700000000000", carrot.ID)
	}
	if carrot.Price != "32" {
		t.Errorf("numeric price became %q, want 32", carrot.Price)
	}
	if strings.Join(carrot.Tags, ",") != "cake,7" {
		t.Errorf("Tags = %v, want [cake 7]", carrot.Tags)
	}
	if byName["No id yet"].ID == "" {
		t.Error("product without id did not get one")
	}
	if byName["Lemon tart"].CreatedAt == 0 {
		t.Error("RFC3339 createdAt was not parsed")
	}
}

// TestRun_Idempotent tests that a second run leaves the state untouched
func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	e.seedLegacy(t)

	if _, err := Run(ctx, e.local, e.coord, e.local, e.opts); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}
	p1, c1 := countAll(t, e)

	// A stale legacy key reappearing must not be imported again.
	if err := e.local.SetLegacyValue(ctx, ProductsKey, legacyProducts); err != nil {
		t.Fatalf("SetLegacyValue() failed: %v", err)
	}
	res, err := Run(ctx, e.local, e.coord, e.local, e.opts)
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if !res.Skipped {
		t.Error("second Run() should be skipped")
	}
	p2, c2 := countAll(t, e)
	if p1 != p2 || c1 != c2 {
		t.Errorf("second run changed counts: products %d->%d, categories %d->%d", p1, p2, c1, c2)
	}
}

func TestRun_SkipsWhenOnlyCategoriesExist(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	e.seedLegacy(t)

	cat, _ := schema.Encode(schema.Category{ID: "cat_9", Name: "Breads"})
	if err := e.local.Put(ctx, schema.KindCategories, cat); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	res, err := Run(ctx, e.local, e.coord, e.local, e.opts)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !res.Skipped {
		t.Error("Run() should skip when categories already exist")
	}
	if _, ok, _ := e.local.LegacyValue(ctx, ProductsKey); !ok {
		t.Error("skipped run must not delete legacy keys")
	}
}

// flakyWriter fails the first write of one kind, then passes through.
type flakyWriter struct {
	Writer
	kind   schema.Kind
	failed bool
}

func (f *flakyWriter) PutMany(ctx context.Context, kind schema.Kind, docs []schema.Document) error {
	if kind == f.kind && !f.failed {
		f.failed = true
		return errors.New("disk full")
	}
	return f.Writer.PutMany(ctx, kind, docs)
}

func TestRun_ResumesAfterFailedProductsWrite(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	e.seedLegacy(t)
	w := &flakyWriter{Writer: e.coord, kind: schema.KindProducts}

	if _, err := Run(ctx, e.local, w, e.local, e.opts); err == nil {
		t.Fatal("first Run() should fail on the products write")
	}
	if p, c := countAll(t, e); p != 0 || c != 1 {
		t.Fatalf("after failed run: products=%d categories=%d, want 0/1", p, c)
	}
	if _, ok, _ := e.local.LegacyValue(ctx, ProductsKey); !ok {
		t.Fatal("products key must survive a failed write")
	}

	res, err := Run(ctx, e.local, w, e.local, e.opts)
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if res.Skipped {
		t.Fatal("second Run() should resume, not skip")
	}
	if res.ProductsMigrated != 3 || res.CategoriesMigrated != 0 {
		t.Errorf("resumed result = %+v, want 3 products and no categories", res)
	}
	if p, c := countAll(t, e); p != 3 || c != 1 {
		t.Errorf("after resume: products=%d categories=%d, want 3/1", p, c)
	}
	if _, ok, _ := e.local.LegacyValue(ctx, ProductsKey); ok {
		t.Error("products key should be deleted after the resumed write")
	}

	third, err := Run(ctx, e.local, w, e.local, e.opts)
	if err != nil {
		t.Fatalf("third Run() failed: %v", err)
	}
	if !third.Skipped {
		t.Error("third Run() should be skipped")
	}
}

func TestRun_DryRun(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	e.seedLegacy(t)

	opts := e.opts
	opts.DryRun = true
	res, err := Run(ctx, e.local, e.coord, e.local, opts)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.ProductsMigrated != 3 || len(res.KeysDeleted) != 0 {
		t.Errorf("dry run result = %+v", res)
	}
	if p, c := countAll(t, e); p != 0 || c != 0 {
		t.Errorf("dry run wrote %d products, %d categories", p, c)
	}
}

func TestRun_MalformedKeyLeftInPlace(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	if err := e.local.SetLegacyValue(ctx, ProductsKey, `{"not":"an array"}`); err != nil {
		t.Fatalf("SetLegacyValue() failed: %v", err)
	}

	res, err := Run(ctx, e.local, e.coord, e.local, e.opts)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Errorf("Errors = %v, want 1", res.Errors)
	}
	if _, ok, _ := e.local.LegacyValue(ctx, ProductsKey); !ok {
		t.Error("malformed legacy key should be kept")
	}
}

func TestRun_LocalFailurePropagates(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	e.seedLegacy(t)

	broken := db.New(filepath.Join(t.TempDir(), "file", "x.db"))
	if err := os.WriteFile(filepath.Join(filepath.Dir(filepath.Dir(broken.Path())), "file"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	_, err := Run(ctx, broken, e.coord, e.local, e.opts)
	if !errors.Is(err, db.ErrStorageUnavailable) {
		t.Errorf("Run() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestFileLegacyStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "localStorage.json")
	content := `{"bakery_products": "[{\"id\":\"p1\",\"name\":\"Bun\"}]", "bakery_categories": [{"id":"cat_1","name":"Buns"}], "theme": "dark"}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	store := NewFileLegacyStore(path)

	v, ok, err := store.LegacyValue(ctx, ProductsKey)
	if err != nil || !ok || v != `[{"id":"p1","name":"Bun"}]` {
		t.Errorf("LegacyValue(string) = %q, %v, %v", v, ok, err)
	}
	v, ok, err = store.LegacyValue(ctx, CategoriesKey)
	if err != nil || !ok || !strings.Contains(v, `"cat_1"`) {
		t.Errorf("LegacyValue(array) = %q, %v, %v", v, ok, err)
	}

	e := setupEnv(t)
	res, err := Run(ctx, e.local, e.coord, store, e.opts)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.ProductsMigrated != 1 || res.CategoriesMigrated != 1 {
		t.Errorf("Run() = %+v, want 1 product and 1 category", res)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if strings.Contains(string(data), "bakery_") {
		t.Errorf("legacy keys still in file: %s", data)
	}
	if !strings.Contains(string(data), "theme") {
		t.Errorf("unrelated keys were dropped: %s", data)
	}
}

func TestFileLegacyStore_Missing(t *testing.T) {
	store := NewFileLegacyStore(filepath.Join(t.TempDir(), "absent.json"))
	if _, ok, err := store.LegacyValue(context.Background(), ProductsKey); err != nil || ok {
		t.Errorf("LegacyValue() on missing file = %v, %v", ok, err)
	}
	if err := store.DeleteLegacy(context.Background(), ProductsKey); err != nil {
		t.Errorf("DeleteLegacy() on missing file failed: %v", err)
	}
}

package loadtest

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/catalog/taxonomy"
)

func setupCatalog(t *testing.T, cfg Config) *TestCatalog {
	t.Helper()
	tc, err := CreateTestCatalog(context.Background(), filepath.Join(t.TempDir(), "load.db"), cfg)
	if err != nil {
		t.Fatalf("CreateTestCatalog() failed: %v", err)
	}
	t.Cleanup(func() { _ = tc.Close() })
	return tc
}

func TestCreateTestCatalog(t *testing.T) {
	tc := setupCatalog(t, Config{Products: 100, Categories: 5, DanglingPct: 0.2})
	ctx := context.Background()

	if len(tc.ProductIDs) != 100 {
		t.Errorf("ProductIDs = %d, want 100", len(tc.ProductIDs))
	}
	if len(tc.CategoryIDs) != 5 {
		t.Errorf("CategoryIDs = %d, want 5", len(tc.CategoryIDs))
	}
	if tc.Dangling != 20 {
		t.Errorf("Dangling = %d, want 20", tc.Dangling)
	}

	n, err := tc.DB.Count(ctx, schema.KindProducts)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 100 {
		t.Errorf("stored products = %d, want 100", n)
	}

	stats := tc.GetStats()
	if stats["dangling_percent"].(float64) != 20 {
		t.Errorf("dangling_percent = %v, want 20", stats["dangling_percent"])
	}
}

func TestCreateTestCatalog_Validation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no products", Config{Products: 0}},
		{"negative dangling", Config{Products: 10, DanglingPct: -0.1}},
		{"dangling above one", Config{Products: 10, DanglingPct: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CreateTestCatalog(context.Background(), filepath.Join(dir, "x.db"), tt.cfg); err == nil {
				t.Fatal("CreateTestCatalog() should fail")
			}
		})
	}
}

// The generated tags must reconcile into one entry per label: upper-case
// duplicates merge, leaked ids vanish, categories keep their ids.
func TestGeneratedTaxonomy(t *testing.T) {
	tc := setupCatalog(t, Config{Products: 200, Categories: 4, DanglingPct: 0.1})
	ctx := context.Background()

	products, err := catalogsync.Products(tc.Coord).All(ctx)
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	categories, err := catalogsync.Categories(tc.Coord).All(ctx)
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}

	entries := taxonomy.Reconcile(categories, products)
	seen := map[string]bool{}
	for _, e := range entries {
		k := taxonomy.Key(e.Name)
		if seen[k] {
			t.Errorf("duplicate entry %q", e.Name)
		}
		seen[k] = true
		if taxonomy.LooksLikeInternalID(e.Name) {
			t.Errorf("internal id %q leaked into the taxonomy", e.Name)
		}
	}
	if len(entries) > len(labels)+7 {
		t.Errorf("taxonomy has %d entries, want at most %d", len(entries), len(labels)+7)
	}
	for _, id := range tc.CategoryIDs {
		found := false
		for _, e := range entries {
			if e.ID == id && e.Source == taxonomy.SourceCategory {
				found = true
			}
		}
		if !found {
			t.Errorf("category %s missing from taxonomy", id)
		}
	}
}

func TestConcurrentReads_Small(t *testing.T) {
	tc := setupCatalog(t, Config{Products: 100, Categories: 6, DanglingPct: 0.1})

	stats, err := tc.RunConcurrentReads(context.Background(), 5, 4)
	if err != nil {
		t.Fatalf("RunConcurrentReads() failed: %v", err)
	}
	if stats.Errors > 0 {
		t.Errorf("got %d errors during reads", stats.Errors)
	}
	if stats.Operations != 20 {
		t.Errorf("Operations = %d, want 20", stats.Operations)
	}
	if stats.Min > stats.P50 || stats.P50 > stats.P95 || stats.P95 > stats.Max {
		t.Errorf("percentiles out of order: %+v", stats)
	}
	stats.PrintStats(io.Discard, "Reads")
}

func TestConcurrentWrites(t *testing.T) {
	for _, withRemote := range []bool{false, true} {
		name := "local"
		if withRemote {
			name = "remote"
		}
		t.Run(name, func(t *testing.T) {
			tc := setupCatalog(t, Config{Products: 20, Categories: 3, WithRemote: withRemote})
			ctx := context.Background()

			stats, err := tc.RunConcurrentWrites(ctx, 4, 5)
			if err != nil {
				t.Fatalf("RunConcurrentWrites() failed: %v", err)
			}
			if stats.Operations != 20 {
				t.Errorf("Operations = %d, want 20", stats.Operations)
			}

			n, err := tc.DB.Count(ctx, schema.KindProducts)
			if err != nil {
				t.Fatalf("Count() failed: %v", err)
			}
			if n != 40 {
				t.Errorf("local products = %d, want 40", n)
			}
			if withRemote {
				docs, err := tc.Remote.GetAll(ctx, schema.KindProducts)
				if err != nil {
					t.Fatalf("remote GetAll() failed: %v", err)
				}
				if len(docs) != 40 {
					t.Errorf("remote products = %d, want 40", len(docs))
				}
			}
		})
	}
}

func TestRun_Validation(t *testing.T) {
	tc := setupCatalog(t, Config{Products: 5})
	if _, err := tc.RunConcurrentReads(context.Background(), 0, 1); err == nil {
		t.Error("RunConcurrentReads() should reject zero shoppers")
	}
	if _, err := tc.RunConcurrentWrites(context.Background(), 1, 0); err == nil {
		t.Error("RunConcurrentWrites() should reject zero writes")
	}
}

func TestVerifyConsistency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping consistency run in short mode")
	}
	for _, withRemote := range []bool{false, true} {
		tc := setupCatalog(t, Config{Products: 50, Categories: 4, WithRemote: withRemote})
		if err := tc.VerifyConsistency(context.Background(), 4, 200*time.Millisecond); err != nil {
			t.Errorf("VerifyConsistency(remote=%v) failed: %v", withRemote, err)
		}
	}
}

func TestCheckSnapshot(t *testing.T) {
	tests := []struct {
		name     string
		products []schema.Product
		seeded   int
		wantErr  bool
	}{
		{"ordered", []schema.Product{{ID: "b", CreatedAt: 2}, {ID: "a", CreatedAt: 1}}, 2, false},
		{"ties", []schema.Product{{ID: "a", CreatedAt: 1}, {ID: "b", CreatedAt: 1}}, 1, false},
		{"out of order", []schema.Product{{ID: "a", CreatedAt: 1}, {ID: "b", CreatedAt: 2}}, 2, true},
		{"empty id", []schema.Product{{ID: "", CreatedAt: 1}}, 1, true},
		{"shrunk", []schema.Product{{ID: "a", CreatedAt: 1}}, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSnapshot(tt.products, tt.seeded)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkSnapshot() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}
	s := computeLatencyStats(durations)
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", s.Min, s.Max)
	}
	if s.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", s.P50)
	}
	if s.P99 != 100*time.Millisecond {
		t.Errorf("P99 = %v, want 100ms", s.P99)
	}
	if s.Operations != 100 {
		t.Errorf("Operations = %d, want 100", s.Operations)
	}

	if empty := computeLatencyStats(nil); empty.Operations != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

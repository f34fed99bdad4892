// Package loadtest measures the catalog under concurrent shoppers and
// editors.
//
// A test catalog is a local store populated with products whose tags and
// category references look like real storefront data: most tags are
// labels, some repeat category names in other cases, some are leaked ids,
// and a share of products point at categories that no longer exist. Every
// shopper read goes through the sync coordinator and the taxonomy
// reconciler, the same path the storefront takes to render the filter
// list.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	stdsync "sync"
	"time"

	"golang.org/x/text/language"

	"github.com/crumbworks/storefront/internal/catalog/db"
	"github.com/crumbworks/storefront/internal/catalog/remote"
	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/catalog/taxonomy"
)

// Config describes the catalog to generate.
type Config struct {
	Products   int
	Categories int

	// DanglingPct is the share of products whose categoryId names a
	// deleted category (0.0-1.0).
	DanglingPct float64

	// WithRemote mirrors through an in-process remote store.
	WithRemote bool

	// Logger for coordinator output (default: discarded)
	Logger *log.Logger
}

// DefaultConfig returns a mid-sized bakery catalog.
func DefaultConfig() Config {
	return Config{
		Products:    500,
		Categories:  12,
		DanglingPct: 0.1,
	}
}

// TestCatalog is a populated store ready for load.
type TestCatalog struct {
	DB     *db.DB
	Remote *remote.MemoryStore
	Coord  *catalogsync.Coordinator

	ProductIDs  []string
	CategoryIDs []string
	Dangling    int

	reconciler *taxonomy.Reconciler
}

// LatencyStats captures performance metrics from a load run.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration // Median
	P95        time.Duration
	P99        time.Duration
	Operations int
	Errors     int
	Durations  []time.Duration
}

var labels = []string{
	"Birthday", "Wedding", "Vegan", "Gluten free", "Chocolate", "Seasonal",
	"Sourdough", "Viennoiserie", "Cupcakes", "Custom order", "Nut free", "Savory",
}

// CreateTestCatalog creates a local store at dbPath and fills it.
func CreateTestCatalog(ctx context.Context, dbPath string, cfg Config) (*TestCatalog, error) {
	if cfg.Products <= 0 {
		return nil, fmt.Errorf("products must be positive")
	}
	if cfg.DanglingPct < 0 || cfg.DanglingPct > 1 {
		return nil, fmt.Errorf("dangling share must be between 0.0 and 1.0")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	local, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	tc := &TestCatalog{DB: local, reconciler: taxonomy.New(language.English)}

	var rem remote.Store
	if cfg.WithRemote {
		tc.Remote = remote.NewMemoryStore(remote.Options{BatchPause: time.Millisecond})
		rem = tc.Remote
	}
	tc.Coord, err = catalogsync.New(local, rem, catalogsync.Config{RemoteEnabled: cfg.WithRemote, Logger: logger})
	if err != nil {
		_ = tc.Close()
		return nil, err
	}

	categories := generateCategories(cfg.Categories)
	products := generateProducts(cfg.Products, categories, cfg.DanglingPct)
	for _, c := range categories {
		tc.CategoryIDs = append(tc.CategoryIDs, c.ID)
	}
	for _, p := range products {
		tc.ProductIDs = append(tc.ProductIDs, p.ID)
		if p.CategoryID != "" && !contains(tc.CategoryIDs, p.CategoryID) {
			tc.Dangling++
		}
	}

	if err := catalogsync.Categories(tc.Coord).ReplaceAll(ctx, categories); err != nil {
		_ = tc.Close()
		return nil, fmt.Errorf("failed to insert categories: %w", err)
	}
	if err := catalogsync.Products(tc.Coord).ReplaceAll(ctx, products); err != nil {
		_ = tc.Close()
		return nil, fmt.Errorf("failed to insert products: %w", err)
	}
	if err := tc.Coord.WaitForPendingWrites(ctx); err != nil {
		_ = tc.Close()
		return nil, fmt.Errorf("remote mirror did not settle: %w", err)
	}
	return tc, nil
}

// Close closes the stores.
func (tc *TestCatalog) Close() error {
	if tc.Remote != nil {
		_ = tc.Remote.Close()
	}
	if tc.DB != nil {
		return tc.DB.Close()
	}
	return nil
}

// Browse is one shopper page view: load the catalog, reconcile the filter
// list and filter by one entry. It returns the number of products shown.
func (tc *TestCatalog) Browse(ctx context.Context, pick int) (int, error) {
	products, err := catalogsync.Products(tc.Coord).All(ctx)
	if err != nil {
		return 0, err
	}
	categories, err := catalogsync.Categories(tc.Coord).All(ctx)
	if err != nil {
		return 0, err
	}
	r := taxonomy.NewResolver(tc.reconciler.Reconcile(categories, products))
	entries := r.Entries()
	if len(entries) == 0 {
		return len(products), nil
	}
	return len(r.Filter(products, entries[pick%len(entries)])), nil
}

// RunConcurrentReads simulates shoppers browsing in parallel. Each shopper
// performs readsPer page views.
func (tc *TestCatalog) RunConcurrentReads(ctx context.Context, shoppers, readsPer int) (*LatencyStats, error) {
	return tc.run(shoppers, readsPer, func(worker, i int) error {
		_, err := tc.Browse(ctx, worker+i)
		return err
	})
}

// RunConcurrentWrites simulates editors adding products in parallel.
func (tc *TestCatalog) RunConcurrentWrites(ctx context.Context, editors, writesPer int) (*LatencyStats, error) {
	coll := catalogsync.Products(tc.Coord)
	stats, err := tc.run(editors, writesPer, func(worker, i int) error {
		p := schema.Product{
			Name: fmt.Sprintf("Editor %d item %d", worker, i),
			Tags: schema.Tags{labels[(worker+i)%len(labels)]},
		}
		p.SetDefaults()
		return coll.Put(ctx, p)
	})
	if err != nil {
		return stats, err
	}
	if err := tc.Coord.WaitForPendingWrites(ctx); err != nil {
		return stats, fmt.Errorf("remote mirror did not settle: %w", err)
	}
	return stats, nil
}

func (tc *TestCatalog) run(workers, perWorker int, op func(worker, i int) error) (*LatencyStats, error) {
	if workers <= 0 || perWorker <= 0 {
		return nil, fmt.Errorf("workers and operations per worker must be positive")
	}

	var wg stdsync.WaitGroup
	resultsChan := make(chan []time.Duration, workers)
	errorsChan := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			durations := make([]time.Duration, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				start := time.Now()
				err := op(worker, i)
				durations = append(durations, time.Since(start))
				if err != nil {
					errorsChan <- fmt.Errorf("worker %d op %d failed: %w", worker, i, err)
					break
				}
			}
			resultsChan <- durations
		}(w)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var firstErr error
	errorCount := 0
	for err := range errorsChan {
		errorCount++
		if firstErr == nil {
			firstErr = err
		}
	}

	var all []time.Duration
	for durations := range resultsChan {
		all = append(all, durations...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no operations completed")
	}

	stats := computeLatencyStats(all)
	stats.Errors = errorCount
	if errorCount > 0 {
		return stats, firstErr
	}
	return stats, nil
}

// VerifyConsistency browses from several shoppers while one editor writes,
// for the given duration. Every snapshot a shopper sees must be ordered
// newest first, hold no empty ids and never shrink below the seeded
// catalog.
func (tc *TestCatalog) VerifyConsistency(ctx context.Context, shoppers int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	seeded := len(tc.ProductIDs)
	coll := catalogsync.Products(tc.Coord)

	var wg stdsync.WaitGroup
	errorsChan := make(chan error, shoppers+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			p := schema.Product{Name: fmt.Sprintf("Fresh batch %d", i)}
			p.SetDefaults()
			if err := coll.Put(ctx, p); err != nil && ctx.Err() == nil {
				errorsChan <- fmt.Errorf("editor write failed: %w", err)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for s := 0; s < shoppers; s++ {
		wg.Add(1)
		go func(shopper int) {
			defer wg.Done()
			for ctx.Err() == nil {
				products, err := coll.All(ctx)
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("shopper %d read failed: %w", shopper, err)
					}
					return
				}
				if err := checkSnapshot(products, seeded); err != nil {
					errorsChan <- fmt.Errorf("shopper %d: %w", shopper, err)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(s)
	}

	wg.Wait()
	close(errorsChan)
	if err, ok := <-errorsChan; ok {
		return err
	}
	return nil
}

func checkSnapshot(products []schema.Product, seeded int) error {
	if len(products) < seeded {
		return fmt.Errorf("saw %d products, seeded %d", len(products), seeded)
	}
	for i, p := range products {
		if p.ID == "" {
			return fmt.Errorf("product at %d has an empty id", i)
		}
		if i > 0 && products[i-1].CreatedAt < p.CreatedAt {
			return fmt.Errorf("products out of order at %d (%s before %s)", i, products[i-1].ID, p.ID)
		}
	}
	return nil
}

// GetStats returns statistics about the test catalog.
func (tc *TestCatalog) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"products":         len(tc.ProductIDs),
		"categories":       len(tc.CategoryIDs),
		"dangling":         tc.Dangling,
		"dangling_percent": float64(tc.Dangling) / float64(len(tc.ProductIDs)) * 100,
		"remote":           tc.Remote != nil,
	}
}

func generateCategories(count int) []schema.Category {
	if count > len(labels) {
		count = len(labels)
	}
	base := time.Now().Add(-90 * 24 * time.Hour)
	out := make([]schema.Category, count)
	for i := 0; i < count; i++ {
		out[i] = schema.Category{
			ID:        fmt.Sprintf("cat_load%03d", i),
			Name:      labels[i],
			CreatedAt: schema.Millis(base.Add(time.Duration(i) * time.Hour).UnixMilli()),
		}
	}
	return out
}

// generateProducts builds products with a realistic tag mix. Creation
// times are distinct so newest-first order is total.
func generateProducts(count int, categories []schema.Category, danglingPct float64) []schema.Product {
	// Deterministic for reproducible runs
	rng := rand.New(rand.NewSource(42))
	base := time.Now().Add(-30 * 24 * time.Hour)
	numDangling := int(float64(count) * danglingPct)

	out := make([]schema.Product, count)
	for i := 0; i < count; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		p := schema.Product{
			ID:        fmt.Sprintf("prod_load%05d", i),
			Name:      fmt.Sprintf("Bake %d", i),
			Price:     schema.Price(strconv.Itoa(3 + rng.Intn(60))),
			CreatedAt: schema.Millis(created.UnixMilli()),
		}

		switch {
		case i < numDangling:
			p.CategoryID = fmt.Sprintf("cat_gone%03d", i%7)
		case len(categories) > 0 && rng.Intn(3) > 0:
			p.CategoryID = categories[rng.Intn(len(categories))].ID
		}

		p.Tags = append(p.Tags, labels[rng.Intn(len(labels))])
		if rng.Intn(4) == 0 {
			// Same label, different case; must merge into one entry.
			p.Tags = append(p.Tags, strings.ToUpper(labels[rng.Intn(len(labels))]))
		}
		if rng.Intn(10) == 0 {
			p.Tags = append(p.Tags, fmt.Sprintf("%d_%d", created.UnixMilli(), rng.Intn(1000)))
		}
		out[i] = p
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(durations)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(durations),
		Durations:  sorted,
	}
}

// PrintStats writes the latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer, title string) {
	fmt.Fprintf(w, "%s:\n", title)
	fmt.Fprintf(w, "  Operations:    %d\n", s.Operations)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

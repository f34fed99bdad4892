package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/loadtest"
	"github.com/crumbworks/storefront/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Measure catalog latency under concurrent shoppers and editors",
	Long: `Generate a throwaway catalog and measure it under load.

Each shopper read loads products and categories through the sync
coordinator, reconciles the filter list and filters by one entry. Editors
add products concurrently. The generated catalog lives in a temporary
directory; your own store is never touched.

Examples:
  storefront loadtest
  storefront loadtest --products 2000 --shoppers 50 --remote
  storefront loadtest --json`,
	Run: runLoadtest,
}

func init() {
	def := loadtest.DefaultConfig()
	loadtestCmd.Flags().Int("products", def.Products, "Number of products in the generated catalog")
	loadtestCmd.Flags().Int("categories", def.Categories, "Number of explicit categories")
	loadtestCmd.Flags().Float64("dangling", def.DanglingPct, "Share of products pointing at deleted categories (0.0-1.0)")
	loadtestCmd.Flags().Int("shoppers", 20, "Concurrent shoppers")
	loadtestCmd.Flags().Int("reads", 10, "Page views per shopper")
	loadtestCmd.Flags().Int("editors", 4, "Concurrent editors")
	loadtestCmd.Flags().Int("writes", 10, "Products added per editor")
	loadtestCmd.Flags().Bool("remote", false, "Mirror through an in-process remote store")
	loadtestCmd.Flags().Duration("verify", 0, "Also run a read/write consistency check for this long")
	loadtestCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(cmd *cobra.Command, args []string) {
	flags := cmd.Flags()
	products, _ := flags.GetInt("products")
	categories, _ := flags.GetInt("categories")
	dangling, _ := flags.GetFloat64("dangling")
	shoppers, _ := flags.GetInt("shoppers")
	reads, _ := flags.GetInt("reads")
	editors, _ := flags.GetInt("editors")
	writes, _ := flags.GetInt("writes")
	withRemote, _ := flags.GetBool("remote")
	verify, _ := flags.GetDuration("verify")
	jsonOutput, _ := flags.GetBool("json")

	if shoppers <= 0 || reads <= 0 || editors <= 0 || writes <= 0 {
		fatalf("--shoppers, --reads, --editors and --writes must be positive")
	}

	dir, err := os.MkdirTemp("", "storefront-loadtest-")
	if err != nil {
		fatalf("failed to create temp dir: %v", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	ctx := context.Background()
	if !jsonOutput {
		fmt.Printf("%s Generating %d products, %d categories...\n", ui.RenderAccent("⏱"), products, categories)
	}
	tc, err := loadtest.CreateTestCatalog(ctx, filepath.Join(dir, "load.db"), loadtest.Config{
		Products:    products,
		Categories:  categories,
		DanglingPct: dangling,
		WithRemote:  withRemote,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		fatalf("%v", err)
	}
	defer func() { _ = tc.Close() }()

	readStats, readErr := tc.RunConcurrentReads(ctx, shoppers, reads)
	writeStats, writeErr := tc.RunConcurrentWrites(ctx, editors, writes)

	var verifyErr error
	if verify > 0 {
		verifyErr = tc.VerifyConsistency(ctx, shoppers, verify)
	}

	if jsonOutput {
		out := map[string]interface{}{
			"catalog": tc.GetStats(),
			"reads":   summarize(readStats, readErr),
			"writes":  summarize(writeStats, writeErr),
		}
		if verify > 0 {
			out["consistent"] = verifyErr == nil
		}
		writeJSON(os.Stdout, out)
	} else {
		fmt.Println()
		if readStats != nil {
			readStats.PrintStats(os.Stdout, fmt.Sprintf("Shopper reads (%d x %d)", shoppers, reads))
		}
		if writeStats != nil {
			writeStats.PrintStats(os.Stdout, fmt.Sprintf("Editor writes (%d x %d)", editors, writes))
		}
		if verify > 0 && verifyErr == nil {
			fmt.Printf("%s Consistent under concurrent reads and writes (%v)\n", ui.RenderPass("✓"), verify)
		}
	}

	for _, err := range []error{readErr, writeErr, verifyErr} {
		if err != nil {
			_ = tc.Close()
			_ = os.RemoveAll(dir)
			fatalf("%v", err)
		}
	}
}

func summarize(s *loadtest.LatencyStats, err error) map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"error": fmt.Sprint(err)}
	}
	out := map[string]interface{}{
		"operations": s.Operations,
		"errors":     s.Errors,
		"min_ms":     ms(s.Min),
		"p50_ms":     ms(s.P50),
		"mean_ms":    ms(s.Mean),
		"p95_ms":     ms(s.P95),
		"p99_ms":     ms(s.P99),
		"max_ms":     ms(s.Max),
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return out
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

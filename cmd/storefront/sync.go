package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Refresh the local store from the remote mirror",
	Long: `Read every mirrored collection (products, categories, settings) from the
remote database and replace the local copy with it.

When the remote is unreachable the local data is left untouched and the
failure is reported. Drafts are local-only and never synced.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.Close()

		if !a.coord.RemoteEnabled() {
			fmt.Printf("%s Remote sync is off; nothing to do\n", ui.RenderWarn("⚠"))
			return
		}

		fmt.Printf("%s Syncing from remote...\n", ui.RenderAccent("🔄"))
		start := time.Now()
		var stale []string
		for _, kind := range schema.MirrorableKinds {
			before := a.coord.Status().RemoteFailures
			docs, err := a.coord.GetAll(ctx, kind)
			if err != nil {
				a.fatalf("syncing %s: %v", kind, err)
			}
			if a.coord.Status().RemoteFailures > before {
				stale = append(stale, string(kind))
				fmt.Printf("   %s: %d %s\n", kind, len(docs), ui.RenderWarn("(local copy, remote read failed)"))
				continue
			}
			fmt.Printf("   %s: %d\n", kind, len(docs))
		}
		a.flush(ctx)

		if st := a.coord.Status(); len(stale) > 0 || st.Degraded() {
			fmt.Printf("%s Remote unreachable for %s, local data kept: %s\n",
				ui.RenderWarn("⚠"), strings.Join(failingKinds(stale, st), ", "), st.LastError)
			return
		}
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local store and remote sync status",
	Long: `Display the local store location and size, record counts per collection,
and whether the remote mirror is configured and reachable.

The remote is probed with one read of the settings collection.`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.Close()

		counts, st, err := collectStatus(ctx, a)
		if err != nil {
			a.fatalf("%v", err)
		}

		if asJSON {
			out := map[string]interface{}{
				"local":  a.cfg.DatabasePath(),
				"remote": a.cfg.RemoteMode(),
				"counts": counts,
				"sync":   st,
			}
			writeJSON(os.Stdout, out)
			return
		}

		fmt.Printf("\n%s Storefront Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Local store: %s\n", a.cfg.DatabasePath())
		if info, err := os.Stat(a.cfg.DatabasePath()); err == nil {
			fmt.Printf("Size: %s\n", formatSize(info.Size()))
		}
		rows := make([][]string, 0, len(schema.AllKinds))
		for _, kind := range schema.AllKinds {
			synced := "yes"
			if !kind.Mirrorable() {
				synced = "local only"
			}
			rows = append(rows, []string{string(kind), strconv.Itoa(counts[string(kind)]), synced})
		}
		fmt.Println(ui.Table([]string{"Collection", "Records", "Synced"}, rows))

		switch {
		case !st.RemoteEnabled:
			fmt.Printf("Remote: %s\n", ui.RenderMuted("off"))
		case st.Degraded():
			fmt.Printf("Remote: %s %s for %s (%s)\n", a.cfg.RemoteMode(), ui.RenderFail("unreachable"),
				strings.Join(failingKinds(nil, st), ", "), st.LastError)
		default:
			fmt.Printf("Remote: %s %s\n", a.cfg.RemoteMode(), ui.RenderPass("ok"))
		}
		fmt.Println()
	},
}

// collectStatus probes the remote with one settings read, then counts the
// local records. The probe may replace local settings, so it runs first.
func collectStatus(ctx context.Context, a *app) (map[string]int, catalogsync.Status, error) {
	if a.coord.RemoteEnabled() {
		if _, err := a.coord.GetAll(ctx, schema.KindSettings); err != nil {
			return nil, catalogsync.Status{}, fmt.Errorf("probing remote: %w", err)
		}
	}
	counts := make(map[string]int, len(schema.AllKinds))
	for _, kind := range schema.AllKinds {
		n, err := a.local.Count(ctx, kind)
		if err != nil {
			return nil, catalogsync.Status{}, fmt.Errorf("counting %s: %w", kind, err)
		}
		counts[string(kind)] = n
	}
	return counts, a.coord.Status(), nil
}

// failingKinds merges kinds whose read failed during this run with the
// kinds the coordinator still reports as failing.
func failingKinds(seen []string, st catalogsync.Status) []string {
	out := append([]string(nil), seen...)
	for _, k := range st.FailingKinds() {
		if !slices.Contains(out, string(k)) {
			out = append(out, string(k))
		}
	}
	return out
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	}
	return fmt.Sprintf("%d bytes", size)
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}

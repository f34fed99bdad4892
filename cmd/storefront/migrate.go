package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/migrate"
	"github.com/crumbworks/storefront/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "sync",
	Short:   "Import products and categories from legacy key-value storage",
	Long: `Import the catalog kept by older storefront versions under the
bakery_products and bakery_categories keys.

The import only runs while the local products and categories collections are
both empty, so running it again is harmless. Each legacy key is deleted once
its records were written. A key that does not hold a JSON array is left in
place and reported.

By default the keys are read from the local store's legacy table. Use --from
to read a JSON dump of browser storage instead.

Examples:
  storefront migrate --dry-run
  storefront migrate --from localStorage.json`,
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetString("from")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		ctx := context.Background()

		a := mustOpen(ctx)
		defer a.Close()

		res, err := migrate.Run(ctx, a.local, a.coord, a.legacyStore(from), migrate.MigrateOptions{
			DryRun: dryRun,
			Logger: a.logs.Logger("migrate"),
		})
		if err != nil {
			a.fatalf("migration failed: %v", err)
		}
		a.flush(ctx)

		if res.Skipped {
			fmt.Printf("%s Local store already holds a catalog; nothing to migrate\n", ui.RenderMuted("-"))
			return
		}

		verb := "Migrated"
		if dryRun {
			verb = "Would migrate"
		}
		fmt.Printf("%s %s %d products and %d categories\n", ui.RenderPass("✓"), verb, res.ProductsMigrated, res.CategoriesMigrated)
		for _, key := range res.KeysDeleted {
			fmt.Printf("   Removed legacy key %s\n", key)
		}
		for _, msg := range res.Errors {
			fmt.Printf("   %s %s\n", ui.RenderWarn("⚠"), msg)
		}
	},
}

func init() {
	migrateCmd.Flags().String("from", "", "Read legacy keys from this JSON file")
	migrateCmd.Flags().Bool("dry-run", false, "Parse and count without writing")
	rootCmd.AddCommand(migrateCmd)
}

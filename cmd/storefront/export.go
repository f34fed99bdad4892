package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/export"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "catalog",
	Short:   "Export the catalog as YAML or JSON",
	Long: `Export products, categories, the reconciled taxonomy and the featured
videos. Pending remote writes are flushed first.

Examples:
  storefront export > catalog.yaml
  storefront export --format json --no-images -o catalog.json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		formatFlag, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		noImages, _ := cmd.Flags().GetBool("no-images")

		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			fatalf("%v", err)
		}

		a := mustOpen(ctx)
		defer a.Close()
		a.flush(ctx)

		products, err := catalogsync.Products(a.coord).All(ctx)
		if err != nil {
			a.fatalf("loading products: %v", err)
		}
		categories, err := catalogsync.Categories(a.coord).All(ctx)
		if err != nil {
			a.fatalf("loading categories: %v", err)
		}
		settings, err := catalogsync.Settings(a.coord).All(ctx)
		if err != nil {
			a.fatalf("loading settings: %v", err)
		}

		doc, err := export.Build(products, categories, settings, export.Options{
			OmitImages: noImages,
			Reconciler: a.reconciler(),
		})
		if err != nil {
			a.fatalf("%v", err)
		}

		var w io.Writer = os.Stdout
		toFile := output != "" && output != "-"
		if toFile {
			// #nosec G304 - path is given by the user
			f, err := os.Create(output)
			if err != nil {
				a.fatalf("failed to create %s: %v", output, err)
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		if err := export.Write(w, doc, format); err != nil {
			a.fatalf("%v", err)
		}
		if toFile {
			fmt.Fprintf(os.Stderr, "%s Exported %d products, %d categories to %s\n",
				ui.RenderPass("✓"), len(doc.Products), len(doc.Categories), output)
		}
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "yaml", "Output format (yaml|json)")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().Bool("no-images", false, "Replace inline images with a count")
	rootCmd.AddCommand(exportCmd)
}

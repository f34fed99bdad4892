package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/media"
	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/catalog/taxonomy"
	"github.com/crumbworks/storefront/internal/ui"
)

var productCmd = &cobra.Command{
	Use:     "product",
	GroupID: "catalog",
	Short:   "Manage products",
}

var productAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a product",
	Long: `Add a product to the catalog.

Fields not given as flags are asked for interactively when stdin is a
terminal. Images can be attached from files (--image) or taken from the
staged drafts (--drafts); attached drafts are cleared afterwards.

Examples:
  storefront product add --name "Carrot cake" --price 32 --tag cake --tag vegan
  storefront product add --drafts`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		price, _ := flags.GetString("price")
		desc, _ := flags.GetString("description")
		categoryRef, _ := flags.GetString("category")
		tags, _ := flags.GetStringSlice("tag")
		imageFiles, _ := flags.GetStringSlice("image")
		useDrafts, _ := flags.GetBool("drafts")

		a := mustOpen(ctx)
		defer a.Close()

		p := schema.Product{
			Name:        name,
			Price:       schema.Price(price),
			Description: desc,
			Tags:        schema.Tags(tags),
		}

		if categoryRef != "" {
			r, err := a.resolver(ctx)
			if err != nil {
				a.fatalf("loading categories: %v", err)
			}
			entry, ok := r.Lookup(categoryRef)
			if !ok || entry.Source != taxonomy.SourceCategory {
				a.fatalf("unknown category %q", categoryRef)
			}
			p.CategoryID = entry.ID
		}

		if p.Name == "" {
			if !ui.IsInteractive() {
				a.fatalf("--name is required when not running in a terminal")
			}
			categories, err := catalogsync.Categories(a.coord).All(ctx)
			if err != nil {
				a.fatalf("loading categories: %v", err)
			}
			if err := productForm(&p, categories); err != nil {
				a.fatalf("%v", err)
			}
		}

		for _, path := range imageFiles {
			img, err := media.EncodeFile(path)
			if err != nil {
				a.fatalf("%s: %v", path, err)
			}
			p.Images = append(p.Images, img)
		}

		drafts := catalogsync.Drafts(a.coord)
		var draftIDs []string
		if useDrafts {
			staged, err := drafts.All(ctx)
			if err != nil {
				a.fatalf("loading drafts: %v", err)
			}
			// Oldest first, so images keep the order they were staged in.
			for i := len(staged) - 1; i >= 0; i-- {
				p.Images = append(p.Images, staged[i].Image)
				draftIDs = append(draftIDs, staged[i].ID)
			}
		}

		p.SetDefaults()
		if err := catalogsync.Products(a.coord).Put(ctx, p); err != nil {
			a.fatalf("saving product: %v", err)
		}
		if len(draftIDs) > 0 {
			if err := drafts.DeleteMany(ctx, draftIDs); err != nil {
				a.fatalf("clearing drafts: %v", err)
			}
		}
		a.flush(ctx)

		fmt.Printf("%s Added %s (%s)\n", ui.RenderPass("✓"), p.Name, p.ID)
		if len(p.Images) > 0 {
			fmt.Printf("   Images: %d\n", len(p.Images))
		}
	},
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products, newest first",
	Long: `List products, newest first.

--category accepts a category id or any filter name shown by
'storefront taxonomy', including names that only exist as tags.
--since accepts a date, a duration (72h) or phrases like "last monday".`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		category, _ := cmd.Flags().GetString("category")
		since, _ := cmd.Flags().GetString("since")
		asJSON, _ := cmd.Flags().GetBool("json")

		a := mustOpen(ctx)
		defer a.Close()

		products, err := catalogsync.Products(a.coord).All(ctx)
		if err != nil {
			a.fatalf("loading products: %v", err)
		}
		r, err := a.resolver(ctx)
		if err != nil {
			a.fatalf("loading categories: %v", err)
		}

		if category != "" {
			entry, ok := r.Lookup(category)
			if !ok {
				a.fatalf("unknown category %q (see 'storefront taxonomy')", category)
			}
			products = r.Filter(products, entry)
		}
		if since != "" {
			t, err := parseSince(since, time.Now())
			if err != nil {
				a.fatalf("%v", err)
			}
			products = createdSince(products, t)
		}

		if asJSON {
			writeJSON(os.Stdout, products)
			return
		}
		if len(products) == 0 {
			fmt.Println("No products found")
			return
		}

		rows := make([][]string, 0, len(products))
		for _, p := range products {
			rows = append(rows, []string{
				ui.Truncate(p.ID, 14),
				ui.Truncate(p.Name, 40),
				displayPrice(p.Price),
				ui.Truncate(strings.Join(r.Labels(p), ", "), 40),
				p.CreatedAt.Time().Format("2006-01-02"),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Name", "Price", "Categories", "Created"}, rows))
		fmt.Printf("%d products\n", len(products))
	},
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete products",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.Close()

		if err := catalogsync.Products(a.coord).DeleteMany(ctx, args); err != nil {
			a.fatalf("deleting products: %v", err)
		}
		a.flush(ctx)
		fmt.Printf("%s Deleted %d products\n", ui.RenderPass("✓"), len(args))
	},
}

var productImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert products from a JSON file",
	Long: `Upsert products from a JSON file holding one product or an array of
products. Use - to read stdin. Missing ids and creation times are filled in.
With --replace the catalog ends up holding exactly the imported products.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		replace, _ := cmd.Flags().GetBool("replace")

		a := mustOpen(ctx)
		defer a.Close()

		products, err := readProducts(args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		coll := catalogsync.Products(a.coord)
		if replace {
			err = coll.ReplaceAll(ctx, products)
		} else {
			err = coll.PutMany(ctx, products)
		}
		if err != nil {
			a.fatalf("importing products: %v", err)
		}
		a.flush(ctx)
		fmt.Printf("%s Imported %d products\n", ui.RenderPass("✓"), len(products))
	},
}

// readProducts decodes one product or an array of them.
func readProducts(path string) ([]schema.Product, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		// #nosec G304 - path is given by the user
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var products []schema.Product
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &products)
	} else {
		var p schema.Product
		err = json.Unmarshal(data, &p)
		products = []schema.Product{p}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i := range products {
		products[i].SetDefaults()
	}
	return products, nil
}

func displayPrice(p schema.Price) string {
	if p == "" || p.IsContactMe() {
		return ui.RenderMuted("contact me")
	}
	if n, ok := p.Amount(); ok {
		return "$" + n.StringFixed(2)
	}
	return string(p)
}

func writeJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func init() {
	addFlags := productAddCmd.Flags()
	addFlags.String("name", "", "Product name")
	addFlags.String("price", "", `Price; empty means "contact me for pricing"`)
	addFlags.String("description", "", "Description")
	addFlags.String("category", "", "Category id or name")
	addFlags.StringSlice("tag", nil, "Tag (repeatable)")
	addFlags.StringSlice("image", nil, "Image file to attach (repeatable)")
	addFlags.Bool("drafts", false, "Attach all staged drafts and clear them")

	productListCmd.Flags().String("category", "", "Only products under this category or tag")
	productListCmd.Flags().String("since", "", "Only products created since this date")
	productListCmd.Flags().Bool("json", false, "Output as JSON")

	productImportCmd.Flags().Bool("replace", false, "Replace the whole catalog")

	productCmd.AddCommand(productAddCmd, productListCmd, productDeleteCmd, productImportCmd)
	rootCmd.AddCommand(productCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/catalog/taxonomy"
	"github.com/crumbworks/storefront/internal/ui"
)

var categoryCmd = &cobra.Command{
	Use:     "category",
	GroupID: "catalog",
	Short:   "Manage explicit categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a category",
	Long: `Add an explicit category. A category whose name matches an existing one,
ignoring case, is refused.

Example:
  storefront category add Cakes --sub Layer --sub Cupcakes`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		subs, _ := cmd.Flags().GetStringSlice("sub")

		a := mustOpen(ctx)
		defer a.Close()

		coll := catalogsync.Categories(a.coord)
		existing, err := coll.All(ctx)
		if err != nil {
			a.fatalf("loading categories: %v", err)
		}
		name := strings.TrimSpace(args[0])
		for _, c := range existing {
			if taxonomy.Key(c.Name) == taxonomy.Key(name) {
				a.fatalf("category %q already exists (%s)", c.Name, c.ID)
			}
		}

		c := schema.Category{Name: name}
		for _, sub := range subs {
			if sub = strings.TrimSpace(sub); sub != "" {
				c.SubCategories = append(c.SubCategories, schema.SubCategory{ID: schema.NewSubCategoryID(), Name: sub})
			}
		}
		c.SetDefaults()
		if err := coll.Put(ctx, c); err != nil {
			a.fatalf("saving category: %v", err)
		}
		a.flush(ctx)
		fmt.Printf("%s Added category %s (%s)\n", ui.RenderPass("✓"), c.Name, c.ID)
	},
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List explicit categories",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		asJSON, _ := cmd.Flags().GetBool("json")

		a := mustOpen(ctx)
		defer a.Close()

		categories, err := catalogsync.Categories(a.coord).All(ctx)
		if err != nil {
			a.fatalf("loading categories: %v", err)
		}
		if asJSON {
			writeJSON(os.Stdout, categories)
			return
		}
		if len(categories) == 0 {
			fmt.Println("No categories found")
			return
		}
		rows := make([][]string, 0, len(categories))
		for _, c := range categories {
			subs := make([]string, 0, len(c.SubCategories))
			for _, s := range c.SubCategories {
				subs = append(subs, s.Name)
			}
			rows = append(rows, []string{c.ID, c.Name, strconv.Itoa(len(subs)), ui.Truncate(strings.Join(subs, ", "), 40)})
		}
		fmt.Println(ui.Table([]string{"ID", "Name", "Subs", "Subcategories"}, rows))
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete categories",
	Long: `Delete categories. Products keep their categoryId; the filter list then
names the dangling reference after the product's first tag.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.Close()

		if err := catalogsync.Categories(a.coord).DeleteMany(ctx, args); err != nil {
			a.fatalf("deleting categories: %v", err)
		}
		a.flush(ctx)
		fmt.Printf("%s Deleted %d categories\n", ui.RenderPass("✓"), len(args))
	},
}

var taxonomyCmd = &cobra.Command{
	Use:     "taxonomy",
	GroupID: "catalog",
	Short:   "Show the reconciled filter categories",
	Long: `Show the filter list shoppers see: explicit categories merged with
product tags and category references, deduplicated ignoring case and sorted
by the configured locale. Tags that look like leaked internal ids are hidden.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		asJSON, _ := cmd.Flags().GetBool("json")

		a := mustOpen(ctx)
		defer a.Close()

		r, err := a.resolver(ctx)
		if err != nil {
			a.fatalf("loading catalog: %v", err)
		}
		entries := r.Entries()
		if asJSON {
			writeJSON(os.Stdout, entries)
			return
		}
		if len(entries) == 0 {
			fmt.Println("No categories or tags found")
			return
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.Name, e.ID, string(e.Source)})
		}
		fmt.Println(ui.Table([]string{"Name", "ID", "Source"}, rows))
	},
}

func init() {
	categoryAddCmd.Flags().StringSlice("sub", nil, "Subcategory name (repeatable)")
	categoryListCmd.Flags().Bool("json", false, "Output as JSON")
	taxonomyCmd.Flags().Bool("json", false, "Output as JSON")

	categoryCmd.AddCommand(categoryAddCmd, categoryListCmd, categoryDeleteCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(taxonomyCmd)
}

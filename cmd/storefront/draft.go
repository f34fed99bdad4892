package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/media"
	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/ui"
)

var draftCmd = &cobra.Command{
	Use:     "draft",
	GroupID: "catalog",
	Short:   "Manage staged product images",
	Long: `Drafts are images staged for a product that has not been saved yet.
They live in the local store only and survive restarts. The daemon stages
images dropped into the inbox directory; 'product add --drafts' attaches and
clears them.`,
}

var draftAddCmd = &cobra.Command{
	Use:   "add <image>...",
	Short: "Stage image files as drafts",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.Close()

		drafts := make([]schema.Draft, 0, len(args))
		for _, path := range args {
			img, err := media.EncodeFile(path)
			if err != nil {
				a.fatalf("%s: %v", path, err)
			}
			drafts = append(drafts, schema.Draft{
				ID:        schema.NewDraftID(),
				Image:     img,
				Source:    filepath.Base(path),
				CreatedAt: schema.Now(),
			})
		}
		if err := catalogsync.Drafts(a.coord).PutMany(ctx, drafts); err != nil {
			a.fatalf("saving drafts: %v", err)
		}
		fmt.Printf("%s Staged %d images\n", ui.RenderPass("✓"), len(drafts))
	},
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged drafts",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.Close()

		drafts, err := catalogsync.Drafts(a.coord).All(ctx)
		if err != nil {
			a.fatalf("loading drafts: %v", err)
		}
		if len(drafts) == 0 {
			fmt.Println("No drafts staged")
			return
		}
		rows := make([][]string, 0, len(drafts))
		for _, d := range drafts {
			mime, data, err := media.Decode(d.Image)
			size := "?"
			if err == nil {
				size = formatSize(int64(len(data)))
			}
			rows = append(rows, []string{d.ID, d.Source, mime, size, d.CreatedAt.Time().Format("2006-01-02 15:04")})
		}
		fmt.Println(ui.Table([]string{"ID", "Source", "Type", "Size", "Staged"}, rows))
		fmt.Printf("%d drafts\n", len(drafts))
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every staged draft",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.Close()

		if err := catalogsync.Drafts(a.coord).Clear(ctx); err != nil {
			a.fatalf("clearing drafts: %v", err)
		}
		fmt.Printf("%s Drafts cleared\n", ui.RenderPass("✓"))
	},
}

func init() {
	draftCmd.AddCommand(draftAddCmd, draftListCmd, draftClearCmd)
	rootCmd.AddCommand(draftCmd)
}

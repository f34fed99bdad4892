package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/ui"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "catalog",
	Short:   "Manage storefront settings",
}

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Manage the featured video showcase",
}

var videosSetCmd = &cobra.Command{
	Use:   "set <video-url>...",
	Short: "Replace the featured videos",
	Long: fmt.Sprintf(`Replace the featured videos shown on the storefront. At most %d are
kept; extra URLs are ignored. Thumbnails are matched to videos by position.

Example:
  storefront settings videos set https://cdn.example/a.mp4 --thumb https://cdn.example/a.jpg`, schema.MaxFeaturedVideos),
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		thumbs, _ := cmd.Flags().GetStringSlice("thumb")

		videos := make([]schema.FeaturedVideo, 0, len(args))
		for i, raw := range args {
			if _, err := url.ParseRequestURI(raw); err != nil {
				fatalf("invalid video URL %q", raw)
			}
			v := schema.FeaturedVideo{VideoURL: raw}
			if i < len(thumbs) {
				v.ThumbnailURL = thumbs[i]
			}
			videos = append(videos, v)
		}
		if len(videos) > schema.MaxFeaturedVideos {
			fmt.Printf("%s Only the first %d videos are kept\n", ui.RenderWarn("⚠"), schema.MaxFeaturedVideos)
		}

		rec, err := schema.NewFeaturedVideos(videos)
		if err != nil {
			fatalf("%v", err)
		}

		a := mustOpen(ctx)
		defer a.Close()
		if err := catalogsync.Settings(a.coord).Put(ctx, rec); err != nil {
			a.fatalf("saving featured videos: %v", err)
		}
		a.flush(ctx)
		fmt.Printf("%s Featured videos updated\n", ui.RenderPass("✓"))
	},
}

var videosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the featured videos",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		asJSON, _ := cmd.Flags().GetBool("json")

		a := mustOpen(ctx)
		defer a.Close()

		rec, ok, err := catalogsync.Settings(a.coord).Get(ctx, schema.SettingsFeaturedVideos)
		if err != nil {
			a.fatalf("loading settings: %v", err)
		}
		var videos []schema.FeaturedVideo
		if ok {
			if videos, err = rec.FeaturedVideos(); err != nil {
				a.fatalf("%v", err)
			}
		}
		if asJSON {
			if videos == nil {
				videos = []schema.FeaturedVideo{}
			}
			writeJSON(os.Stdout, videos)
			return
		}
		if len(videos) == 0 {
			fmt.Println("No featured videos")
			return
		}
		rows := make([][]string, 0, len(videos))
		for i, v := range videos {
			rows = append(rows, []string{strconv.Itoa(i + 1), v.VideoURL, v.ThumbnailURL})
		}
		fmt.Println(ui.Table([]string{"#", "Video", "Thumbnail"}, rows))
	},
}

var videosClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every featured video",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.Close()

		if err := catalogsync.Settings(a.coord).Delete(ctx, schema.SettingsFeaturedVideos); err != nil {
			a.fatalf("clearing featured videos: %v", err)
		}
		a.flush(ctx)
		fmt.Printf("%s Featured videos cleared\n", ui.RenderPass("✓"))
	},
}

func init() {
	videosSetCmd.Flags().StringSlice("thumb", nil, "Thumbnail URL, matched to videos by position (repeatable)")
	videosListCmd.Flags().Bool("json", false, "Output as JSON")

	videosCmd.AddCommand(videosSetCmd, videosListCmd, videosClearCmd)
	settingsCmd.AddCommand(videosCmd)
	rootCmd.AddCommand(settingsCmd)
}

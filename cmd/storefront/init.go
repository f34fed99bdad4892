package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/config"
	"github.com/crumbworks/storefront/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "advanced",
	Short:   "Create the data directory, local store and config file",
	Long: `Create the data directory, the local store and a config.toml holding the
current settings (flags and STOREFRONT_* variables included).

The remote token is never written to the file. Set STOREFRONT_REMOTE_TOKEN
in the environment instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		ctx := context.Background()

		a := mustOpen(ctx)
		defer a.Close()

		if err := a.local.EnsureOpen(ctx); err != nil {
			a.fatalf("creating local store: %v", err)
		}

		path := a.cfg.File
		if path == "" {
			path = cfgFile
		}
		if path == "" {
			path = filepath.Join(a.cfg.DataDir, "config.toml")
		}
		if err := a.cfg.Write(path, force); err != nil {
			a.fatalf("%v (use --force to overwrite)", err)
		}

		fmt.Printf("%s Initialized storefront in %s\n", ui.RenderPass("✓"), a.cfg.DataDir)
		fmt.Printf("   Local store: %s\n", a.cfg.DatabasePath())
		fmt.Printf("   Config: %s\n", path)
		if a.cfg.RemoteMode() == config.RemoteOff {
			fmt.Printf("   Remote: %s\n", ui.RenderMuted("off (set STOREFRONT_REMOTE_URL and STOREFRONT_REMOTE_TOKEN to enable)"))
		} else {
			fmt.Printf("   Remote: %s\n", a.cfg.RemoteMode())
		}
		if _, err := os.Stat(a.cfg.InboxDir()); os.IsNotExist(err) {
			fmt.Printf("   Inbox: %s %s\n", a.cfg.InboxDir(), ui.RenderMuted("(created by the daemon)"))
		}
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

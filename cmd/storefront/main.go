// Command storefront manages a bakery storefront catalog: products,
// categories, staged image drafts and site settings, stored locally and
// mirrored to a remote database when one is configured.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Bakery storefront catalog with local-first remote sync",
	Long: `storefront keeps the catalog of a bakery storefront.

Every change is written to the local store. When a remote credential is
configured (STOREFRONT_REMOTE_TOKEN), changes are mirrored to the remote
database first and reads refresh the local copy from it. A remote outage
never blocks local work.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "catalog", Title: "Catalog:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default <data-dir>/config.toml)")
	flags.String("data-dir", "", "Directory holding the local store (default .storefront)")
	flags.String("remote", "", "Remote mode: off, turso or memory")
	flags.String("log-file", "", "Also write logs to this file, with rotation")
	flags.BoolP("quiet", "q", false, "Suppress log output on stderr")

	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("remote.mode", flags.Lookup("remote"))
	_ = v.BindPFlag("log.file", flags.Lookup("log-file"))
	_ = v.BindPFlag("log.quiet", flags.Lookup("quiet"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

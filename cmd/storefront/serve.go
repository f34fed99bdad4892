package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crumbworks/storefront/internal/catalog/daemon"
	"github.com/crumbworks/storefront/internal/catalog/dashboard"
	"github.com/crumbworks/storefront/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run the catalog daemon (foreground)",
	Long: `Run the catalog daemon in the foreground.

The daemon will:
  1. Migrate the legacy key-value catalog once, if it has not been migrated
  2. Keep products, categories and settings subscribed to the remote mirror
  3. Stage images dropped into the inbox directory as drafts
  4. Serve the live dashboard (unless --no-dashboard)

Images are moved to <inbox>/ingested once staged. Use a process manager to
run it in the background.`,
	Run: func(cmd *cobra.Command, args []string) {
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := mustOpen(ctx)
		defer a.Close()

		port := a.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		var publisher daemon.Publisher
		var server *dashboard.Server
		if !noDashboard {
			server = dashboard.NewServer(&dashboard.Config{Port: port, Logger: a.logs.Logger("dashboard")})
			if err := server.Start(); err != nil {
				a.fatalf("failed to start dashboard: %v", err)
			}
			publisher = dashboard.NewHandler(server, a.reconciler(), a.logs.Logger("dashboard"))
		}

		d, err := daemon.New(a.coord, a.local, a.legacyStore(""), publisher, &daemon.Config{
			InboxDir:         a.cfg.InboxDir(),
			DebounceInterval: a.cfg.Daemon.DebounceDelay,
			Logger:           a.logs.Logger("daemon"),
		})
		if err != nil {
			_ = server.Stop()
			a.fatalf("creating daemon: %v", err)
		}

		fmt.Printf("%s Starting catalog daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Local store: %s\n", a.cfg.DatabasePath())
		fmt.Printf("   Remote: %s\n", a.cfg.RemoteMode())
		fmt.Printf("   Inbox: %s\n", a.cfg.InboxDir())
		if server != nil {
			fmt.Printf("   Dashboard: http://localhost:%d\n", port)
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		runErr := d.Start(ctx)
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
		}
		a.flush(context.Background())
		if runErr != nil {
			a.fatalf("daemon stopped with error: %v", runErr)
		}
		fmt.Println("Daemon stopped")
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the live catalog dashboard",
	Long: `Start a WebSocket dashboard that streams catalog changes.

Clients connecting to /ws receive the latest state of every collection and
then each change as it happens. Messages:
- snapshot: full contents of products, categories or settings (drafts send ids only)
- taxonomy: the reconciled filter category list
- sync_status: remote mirror health
- draft_staged: an image was staged from the inbox

Plain HTTP endpoints: /health, /taxonomy, /status.

Unlike 'daemon', this does not watch the inbox or run the legacy migration.

Example usage:
  storefront dashboard                # Start on the configured port (8080)
  storefront dashboard --port 9000    # Start on a custom port`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := mustOpen(ctx)
		defer a.Close()

		port := a.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: a.logs.Logger("dashboard")})
		if err := server.Start(); err != nil {
			a.fatalf("failed to start dashboard: %v", err)
		}
		handler := dashboard.NewHandler(server, a.reconciler(), a.logs.Logger("dashboard"))

		d, err := daemon.New(a.coord, nil, nil, handler, &daemon.Config{Logger: a.logs.Logger("daemon")})
		if err != nil {
			_ = server.Stop()
			a.fatalf("creating dashboard feed: %v", err)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		runErr := d.Start(ctx)

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			a.fatalf("during shutdown: %v", err)
		}
		if runErr != nil {
			a.fatalf("%v", runErr)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 8080, "Dashboard port")
	daemonCmd.Flags().Bool("no-dashboard", false, "Do not serve the dashboard")
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(dashboardCmd)
}

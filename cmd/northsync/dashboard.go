package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/northapp/northsync/internal/dashboard"
	"github.com/northapp/northsync/internal/status"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "service",
	Short:   "Start the WebSocket status dashboard",
	Long: `Start a standalone WebSocket dashboard server.

The server exposes:
  /ws      - WebSocket stream of sync status transitions and conflicts
  /status  - JSON snapshot of every account's sync state
  /health  - liveness check

Standalone mode serves snapshots from the database; live transitions only
flow when the dashboard shares a process with the daemon
('northsync daemon --with-dashboard').

Example usage:
  northsync dashboard
  northsync dashboard --port 9000`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")

		cfg := loadConfig()
		if port == 0 {
			port = cfg.Dashboard.Port
		}

		st := openStore(cfg)
		defer st.Close()

		logger := log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
		server := dashboard.NewServer(status.New(logger), st, &dashboard.Config{
			Port:   port,
			Logger: logger,
		})

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Status snapshot: http://localhost:%d/status\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
	rootCmd.AddCommand(dashboardCmd)
}

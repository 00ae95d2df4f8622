package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/northapp/northsync/internal/daemon"
	"github.com/northapp/northsync/internal/dashboard"
	"github.com/northapp/northsync/internal/notify"
	"github.com/northapp/northsync/internal/status"
	"github.com/northapp/northsync/internal/syncer"
	"github.com/northapp/northsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "service",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the background sync daemon in foreground mode.

The daemon:
  1. Watches the spool directory for new link files and ingests them
  2. Runs an incremental sync pass for every user on a fixed interval
  3. Resolves conflicts automatically where policy allows

With --with-dashboard, a WebSocket dashboard is served alongside the
daemon so status transitions can be observed live.

Example usage:
  northsync daemon
  northsync daemon --with-dashboard`,
	Run: func(cmd *cobra.Command, args []string) {
		withDashboard, _ := cmd.Flags().GetBool("with-dashboard")

		cfg := loadConfig()

		// Daemon logs rotate when a log file is configured; stderr
		// always gets a copy for foreground runs.
		var logWriter io.Writer = os.Stderr
		if cfg.Log.File != "" {
			logWriter = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   cfg.Log.File,
				MaxSize:    cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAge:     cfg.Log.MaxAgeDays,
			})
		}
		logger := log.New(logWriter, "[daemon] ", log.LstdFlags)

		st := openStore(cfg)
		defer st.Close()

		pv := newProvider(cfg, logger)
		tracker := status.New(logger)

		var dispatcher notify.Dispatcher = &notify.LogDispatcher{Logger: logger}

		var dash *dashboard.Server
		if withDashboard {
			dash = dashboard.NewServer(tracker, st, &dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: logger,
			})
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			dispatcher = dashboard.NewDispatcher(dash, dispatcher)
			fmt.Printf("%s Dashboard on http://localhost:%d (ws at /ws)\n",
				ui.RenderAccent("▣"), cfg.Dashboard.Port)
		}

		orch := newOrchestrator(cfg, st, pv, tracker, dispatcher, logger)

		daemonCfg := &daemon.Config{
			SyncInterval: cfg.Sync.Interval,
			SpoolDir:     cfg.Spool.Dir,
			Logger:       logger,
		}
		if dash != nil {
			daemonCfg.OnPass = func(userID string, summary *syncer.SyncSummary) {
				dash.BroadcastSyncComplete(dashboard.SyncCompleteData{
					UserID:          userID,
					Synced:          summary.Synced,
					Failed:          summary.Failed,
					ConflictPending: summary.ConflictPending,
					Skipped:         summary.Skipped,
					Duration:        summary.Duration,
				})
			}
		}

		ingestor := daemon.NewIngestor(st, pv, logger)
		d, err := daemon.New(st, orch, ingestor, daemonCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Starting sync daemon\n", ui.RenderAccent("▶"))
		fmt.Printf("   Database: %s\n", cfg.Database.Path)
		fmt.Printf("   Spool: %s\n", cfg.Spool.Dir)
		fmt.Printf("   Interval: %v\n", cfg.Sync.Interval)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}

		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
			}
		}
		fmt.Println("Daemon stopped")
	},
}

func init() {
	daemonCmd.Flags().Bool("with-dashboard", false, "Serve the WebSocket dashboard alongside the daemon")
	rootCmd.AddCommand(daemonCmd)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/northapp/northsync/internal/daemon"
	"github.com/northapp/northsync/internal/notify"
	"github.com/northapp/northsync/internal/status"
	"github.com/northapp/northsync/internal/ui"
)

var linkCmd = &cobra.Command{
	Use:     "link",
	GroupID: "sync",
	Short:   "Manage institution links",
	Long: `Manage links between North users and their bank institutions.

Linking happens in the app via the provider's Link flow; the app writes
the resulting access token as a JSON link file. The daemon picks link
files up from the spool directory automatically, or they can be imported
here by hand.`,
}

var linkImportCmd = &cobra.Command{
	Use:   "import <link-file>",
	Short: "Import a link file and discover its accounts",
	Long: `Ingest a JSON link file: register the institution item, discover its
accounts from the provider, and run an initial sync.

The link file is removed after successful ingestion, matching the spool
contract the daemon uses.

Example usage:
  northsync link import ~/Downloads/link-chase.json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		cfg := loadConfig()
		logger := log.New(os.Stderr, "[link] ", log.LstdFlags)

		st := openStore(cfg)
		defer st.Close()

		pv := newProvider(cfg, logger)
		ingestor := daemon.NewIngestor(st, pv, logger)

		ctx := context.Background()
		item, err := ingestor.Ingest(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing link file: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Linked %s for %s\n", ui.RenderPass("✓"), item.InstitutionName, item.UserID)

		// Initial sync so balances and transactions land immediately.
		orch := newOrchestrator(cfg, st, pv, status.New(logger), &notify.LogDispatcher{Logger: logger}, logger)
		summary, err := orch.SyncAll(ctx, item.UserID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during initial sync: %v\n", err)
			os.Exit(1)
		}
		newSummaryView(summary.Total, summary.Synced, summary.Failed,
			summary.ConflictPending, summary.Skipped, summary.Duration).print(item.UserID)
	},
}

func init() {
	linkCmd.AddCommand(linkImportCmd)
	rootCmd.AddCommand(linkCmd)
}

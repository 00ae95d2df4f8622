package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/northapp/northsync/internal/notify"
	"github.com/northapp/northsync/internal/status"
	"github.com/northapp/northsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync <user-id>",
	GroupID: "sync",
	Short:   "Sync a user's linked accounts",
	Long: `Run one sync pass over all of a user's active accounts.

Each account is fetched from the provider, conflicts between remote facts
and local edits are detected and resolved, and the account's balance and
watermark are updated atomically. Account failures are isolated: one bad
account never aborts the rest of the pass.

With --incremental, accounts refreshed within the staleness threshold
(default 15m) are skipped instead of re-fetched.

Example usage:
  northsync sync user-42                # full pass
  northsync sync user-42 --incremental  # skip fresh accounts
  northsync sync user-42 --account acc-7`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID := args[0]
		incremental, _ := cmd.Flags().GetBool("incremental")
		accountID, _ := cmd.Flags().GetString("account")

		cfg := loadConfig()
		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)

		st := openStore(cfg)
		defer st.Close()

		pv := newProvider(cfg, logger)
		orch := newOrchestrator(cfg, st, pv, status.New(logger), &notify.LogDispatcher{Logger: logger}, logger)

		ctx := context.Background()

		if accountID != "" {
			res, err := orch.SyncAccount(ctx, accountID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error syncing account: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s %s: %s (%d new, %d pending conflicts) in %v\n",
				ui.RenderPass("✓"), res.AccountID, ui.FormatStatus(res.Status),
				res.NewTransactions, len(res.Pending), res.Duration.Round(time.Millisecond))
			return
		}

		var summary *syncSummaryView
		if incremental {
			s, err := orch.IncrementalSync(ctx, userID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
				os.Exit(1)
			}
			summary = newSummaryView(s.Total, s.Synced, s.Failed, s.ConflictPending, s.Skipped, s.Duration)
		} else {
			s, err := orch.SyncAll(ctx, userID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
				os.Exit(1)
			}
			summary = newSummaryView(s.Total, s.Synced, s.Failed, s.ConflictPending, s.Skipped, s.Duration)
		}

		summary.print(userID)
		if summary.failed > 0 {
			os.Exit(1)
		}
	},
}

// syncSummaryView renders a pass summary for the terminal.
type syncSummaryView struct {
	total, synced, failed, conflicts, skipped int
	duration                                  time.Duration
}

func newSummaryView(total, synced, failed, conflicts, skipped int, d time.Duration) *syncSummaryView {
	return &syncSummaryView{total, synced, failed, conflicts, skipped, d}
}

func (v *syncSummaryView) print(userID string) {
	mark := ui.RenderPass("✓")
	if v.failed > 0 {
		mark = ui.RenderFail("✗")
	} else if v.conflicts > 0 {
		mark = ui.RenderWarn("⚠")
	}

	fmt.Printf("%s Sync complete for %s in %v\n", mark, userID, v.duration.Round(time.Millisecond))
	fmt.Printf("   Accounts: %d\n", v.total)
	fmt.Printf("   Synced: %d\n", v.synced)
	if v.skipped > 0 {
		fmt.Printf("   Skipped (fresh): %d\n", v.skipped)
	}
	if v.conflicts > 0 {
		fmt.Printf("   %s %d account(s) with conflicts pending review\n", ui.RenderWarn("⚠"), v.conflicts)
	}
	if v.failed > 0 {
		fmt.Printf("   %s %d account(s) failed\n", ui.RenderFail("✗"), v.failed)
	}
}

func init() {
	syncCmd.Flags().Bool("incremental", false, "Skip accounts refreshed within the staleness threshold")
	syncCmd.Flags().String("account", "", "Sync a single account by ID")
	rootCmd.AddCommand(syncCmd)
}

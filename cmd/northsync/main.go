// Command northsync is the account synchronization engine for North.
//
// It links bank accounts via spooled link files, syncs balances and
// transactions from the provider, resolves conflicts between local edits
// and remote facts, and serves a real-time status dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "northsync",
	Short: "Account synchronization engine for North",
	Long: `northsync keeps locally cached bank accounts in step with the provider.

It fetches balances and transactions, detects and resolves conflicts
between remote facts and local annotations, and exposes sync status to
observers. Run 'northsync daemon' for continuous background syncing or
'northsync sync' for a one-shot pass.`,
	Version: Version,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "review", Title: "Review Commands:"},
		&cobra.Group{ID: "service", Title: "Service Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

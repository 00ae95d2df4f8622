package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/northapp/northsync/internal/ui"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts <user-id>",
	GroupID: "review",
	Short:   "List a user's linked accounts",
	Long: `Display linked accounts with balances and sync freshness.

Balances are the last values fetched from the provider; the freshness
column shows how long ago each account was synced.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID := args[0]

		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		accounts, err := st.ListAccountsByUser(context.Background(), userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing accounts: %v\n", err)
			os.Exit(1)
		}

		if len(accounts) == 0 {
			fmt.Printf("No accounts linked for %s\n", userID)
			fmt.Printf("Drop a link file into the spool directory or run 'northsync link import'\n")
			return
		}

		fmt.Printf("\n%s Accounts for %s\n\n", ui.RenderAccent("▣"), userID)
		for _, acct := range accounts {
			freshness := "never synced"
			if !acct.LastUpdated.IsZero() {
				freshness = fmt.Sprintf("synced %v ago", time.Since(acct.LastUpdated).Round(time.Minute))
			}
			state := ui.RenderPass("active")
			if !acct.Active {
				state = ui.RenderMuted("inactive")
			}
			fmt.Printf("%s  %s  %s\n", ui.RenderAccent(acct.ID), acct.InstitutionName, state)
			fmt.Printf("   %s  %s  %s  %s\n",
				acct.Type,
				ui.FormatAmount(acct.Balance, acct.Currency),
				ui.RenderMuted(freshness),
				ui.RenderMuted(acct.ExternalID))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/northapp/northsync/internal/conflict"
	"github.com/northapp/northsync/internal/model"
	"github.com/northapp/northsync/internal/ui"
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	GroupID: "review",
	Short:   "Review and resolve pending sync conflicts",
	Long: `Manage conflicts that automatic resolution left for manual review.

Most conflicts resolve automatically (remote wins facts, local wins
annotations). Account status changes and undecodable records stay pending
until a person decides.`,
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending conflicts",
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetString("user")

		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		ctx := context.Background()
		var pending []model.ConflictRecord
		var err error
		if userID != "" {
			pending, err = st.ListPendingConflictsByUser(ctx, userID)
		} else {
			pending, err = st.ListAllPendingConflicts(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing conflicts: %v\n", err)
			os.Exit(1)
		}

		if len(pending) == 0 {
			fmt.Printf("%s No pending conflicts\n", ui.RenderPass("✓"))
			return
		}

		fmt.Printf("\n%s %d pending conflict(s)\n\n", ui.RenderWarn("⚠"), len(pending))
		for _, c := range pending {
			review := ""
			if c.RequiresManualReview {
				review = ui.RenderWarn(" [manual review]")
			}
			fmt.Printf("%s  %s%s\n", ui.RenderAccent(c.ID), c.Type, review)
			fmt.Printf("   account %s, detected %s\n",
				c.AccountID, ui.RenderMuted(c.DetectedAt.Format("2006-01-02 15:04:05")))
		}
		fmt.Println()
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve [conflict-id]",
	Short: "Resolve a pending conflict interactively",
	Long: `Resolve a conflict by choosing which side to keep.

Without a conflict ID, pending conflicts are offered as an interactive
pick list. Keeping the remote side applies the provider's facts; keeping
the local side preserves the cached record and marks the conflict done.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		st := openStore(cfg)
		defer st.Close()

		ctx := context.Background()

		var conflictID string
		if len(args) == 1 {
			conflictID = args[0]
		} else {
			pending, err := st.ListAllPendingConflicts(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing conflicts: %v\n", err)
				os.Exit(1)
			}
			if len(pending) == 0 {
				fmt.Printf("%s No pending conflicts\n", ui.RenderPass("✓"))
				return
			}

			options := make([]huh.Option[string], 0, len(pending))
			for _, c := range pending {
				label := fmt.Sprintf("%s  %s  (account %s)", c.ID, c.Type, c.AccountID)
				options = append(options, huh.NewOption(label, c.ID))
			}

			form := huh.NewForm(huh.NewGroup(
				huh.NewSelect[string]().
					Title("Which conflict do you want to resolve?").
					Options(options...).
					Value(&conflictID),
			))
			if err := form.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		rec, err := st.GetConflict(ctx, conflictID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading conflict %s: %v\n", conflictID, err)
			os.Exit(1)
		}

		printSnapshots(rec)

		keepRemote := true
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[bool]().
				Title("Which side should win?").
				Options(
					huh.NewOption("Keep remote (provider facts)", true),
					huh.NewOption("Keep local (cached record)", false),
				).
				Value(&keepRemote),
		))
		if err := form.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		logger := log.New(os.Stderr, "[conflict] ", log.LstdFlags)
		resolver := conflict.NewResolver(st, logger)
		outcome, err := resolver.ResolveManually(ctx, conflictID, keepRemote)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving conflict: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Conflict %s resolved: %s\n", ui.RenderPass("✓"), conflictID, outcome)
	},
}

// printSnapshots shows both sides of a conflict so the user can decide.
func printSnapshots(c *model.ConflictRecord) {
	fmt.Printf("\n%s %s on account %s\n", ui.RenderWarn("⚠"), c.Type, c.AccountID)
	if len(c.LocalSnapshot) > 0 {
		fmt.Printf("   local:  %s\n", string(c.LocalSnapshot))
	}
	if len(c.RemoteSnapshot) > 0 {
		fmt.Printf("   remote: %s\n", string(c.RemoteSnapshot))
	}
	fmt.Println()
}

func init() {
	conflictsListCmd.Flags().String("user", "", "Only conflicts for this user's accounts")
	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}

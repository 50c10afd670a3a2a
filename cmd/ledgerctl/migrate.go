package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Consolidate legacy dual balances into the unified credit balance",
		Long:  "Walks every account (or a single one with --user) and applies the one-time legacy balance migration. Already-migrated accounts are skipped, so re-running after a partial failure is safe.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := wireLedger()
			if err != nil {
				return err
			}

			if userID != "" {
				upgraded, err := svc.Migrate(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s: upgraded=%v\n", userID, upgraded)
				return nil
			}

			report, err := svc.MigrateAll(cmd.Context())
			// Print the partial report even on failure so the operator
			// knows what committed.
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d upgraded=%d skipped=%d\n",
				report.TotalProcessed, report.Upgraded, report.Skipped)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "migrate a single user instead of all accounts")
	return cmd
}

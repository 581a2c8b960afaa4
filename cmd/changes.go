package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/loopwidget/planscope/pkg/storage"
	"github.com/spf13/cobra"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent plan changes (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database not found: %s", dbPath)
		}
		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		changes, err := db.ListRecentChanges(context.Background(), limit)
		if err != nil {
			return err
		}
		for _, c := range changes {
			ts := c.OccurredAt.Format("2006-01-02 15:04:05")
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s  %s/products/%s  %s  %s  %s\n", ts, c.ChangeType, c.StoreURL, c.Handle, c.PlanID, c.PlanName, c.Detail)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
}

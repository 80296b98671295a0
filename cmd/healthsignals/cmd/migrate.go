package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/healthsignals/internal/core/config"
	"github.com/solatis/healthsignals/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the audit database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url := databaseURL()
		if url == "" {
			return fmt.Errorf("--db-url or %s required", config.DatabaseURLEnv)
		}

		database, err := db.Open(cmd.Context(), url)
		if err != nil {
			return err
		}
		defer database.Close()

		ran, err := db.MigrateUp(cmd.Context(), database)
		for _, id := range ran {
			logger.Info("migration applied", "migration", id)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(ran))
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		url := databaseURL()
		if url == "" {
			return fmt.Errorf("--db-url or %s required", config.DatabaseURLEnv)
		}

		database, err := db.Open(cmd.Context(), url)
		if err != nil {
			return err
		}
		defer database.Close()

		statuses, err := db.MigrateStatus(cmd.Context(), database)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tSTATUS\tAPPLIED AT")
		for _, s := range statuses {
			state, at := "pending", "-"
			if s.Applied {
				state = "applied"
				if s.AppliedAt != nil {
					at = s.AppliedAt.Format(time.RFC3339)
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, state, at)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/healthsignals/internal/core/config"
	"github.com/solatis/healthsignals/internal/core/db"
	"github.com/solatis/healthsignals/internal/types"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and prune the evaluation audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent evaluations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, closeFn, err := openAuditStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := store.ListRecent(cmd.Context(), limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVALUATION\tCREATED\tSOURCE\tRULES\tMATCHED\tINDETERMINATE\tDURATION")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.ID, r.CreatedAt.Format(time.RFC3339), r.Source, r.RuleCount,
				r.MatchedCount, r.IndeterminateCount, time.Duration(r.DurationMicros)*time.Microsecond)
		}
		return w.Flush()
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show EVALUATION_ID",
	Short: "Show one evaluation with its matched rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseEvaluationID(args[0])
		if err != nil {
			return fmt.Errorf("invalid evaluation id %q: %w", args[0], err)
		}

		store, closeFn, err := openAuditStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		rec, err := store.Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete evaluations older than a retention period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}

		store, closeFn, err := openAuditStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		logger.Info("audit log pruned", "removed", removed, "older_than", olderThan)
		fmt.Fprintf(cmd.OutOrStdout(), "%d evaluation(s) removed\n", removed)
		return nil
	},
}

func openAuditStore(cmd *cobra.Command) (*db.AuditStore, func(), error) {
	url := databaseURL()
	if url == "" {
		return nil, nil, fmt.Errorf("--db-url or %s required", config.DatabaseURLEnv)
	}

	database, err := openMigrated(cmd.Context(), url)
	if err != nil {
		return nil, nil, err
	}

	store, err := db.NewAuditStore(database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return store, func() { database.Close() }, nil
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditShowCmd, auditPruneCmd)
	auditListCmd.Flags().Int("limit", 20, fmt.Sprintf("maximum evaluations to list (max %d)", db.MaxListLimit))
	auditPruneCmd.Flags().Duration("older-than", 90*24*time.Hour, "retention period")
}

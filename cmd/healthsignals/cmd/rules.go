package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/healthsignals/internal/core/api"
	"github.com/solatis/healthsignals/internal/ruletable"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule sheets",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Report rules the engine cannot fully evaluate",
	Long: `Check loads a CSV rule sheet and lists, per rule, the problems that do not
depend on metrics: unknown metric names or comparators, missing or
unparsable thresholds, empty or invalid SIGNAL_LOGIC, invalid PRIORITY.
Exits non-zero when any rule has a problem.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ruleSet, err := ruletable.NewFileSource(args[0]).Load(cmd.Context())
		if err != nil {
			return err
		}

		catalog := api.BuildCatalog(ruleSet)
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(catalog); err != nil {
				return err
			}
		}

		problems := 0
		for i, entry := range catalog.Rules {
			for _, d := range entry.Diagnostics {
				problems++
				if !asJSON {
					// Row numbers are 1-based and count the header
					fmt.Fprintf(cmd.OutOrStdout(), "row %d %s: %s\n", i+2, entry.Rule.RuleID, d)
				}
			}
		}
		if !asJSON {
			fmt.Fprintf(cmd.OutOrStdout(), "%d rules, %d problems\n", len(catalog.Rules), problems)
		}
		if problems > 0 {
			return fmt.Errorf("%d rule problems found", problems)
		}
		return nil
	},
}

var rulesTemplateCmd = &cobra.Command{
	Use:   "template [FILE]",
	Short: "Write an empty rule sheet with the canonical header",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return ruletable.WriteCSV(out, nil)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd, rulesTemplateCmd)
	rulesCheckCmd.Flags().Bool("json", false, "print the rule catalog as JSON")
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/healthsignals/internal/core/api"
	"github.com/solatis/healthsignals/internal/core/server"
	"github.com/solatis/healthsignals/internal/rules"
	"github.com/solatis/healthsignals/internal/ruletable"
	"github.com/solatis/healthsignals/internal/types"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a rule sheet against one metrics snapshot",
	Long: `Evaluate reads a CSV rule sheet and a JSON metrics snapshot and prints the
matched rules, ranked by priority, as JSON.

With --remote the evaluation runs on a healthsignals server instead; --rules
is then optional and the server's configured rule sheet is used without it.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("rules", "", "CSV rule sheet")
	evaluateCmd.Flags().String("metrics", "", "JSON metrics snapshot (- for stdin)")
	evaluateCmd.Flags().String("remote", "", "gRPC address of a healthsignals server")
	evaluateCmd.Flags().Bool("all", false, "print every rule's result, including non-matches and diagnostics")
	evaluateCmd.MarkFlagRequired("metrics")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	rulesPath, _ := flags.GetString("rules")
	metricsPath, _ := flags.GetString("metrics")
	remote, _ := flags.GetString("remote")
	all, _ := flags.GetBool("all")

	m, err := readMetrics(cmd.InOrStdin(), metricsPath)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if remote != "" {
		req := api.EvaluateRequest{Metrics: m}
		if rulesPath != "" {
			if req.Rules, err = readGrid(rulesPath); err != nil {
				return err
			}
		}

		client, err := server.Dial(remote)
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.Evaluate(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("remote evaluation failed: %w", err)
		}
		return enc.Encode(resp)
	}

	if rulesPath == "" {
		return fmt.Errorf("--rules required without --remote")
	}
	ruleSet, err := ruletable.NewFileSource(rulesPath).Load(cmd.Context())
	if err != nil {
		return err
	}

	if all {
		results := make([]types.RuleEvaluationResult, 0, len(ruleSet))
		for _, r := range ruleSet {
			results = append(results, rules.EvaluateRule(r, m))
		}
		return enc.Encode(results)
	}

	report := rules.NewEngine(logger).Match(cmd.Context(), ruleSet, m)
	return enc.Encode(report.Results)
}

func readMetrics(stdin io.Reader, path string) (types.HealthMetrics, error) {
	var m types.HealthMetrics

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return m, fmt.Errorf("failed to read metrics: %w", err)
	}

	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse metrics %s: %w", path, err)
	}
	return m, nil
}

func readGrid(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule sheet: %w", err)
	}
	defer f.Close()
	return ruletable.ReadCSV(f)
}

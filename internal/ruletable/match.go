package ruletable

import (
	"github.com/solatis/healthsignals/internal/rules"
	"github.com/solatis/healthsignals/internal/types"
)

// MatchGrid parses a rule grid and returns the matched rules ranked by
// priority. Only grid errors are returned; rule problems degrade the
// affected rule.
func MatchGrid(grid [][]string, m types.HealthMetrics) ([]types.RuleEvaluationResult, error) {
	ruleSet, err := ParseGrid(grid)
	if err != nil {
		return nil, err
	}
	return rules.MatchRules(ruleSet, m), nil
}

// internal/rules/match.go
package rules

import (
	"sort"
	"strings"

	"github.com/solatis/healthsignals/internal/types"
)

/*
 * Rule set matching.
 *
 * Evaluates every rule, keeps the matches, and ranks them ascending by
 * priority. The sort is stable: rules sharing a priority keep their input
 * order, so sheet authors control tie-breaking by row order.
 *
 * Pure function: no logging, no I/O, inputs are read-only. Engine wraps this
 * with logging for the service layer.
 */

// MatchRules evaluates rules against metrics and returns the matched results
// ranked by priority. An empty result is valid.
func MatchRules(rules []types.Rule, m types.HealthMetrics) []types.RuleEvaluationResult {
	return MatchCompiled(CompileAll(rules), m)
}

// MatchCompiled is MatchRules over pre-compiled rules.
func MatchCompiled(compiled []*CompiledRule, m types.HealthMetrics) []types.RuleEvaluationResult {
	matched, _ := evaluateAll(compiled, m)
	return matched
}

// evaluateAll returns ranked matches plus every result in input order.
func evaluateAll(compiled []*CompiledRule, m types.HealthMetrics) (matched, all []types.RuleEvaluationResult) {
	all = make([]types.RuleEvaluationResult, 0, len(compiled))
	matched = make([]types.RuleEvaluationResult, 0)

	for _, rule := range compiled {
		result := Evaluate(rule, m)
		all = append(all, result)
		if result.Matched {
			matched = append(matched, result)
		}
	}

	// Stable sort: equal priorities keep sheet order
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})

	return matched, all
}

// FilterByStatus keeps rules whose STATUS (trimmed, case-insensitive) is in
// statuses. An empty statuses list keeps every rule.
func FilterByStatus(rules []types.Rule, statuses []string) []types.Rule {
	if len(statuses) == 0 {
		return rules
	}

	allowed := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	kept := make([]types.Rule, 0, len(rules))
	for _, r := range rules {
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(r.Status))]; ok {
			kept = append(kept, r)
		}
	}
	return kept
}

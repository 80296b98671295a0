// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/healthsignals/internal/types"
)

/*
 * Rule evaluation orchestration.
 *
 * Evaluates a CompiledRule against one HealthMetrics snapshot.
 *
 * Evaluation flow:
 *   1. Every signal slot is evaluated; no short-circuit, so the result
 *      record always reports all three signals
 *   2. Per signal: compile-time problem -> resolve metric -> compare
 *   3. Combine the three tri-state results through the rule's LogicExpr
 *   4. Attach guidance (tip, why, category) only when matched
 *
 * Tri-state handling: an indeterminate signal stays Indeterminate in the
 * result record and contributes false to the combiner.
 */

// SignalOutcome is the result of evaluating one signal plus the reason when
// the result is Indeterminate.
type SignalOutcome struct {
	Result     types.SignalResult
	Diagnostic *types.Diagnostic
}

// EvaluateSignal evaluates a raw signal spec against metrics. slot is 1-based
// and only used for diagnostics.
func EvaluateSignal(slot int, spec types.SignalSpec, m types.HealthMetrics) SignalOutcome {
	return evaluateSignal(CompileSignal(slot, spec), m)
}

func evaluateSignal(cs CompiledSignal, m types.HealthMetrics) SignalOutcome {
	if cs.Problem != nil {
		return SignalOutcome{Result: types.Indeterminate, Diagnostic: cs.Problem}
	}

	value, ok := ResolveMetric(cs.Metric, m, cs.FeatureType)
	if !ok {
		return SignalOutcome{
			Result:     types.Indeterminate,
			Diagnostic: signalProblem(cs.Slot, types.ReasonUnknownMetric, cs.Metric.String()),
		}
	}

	return SignalOutcome{Result: types.ResultOf(Compare(cs.Comparator, value, cs.Low, cs.High))}
}

// Evaluate checks a compiled rule against metrics.
func Evaluate(rule *CompiledRule, m types.HealthMetrics) types.RuleEvaluationResult {
	result := types.RuleEvaluationResult{
		RuleID:   rule.Rule.RuleID,
		Priority: rule.Priority,
	}

	var outcomes [types.MaxSignals]types.SignalResult
	for i, cs := range rule.Signals {
		out := evaluateSignal(cs, m)
		outcomes[i] = out.Result
		if out.Diagnostic != nil {
			result.Diagnostics = append(result.Diagnostics, *out.Diagnostic)
		}
	}
	result.Signals = types.Signals{Sig1: outcomes[0], Sig2: outcomes[1], Sig3: outcomes[2]}
	result.Diagnostics = append(result.Diagnostics, rule.Diagnostics...)

	result.Matched = Combine(rule.Logic, outcomes[0], outcomes[1], outcomes[2])
	if result.Matched {
		tip := rule.Rule.TipText
		why := rule.Rule.WhyTextTemplate
		category := rule.Rule.TipCategory
		result.TipText = &tip
		result.WhyText = &why
		result.Category = &category
	}

	return result
}

// EvaluateRule compiles and evaluates a single rule.
func EvaluateRule(rule types.Rule, m types.HealthMetrics) types.RuleEvaluationResult {
	return Evaluate(Compile(rule), m)
}

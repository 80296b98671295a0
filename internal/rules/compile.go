// internal/rules/compile.go
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/solatis/healthsignals/internal/types"
)

/*
 * Rule compilation.
 *
 * Compiles types.Rule (raw sheet cells) into CompiledRule with parsed
 * metrics, comparators, thresholds, logic and priority. Compilation never
 * fails: every malformed cell becomes a recorded degradation that evaluation
 * turns into an indeterminate signal, a non-matching rule, or a last-ranked
 * priority.
 *
 * Compilation workflow:
 *   1. Per signal slot: metric symbol, comparator, thresholds
 *   2. SIGNAL_LOGIC parsed into a LogicExpr (nil on error)
 *   3. PRIORITY parsed with integer-prefix semantics (fallback 999)
 *
 * Degradation order per signal matches evaluation order: empty metric, then
 * unknown metric, then comparator and threshold problems. The first problem
 * found decides the signal's diagnostic.
 */

// CompiledSignal is a pre-processed signal slot.
type CompiledSignal struct {
	Slot        int // 1-based
	Metric      Metric
	Comparator  Comparator
	Low         float64
	High        float64
	FeatureType string

	// Problem is the first reason this signal cannot be evaluated, if any.
	// Metric-independent problems are known at compile time.
	Problem *types.Diagnostic
}

// CompiledRule is fully pre-processed and ready for evaluation.
type CompiledRule struct {
	Rule     types.Rule
	Signals  [types.MaxSignals]CompiledSignal
	Logic    *LogicExpr // nil when SIGNAL_LOGIC is empty or invalid
	Priority int

	// Diagnostics holds rule-level problems (logic, priority).
	Diagnostics []types.Diagnostic
}

// Compile pre-processes a rule for evaluation. The rule is copied, never mutated.
func Compile(rule types.Rule) *CompiledRule {
	compiled := &CompiledRule{Rule: rule}

	for i := range rule.Signals {
		compiled.Signals[i] = CompileSignal(i+1, rule.Signals[i])
	}

	logic, err := ParseLogic(rule.SignalLogic)
	switch {
	case errors.Is(err, types.ErrEmptyLogic):
		compiled.Diagnostics = append(compiled.Diagnostics, types.Diagnostic{
			Reason: types.ReasonEmptyLogic,
			Detail: "SIGNAL_LOGIC is empty",
		})
	case err != nil:
		compiled.Diagnostics = append(compiled.Diagnostics, types.Diagnostic{
			Reason: types.ReasonInvalidLogic,
			Detail: err.Error(),
		})
	default:
		compiled.Logic = logic
	}

	priority, ok := ParsePriority(rule.Priority)
	compiled.Priority = priority
	if !ok && strings.TrimSpace(rule.Priority) != "" {
		compiled.Diagnostics = append(compiled.Diagnostics, types.Diagnostic{
			Reason: types.ReasonInvalidPriority,
			Detail: fmt.Sprintf("PRIORITY %q, using %d", rule.Priority, types.DefaultPriority),
		})
	}

	return compiled
}

// Problems returns the metric-independent diagnostics of a rule: signal
// problems in slot order, then rule-level problems. Unused slots (empty
// metric) are not problems.
func (c *CompiledRule) Problems() []types.Diagnostic {
	var out []types.Diagnostic
	for _, cs := range c.Signals {
		if cs.Problem != nil && cs.Problem.Reason != types.ReasonEmptyMetric {
			out = append(out, *cs.Problem)
		}
	}
	return append(out, c.Diagnostics...)
}

// CompileAll compiles rules preserving input order.
func CompileAll(rules []types.Rule) []*CompiledRule {
	compiled := make([]*CompiledRule, 0, len(rules))
	for _, r := range rules {
		compiled = append(compiled, Compile(r))
	}
	return compiled
}

// CompileSignal pre-processes one signal slot (1-based).
func CompileSignal(slot int, spec types.SignalSpec) CompiledSignal {
	cs := CompiledSignal{
		Slot:        slot,
		Metric:      ParseMetric(spec.MetricName),
		Comparator:  ParseComparator(spec.Comparator),
		FeatureType: spec.FeatureType,
	}

	if strings.TrimSpace(spec.MetricName) == "" {
		cs.Problem = signalProblem(slot, types.ReasonEmptyMetric, "metric name is empty")
		return cs
	}
	if cs.Metric == MetricUnknown {
		cs.Problem = signalProblem(slot, types.ReasonUnknownMetric, fmt.Sprintf("metric %q is not supported", spec.MetricName))
		return cs
	}
	if cs.Comparator == CmpUnknown {
		cs.Problem = signalProblem(slot, types.ReasonUnknownComparator, fmt.Sprintf("comparator %q", spec.Comparator))
		return cs
	}

	low, lowState := parseThreshold(spec.ThresholdLow)
	cs.Low = low
	if p := thresholdProblem(slot, "THRESHOLD_LOW", spec.ThresholdLow, lowState); p != nil {
		cs.Problem = p
		return cs
	}

	if cs.Comparator.NeedsHigh() {
		high, highState := parseThreshold(spec.ThresholdHigh)
		cs.High = high
		if p := thresholdProblem(slot, "THRESHOLD_HIGH", spec.ThresholdHigh, highState); p != nil {
			cs.Problem = p
			return cs
		}
	}

	return cs
}

func thresholdProblem(slot int, column, cell string, state thresholdState) *types.Diagnostic {
	switch state {
	case thresholdMissing:
		return signalProblem(slot, types.ReasonMissingThreshold, column+" is empty")
	case thresholdInvalid:
		return signalProblem(slot, types.ReasonInvalidThreshold, fmt.Sprintf("%s %q is not a number", column, cell))
	default:
		return nil
	}
}

func signalProblem(slot int, reason types.DiagnosticReason, detail string) *types.Diagnostic {
	return &types.Diagnostic{Signal: slot, Reason: reason, Detail: detail}
}

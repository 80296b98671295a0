package rules

import (
	"context"
	"log/slog"

	"github.com/solatis/healthsignals/internal/types"
)

// Engine wraps the pure matcher with diagnostic logging for the service layer.
// Safe for concurrent use; it holds no per-evaluation state.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a rules engine. A nil logger discards diagnostics.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// MatchReport summarizes one evaluation pass.
type MatchReport struct {
	Results       []types.RuleEvaluationResult
	Evaluated     int
	Indeterminate int // indeterminate signals in non-empty slots
}

// Match evaluates rules and logs each diagnostic at debug level, and invalid
// logic at warn level.
func (e *Engine) Match(ctx context.Context, rules []types.Rule, m types.HealthMetrics) MatchReport {
	matched, all := evaluateAll(CompileAll(rules), m)

	report := MatchReport{Results: matched, Evaluated: len(all)}
	for _, r := range all {
		for _, d := range r.Diagnostics {
			if d.Reason == types.ReasonEmptyMetric {
				continue
			}
			if d.Signal > 0 && r.Signals.At(d.Signal).IsIndeterminate() {
				report.Indeterminate++
			}

			level := slog.LevelDebug
			if d.Reason == types.ReasonInvalidLogic || d.Reason == types.ReasonUnknownComparator {
				level = slog.LevelWarn
			}
			e.logger.Log(ctx, level, "rule diagnostic",
				"rule_id", r.RuleID,
				"signal", d.Signal,
				"reason", string(d.Reason),
				"detail", d.Detail)
		}
	}

	e.logger.Debug("rules evaluated",
		"evaluated", report.Evaluated,
		"matched", len(report.Results),
		"indeterminate_signals", report.Indeterminate)

	return report
}

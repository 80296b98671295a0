// internal/types/results.go
package types

import (
	"bytes"
	"fmt"
)

/*
 * Evaluation result types.
 *
 * SignalResult is tri-state. Indeterminate ("could not evaluate") is the zero
 * value and serializes as JSON null, so an unused or broken signal is visibly
 * distinct from a signal that evaluated to false.
 *
 * RuleEvaluationResult carries guidance pointers that are non-nil if and only
 * if Matched is true. Diagnostics explain every Indeterminate signal and any
 * logic/priority fallback; they are data, not log lines.
 */

// SignalResult is the outcome of evaluating one signal.
type SignalResult int8

const (
	// Indeterminate means the signal could not be evaluated.
	Indeterminate SignalResult = iota
	// False means the comparison was evaluated and did not hold.
	False
	// True means the comparison held.
	True
)

// ResultOf converts a bool to False or True.
func ResultOf(b bool) SignalResult {
	if b {
		return True
	}
	return False
}

// Bool reports the value used by the logic combiner; Indeterminate counts as false.
func (r SignalResult) Bool() bool {
	return r == True
}

// IsIndeterminate reports whether the signal could not be evaluated.
func (r SignalResult) IsIndeterminate() bool {
	return r == Indeterminate
}

func (r SignalResult) String() string {
	switch r {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "null"
	}
}

// MarshalJSON encodes Indeterminate as null.
func (r SignalResult) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalJSON accepts null, false and true.
func (r *SignalResult) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "null":
		*r = Indeterminate
	case "false":
		*r = False
	case "true":
		*r = True
	default:
		return fmt.Errorf("invalid signal result %q", data)
	}
	return nil
}

// Signals holds the three per-slot results of a rule evaluation.
type Signals struct {
	Sig1 SignalResult `json:"sig1"`
	Sig2 SignalResult `json:"sig2"`
	Sig3 SignalResult `json:"sig3"`
}

// At returns the result for slot n (1-based); out-of-range slots are Indeterminate.
func (s Signals) At(n int) SignalResult {
	switch n {
	case 1:
		return s.Sig1
	case 2:
		return s.Sig2
	case 3:
		return s.Sig3
	}
	return Indeterminate
}

// DiagnosticReason classifies why a signal or rule degraded.
type DiagnosticReason string

const (
	ReasonEmptyMetric       DiagnosticReason = "empty_metric"
	ReasonUnknownMetric     DiagnosticReason = "unknown_metric"
	ReasonMissingThreshold  DiagnosticReason = "missing_threshold"
	ReasonInvalidThreshold  DiagnosticReason = "invalid_threshold"
	ReasonUnknownComparator DiagnosticReason = "unknown_comparator"
	ReasonEmptyLogic        DiagnosticReason = "empty_logic"
	ReasonInvalidLogic      DiagnosticReason = "invalid_logic"
	ReasonInvalidPriority   DiagnosticReason = "invalid_priority"
)

// Diagnostic describes one degradation. Signal is the 1-based slot, or 0 for
// rule-level diagnostics (logic, priority).
type Diagnostic struct {
	Signal int              `json:"signal,omitempty"`
	Reason DiagnosticReason `json:"reason"`
	Detail string           `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Signal > 0 {
		return fmt.Sprintf("SIG%d: %s (%s)", d.Signal, d.Reason, d.Detail)
	}
	return fmt.Sprintf("%s (%s)", d.Reason, d.Detail)
}

// RuleEvaluationResult is the outcome of evaluating one rule against one
// metrics snapshot.
type RuleEvaluationResult struct {
	RuleID   string  `json:"ruleId"`
	Matched  bool    `json:"matched"`
	Signals  Signals `json:"signals"`
	Priority int     `json:"priority"`

	// Present only when Matched.
	TipText  *string `json:"tipText,omitempty"`
	WhyText  *string `json:"whyText,omitempty"`
	Category *string `json:"category,omitempty"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// HasGuidance reports whether all guidance fields are populated.
func (r RuleEvaluationResult) HasGuidance() bool {
	return r.TipText != nil && r.WhyText != nil && r.Category != nil
}

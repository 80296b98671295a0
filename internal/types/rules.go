// internal/types/rules.go
package types

import "fmt"

/*
 * Domain types for rule evaluation.
 *
 * Rule and SignalSpec hold the raw cell text of one rule-sheet row. Nothing is
 * parsed here: thresholds, comparators and priorities stay strings so that
 * internal/rules can distinguish "empty" from "unparsable" and report it.
 *
 * Key types:
 *   - Rule: one row of the rule catalog (identity, priority, guidance payload)
 *   - SignalSpec: one metric/comparator/threshold clause (SIG1..SIG3)
 *
 * Column names mirror the rule sheet header row. The SIG{n}_ANNA_METRIC_NAME
 * spelling is part of the sheet format and must not be normalized.
 */

// Rule sheet column names.
const (
	ColRuleID          = "RULE_ID"
	ColPriority        = "PRIORITY"
	ColStatus          = "STATUS"
	ColSignalLogic     = "SIGNAL_LOGIC"
	ColTipText         = "TIP_TEXT"
	ColTipCategory     = "TIP_CATEGORY"
	ColWhyTextTemplate = "WHY_TEXT_TEMPLATE"

	colMetricName    = "ANNA_METRIC_NAME"
	colComparator    = "COMPARATOR"
	colThresholdLow  = "THRESHOLD_LOW"
	colThresholdHigh = "THRESHOLD_HIGH"
	colFeatureType   = "FEATURE_TYPE"
	colRequired      = "REQUIRED"
)

// SignalColumns names the six per-signal columns for slot n (1-based).
type SignalColumns struct {
	MetricName    string
	Comparator    string
	ThresholdLow  string
	ThresholdHigh string
	FeatureType   string
	Required      string
}

// SignalColumnsFor returns the sheet column names for signal slot n (1..MaxSignals).
func SignalColumnsFor(n int) SignalColumns {
	prefix := fmt.Sprintf("SIG%d_", n)
	return SignalColumns{
		MetricName:    prefix + colMetricName,
		Comparator:    prefix + colComparator,
		ThresholdLow:  prefix + colThresholdLow,
		ThresholdHigh: prefix + colThresholdHigh,
		FeatureType:   prefix + colFeatureType,
		Required:      prefix + colRequired,
	}
}

// SignalSpec is a single metric + comparator + threshold clause.
// An empty MetricName marks an unused slot.
type SignalSpec struct {
	MetricName    string `json:"metricName"`
	Comparator    string `json:"comparator"`
	ThresholdLow  string `json:"thresholdLow"`
	ThresholdHigh string `json:"thresholdHigh"`
	FeatureType   string `json:"featureType"`
	Required      string `json:"required"` // carried, not enforced
}

// Rule is one immutable row of the rule catalog.
type Rule struct {
	RuleID          string                 `json:"ruleId"`
	Priority        string                 `json:"priority"` // raw cell; see rules.ParsePriority
	Status          string                 `json:"status"`
	Signals         [MaxSignals]SignalSpec `json:"signals"`
	SignalLogic     string                 `json:"signalLogic"`
	TipText         string                 `json:"tipText"`
	TipCategory     string                 `json:"tipCategory"`
	WhyTextTemplate string                 `json:"whyTextTemplate"`
}

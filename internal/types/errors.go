package types

import "errors"

// Sentinel errors for healthsignals operations.
var (
	// ErrEmptyLogic indicates a SIGNAL_LOGIC cell that is empty or whitespace.
	ErrEmptyLogic = errors.New("signal logic is empty")

	// ErrInvalidLogic indicates a SIGNAL_LOGIC cell that is not a boolean
	// expression over SIG1..SIG3.
	ErrInvalidLogic = errors.New("invalid signal logic")

	// ErrInvalidMetrics indicates a metrics snapshot outside accepted ranges.
	ErrInvalidMetrics = errors.New("invalid health metrics")

	// ErrEmptyGrid indicates a rule grid without a header row.
	ErrEmptyGrid = errors.New("rule grid has no header row")

	// ErrTooManyRules indicates a rule grid exceeds MaxRules data rows.
	ErrTooManyRules = errors.New("rule grid exceeds maximum rule count")

	// ErrTooManyColumns indicates a header row exceeds MaxGridColumns.
	ErrTooManyColumns = errors.New("rule grid exceeds maximum column count")

	// ErrNoRuleSource indicates an evaluation without inline rules when no
	// rule file is configured.
	ErrNoRuleSource = errors.New("no rule source configured")

	// ErrRuleSourceUnavailable indicates the configured rule file could not be
	// loaded.
	ErrRuleSourceUnavailable = errors.New("rule source unavailable")

	// ErrEvaluationNotFound indicates an unknown evaluation ID in the audit log.
	ErrEvaluationNotFound = errors.New("evaluation not found")
)

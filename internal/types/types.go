// Package types provides domain models shared across healthsignals components.
//
// Zero-dependency design: rules.go, metrics.go, results.go and errors.go use only
// the standard library so the engine can be embedded without pulling in the
// service stack. ID utilities in ids.go import uuid but are isolated.
//
// Wire-format agnostic: conversion from spreadsheet grids happens in
// internal/ruletable, conversion to gRPC/HTTP payloads in internal/core/server.
package types

// Limits enforced by the loader and the service layer.
const (
	// MaxSignals is the number of signal slots a rule carries (SIG1..SIG3).
	MaxSignals = 3

	// DefaultPriority ranks rules whose PRIORITY cell is empty or unparsable.
	// Larger numbers sort later, so such rules are shown last.
	DefaultPriority = 999

	// MaxRules caps the data rows accepted from one grid. A rule sheet is a
	// hand-maintained catalog; 10,000 rows keeps a single evaluation sub-second.
	MaxRules = 10000

	// MaxGridColumns caps the header width to bound per-row map construction.
	MaxGridColumns = 256
)

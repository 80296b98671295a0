// internal/rules/operators.go
package rules

import (
	"strings"
)

/*
 * Comparator dispatch.
 *
 * Seven comparator symbols, matched case-insensitively after trimming:
 *   - <=, >=, <, >: compare against the low threshold
 *   - =, ==: exact float equality against the low threshold
 *   - between: closed interval [low, high]
 *
 * Unrecognized symbols parse to CmpUnknown and never compare; the signal
 * evaluator turns them into an indeterminate result.
 *
 * Function-based switch rather than an interface per comparator: the
 * comparators differ by one expression each.
 */

// Comparator identifies a signal comparison.
type Comparator int

const (
	CmpUnknown Comparator = iota
	CmpLte
	CmpGte
	CmpLt
	CmpGt
	CmpEq
	CmpBetween
)

// ParseComparator maps a comparator cell to a Comparator.
func ParseComparator(s string) Comparator {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "<=":
		return CmpLte
	case ">=":
		return CmpGte
	case "<":
		return CmpLt
	case ">":
		return CmpGt
	case "=", "==":
		return CmpEq
	case "between":
		return CmpBetween
	default:
		return CmpUnknown
	}
}

func (c Comparator) String() string {
	switch c {
	case CmpLte:
		return "<="
	case CmpGte:
		return ">="
	case CmpLt:
		return "<"
	case CmpGt:
		return ">"
	case CmpEq:
		return "=="
	case CmpBetween:
		return "between"
	default:
		return "unknown"
	}
}

// NeedsHigh reports whether the comparator reads the high threshold.
func (c Comparator) NeedsHigh() bool {
	return c == CmpBetween
}

// Compare applies the comparator. high is ignored unless c is CmpBetween.
// CmpUnknown always returns false; callers check for it before comparing.
func Compare(c Comparator, value, low, high float64) bool {
	switch c {
	case CmpLte:
		return value <= low
	case CmpGte:
		return value >= low
	case CmpLt:
		return value < low
	case CmpGt:
		return value > low
	case CmpEq:
		return value == low
	case CmpBetween:
		return value >= low && value <= high
	default:
		return false
	}
}

// internal/rules/coercion.go
package rules

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

/*
 * String-to-number coercion for rule sheet cells.
 *
 * Rule sheets are hand-edited, so numeric cells arrive in several shapes:
 * locale decimal commas ("5,0"), trailing units ("120 min"), leading
 * whitespace. Coercion is prefix-based: the longest leading decimal literal
 * wins and trailing text is ignored. A cell with no numeric prefix is
 * "no value", never an error.
 *
 * Thresholds:
 *   - empty/whitespace -> thresholdMissing
 *   - first comma replaced with a period, then prefix-parsed
 *   - no numeric prefix -> thresholdInvalid
 *
 * Priorities use integer prefix parsing ("12abc" -> 12, "1.5" -> 1, "0x10" -> 16).
 */

// Longest decimal literal at the start of a string, after leading whitespace.
// Exponent is only consumed when followed by at least one digit.
var floatPrefix = regexp.MustCompile(`^[+-]?(?:Infinity|(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)`)

// Integer literal at the start of a string: decimal, or hex with a 0x prefix.
var intPrefix = regexp.MustCompile(`^[+-]?(?:0[xX][0-9a-fA-F]*|[0-9]+)`)

// maxSafeInt is the largest integer a float64 holds exactly. Larger
// priorities saturate here, so they still sort after the default.
const maxSafeInt = 1<<53 - 1

type thresholdState int

const (
	thresholdOK thresholdState = iota
	thresholdMissing
	thresholdInvalid
)

// ParseThreshold converts a threshold cell to a number.
// Returns false for empty, whitespace-only or non-numeric cells.
func ParseThreshold(s string) (float64, bool) {
	v, state := parseThreshold(s)
	return v, state == thresholdOK
}

func parseThreshold(s string) (float64, thresholdState) {
	if strings.TrimSpace(s) == "" {
		return 0, thresholdMissing
	}

	normalized := strings.Replace(s, ",", ".", 1)
	v, ok := parseFloatPrefix(normalized)
	if !ok {
		return 0, thresholdInvalid
	}
	return v, thresholdOK
}

// parseFloatPrefix parses the longest decimal prefix of s.
// Out-of-range literals saturate to ±Inf or 0 instead of failing.
func parseFloatPrefix(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	lit := floatPrefix.FindString(s)
	if lit == "" {
		return 0, false
	}

	switch strings.TrimLeft(lit, "+-") {
	case "Infinity":
		if strings.HasPrefix(lit, "-") {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}

	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return v, true
		}
		return 0, false
	}
	return v, true
}

// parseIntPrefix parses the longest integer prefix of s. A 0x prefix selects
// base 16; "0x" with no hex digits is no value.
func parseIntPrefix(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	lit := intPrefix.FindString(s)
	if lit == "" {
		return 0, false
	}

	neg := lit[0] == '-'
	digits := strings.TrimLeft(lit, "+-")
	base := 10
	if len(digits) >= 2 && (digits[1] == 'x' || digits[1] == 'X') {
		base = 16
		digits = digits[2:]
		if digits == "" {
			return 0, false
		}
	}

	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil || v > maxSafeInt {
		v = maxSafeInt
	}
	if neg {
		return -int(v), true
	}
	return int(v), true
}

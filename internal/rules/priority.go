package rules

import "github.com/solatis/healthsignals/internal/types"

// ParsePriority reads a PRIORITY cell using integer-prefix semantics
// (" 12abc" -> 12, "1.5" -> 1). Empty or non-numeric cells return
// types.DefaultPriority and false.
func ParsePriority(s string) (int, bool) {
	v, ok := parseIntPrefix(s)
	if !ok {
		return types.DefaultPriority, false
	}
	return v, true
}

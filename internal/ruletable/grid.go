// internal/ruletable/grid.go
package ruletable

import (
	"fmt"
	"strings"

	"github.com/solatis/healthsignals/internal/types"
)

/*
 * Grid to rule conversion.
 *
 * A rule sheet is a two-dimensional grid of strings. Row 0 is the header;
 * every following row is one rule whose cells are looked up by header name.
 *
 * Lookup rules:
 *   - header cells are trimmed and a leading UTF-8 BOM is dropped
 *   - duplicate header names: the rightmost column wins
 *   - a row shorter than the header yields "" for the missing cells
 *   - cells beyond the header width are ignored
 *   - unknown columns are ignored
 *
 * Cell values are never trimmed or parsed here. internal/rules owns
 * interpretation so that "empty" and "unparsable" stay distinguishable.
 */

const utf8BOM = "\ufeff"

// ParseGrid converts a header-plus-rows grid into rules, preserving row order.
// Returns ErrEmptyGrid when there is no header row, ErrTooManyColumns when the
// header is wider than MaxGridColumns, ErrTooManyRules when there are more than
// MaxRules data rows. A header-only grid yields zero rules.
func ParseGrid(grid [][]string) ([]types.Rule, error) {
	if len(grid) == 0 {
		return nil, types.ErrEmptyGrid
	}

	header := grid[0]
	if len(header) > types.MaxGridColumns {
		return nil, fmt.Errorf("%w: %d columns (max %d)", types.ErrTooManyColumns, len(header), types.MaxGridColumns)
	}

	rows := grid[1:]
	if len(rows) > types.MaxRules {
		return nil, fmt.Errorf("%w: %d rows (max %d)", types.ErrTooManyRules, len(rows), types.MaxRules)
	}

	index := headerIndex(header)

	rules := make([]types.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, ruleFromRow(index, row))
	}
	return rules, nil
}

// headerIndex maps normalized header names to column positions.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		index[strings.TrimSpace(name)] = i
	}
	return index
}

type rowReader struct {
	index map[string]int
	row   []string
}

// cell returns the value in column name, or "" when the column or cell is absent.
func (r rowReader) cell(name string) string {
	i, ok := r.index[name]
	if !ok || i >= len(r.row) {
		return ""
	}
	return r.row[i]
}

func ruleFromRow(index map[string]int, row []string) types.Rule {
	r := rowReader{index: index, row: row}

	rule := types.Rule{
		RuleID:          r.cell(types.ColRuleID),
		Priority:        r.cell(types.ColPriority),
		Status:          r.cell(types.ColStatus),
		SignalLogic:     r.cell(types.ColSignalLogic),
		TipText:         r.cell(types.ColTipText),
		TipCategory:     r.cell(types.ColTipCategory),
		WhyTextTemplate: r.cell(types.ColWhyTextTemplate),
	}

	for i := range rule.Signals {
		cols := types.SignalColumnsFor(i + 1)
		rule.Signals[i] = types.SignalSpec{
			MetricName:    r.cell(cols.MetricName),
			Comparator:    r.cell(cols.Comparator),
			ThresholdLow:  r.cell(cols.ThresholdLow),
			ThresholdHigh: r.cell(cols.ThresholdHigh),
			FeatureType:   r.cell(cols.FeatureType),
			Required:      r.cell(cols.Required),
		}
	}

	return rule
}

// Header returns the canonical column order for a rule sheet.
func Header() []string {
	header := []string{types.ColRuleID, types.ColPriority, types.ColStatus}
	for n := 1; n <= types.MaxSignals; n++ {
		cols := types.SignalColumnsFor(n)
		header = append(header,
			cols.MetricName, cols.Comparator, cols.ThresholdLow,
			cols.ThresholdHigh, cols.FeatureType, cols.Required)
	}
	return append(header,
		types.ColSignalLogic, types.ColTipText, types.ColTipCategory, types.ColWhyTextTemplate)
}

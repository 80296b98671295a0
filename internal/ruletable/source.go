// internal/ruletable/source.go
package ruletable

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/solatis/healthsignals/internal/types"
)

/*
 * Rule sources.
 *
 * Rules are loaded fresh for every evaluation and discarded afterwards, so a
 * sheet edit takes effect on the next request without a reload signal.
 *
 * Sources:
 *   - GridSource: an in-memory grid (inline request rules, tests)
 *   - FileSource: a CSV export of the rule sheet, re-read on every Load
 *
 * CSV dialect: RFC 4180 with ragged rows allowed (FieldsPerRecord = -1) and
 * lazy quotes, matching what spreadsheet exports actually produce.
 */

// Source supplies the current rule catalog.
type Source interface {
	Load(ctx context.Context) ([]types.Rule, error)
}

// GridSource serves rules from a fixed grid.
type GridSource struct {
	Grid [][]string
}

// Load parses the grid.
func (s GridSource) Load(ctx context.Context) ([]types.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseGrid(s.Grid)
}

// FileSource reads a CSV rule sheet from disk on every Load.
type FileSource struct {
	Path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and parses the CSV file.
func (s *FileSource) Load(ctx context.Context) ([]types.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule sheet: %w", err)
	}
	defer f.Close()

	grid, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule sheet %s: %w", s.Path, err)
	}

	return ParseGrid(grid)
}

// ReadCSV reads a CSV rule sheet into a grid. Stops with ErrTooManyRules once
// the row count exceeds MaxRules plus the header.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	var grid [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(grid) > types.MaxRules {
			return nil, fmt.Errorf("%w: more than %d rows", types.ErrTooManyRules, types.MaxRules)
		}
		grid = append(grid, record)
	}

	if len(grid) == 0 {
		return nil, types.ErrEmptyGrid
	}
	return grid, nil
}

// WriteCSV writes rules as a CSV rule sheet with the canonical header.
func WriteCSV(w io.Writer, rules []types.Rule) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header()); err != nil {
		return err
	}

	for _, rule := range rules {
		row := []string{rule.RuleID, rule.Priority, rule.Status}
		for _, sig := range rule.Signals {
			row = append(row, sig.MetricName, sig.Comparator, sig.ThresholdLow,
				sig.ThresholdHigh, sig.FeatureType, sig.Required)
		}
		row = append(row, rule.SignalLogic, rule.TipText, rule.TipCategory, rule.WhyTextTemplate)
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

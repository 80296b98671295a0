package ruletable

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/healthsignals/internal/types"
)

func TestParseGrid(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{"RULE_ID", "PRIORITY", "SIG1_ANNA_METRIC_NAME", "SIG1_COMPARATOR", "SIG1_THRESHOLD_LOW", "SIGNAL_LOGIC", "TIP_TEXT"},
		{"R-1", "2", "hrv_sdnn_z", "<=", "-1", "SIG1", "Rest"},
		{"R-2", "", "resting_hr_z"},
	}

	rules, err := ParseGrid(grid)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "R-1", rules[0].RuleID)
	assert.Equal(t, "2", rules[0].Priority)
	assert.Equal(t, "hrv_sdnn_z", rules[0].Signals[0].MetricName)
	assert.Equal(t, "<=", rules[0].Signals[0].Comparator)
	assert.Equal(t, "-1", rules[0].Signals[0].ThresholdLow)
	assert.Equal(t, "SIG1", rules[0].SignalLogic)
	assert.Equal(t, "Rest", rules[0].TipText)
	assert.Empty(t, rules[0].TipCategory, "absent column defaults to empty")

	assert.Equal(t, "resting_hr_z", rules[1].Signals[0].MetricName)
	assert.Empty(t, rules[1].Signals[0].Comparator, "short row defaults to empty")
	assert.Empty(t, rules[1].SignalLogic)
}

func TestParseGrid_HeaderNormalization(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{"\ufeffRULE_ID", " PRIORITY ", "TIP_TEXT", "TIP_TEXT"},
		{"R-1", "5", "first", "second", "overflow"},
	}

	rules, err := ParseGrid(grid)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	assert.Equal(t, "R-1", rules[0].RuleID)
	assert.Equal(t, "5", rules[0].Priority)
	assert.Equal(t, "second", rules[0].TipText, "rightmost duplicate column wins")
}

func TestParseGrid_CellsNotTrimmed(t *testing.T) {
	t.Parallel()

	rules, err := ParseGrid([][]string{
		{"RULE_ID", "SIG1_ANNA_METRIC_NAME"},
		{" R-1 ", " hrv_sdnn_z"},
	})
	require.NoError(t, err)
	assert.Equal(t, " R-1 ", rules[0].RuleID)
	assert.Equal(t, " hrv_sdnn_z", rules[0].Signals[0].MetricName)
}

func TestParseGrid_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		grid    [][]string
		wantErr error
	}{
		{name: "nil grid", grid: nil, wantErr: types.ErrEmptyGrid},
		{name: "empty grid", grid: [][]string{}, wantErr: types.ErrEmptyGrid},
		{name: "too many columns", grid: [][]string{make([]string, types.MaxGridColumns+1)}, wantErr: types.ErrTooManyColumns},
		{name: "too many rows", grid: make([][]string, types.MaxRules+2), wantErr: types.ErrTooManyRules},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseGrid(tt.grid)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseGrid_HeaderOnly(t *testing.T) {
	t.Parallel()

	rules, err := ParseGrid([][]string{Header()})
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestHeader(t *testing.T) {
	t.Parallel()

	header := Header()
	assert.Len(t, header, 3+6*types.MaxSignals+4)
	assert.Equal(t, "RULE_ID", header[0])
	assert.Contains(t, header, "SIG2_ANNA_METRIC_NAME")
	assert.Contains(t, header, "SIG3_REQUIRED")
	assert.Equal(t, "WHY_TEXT_TEMPLATE", header[len(header)-1])
}

const sheetCSV = `RULE_ID,PRIORITY,STATUS,SIG1_ANNA_METRIC_NAME,SIG1_COMPARATOR,SIG1_THRESHOLD_LOW,SIG1_THRESHOLD_HIGH,SIG1_FEATURE_TYPE,SIGNAL_LOGIC,TIP_TEXT,TIP_CATEGORY,WHY_TEXT_TEMPLATE
R-FRAG,1,active,sleep_fragmentation_index_z,between,"5,0","10,0",raw,SIG1,"Keep the bedroom dark, cool and quiet",sleep,Fragmented sleep
R-SHORT,2,draft,sleep_total_mins_z
`

func TestReadCSV(t *testing.T) {
	t.Parallel()

	grid, err := ReadCSV(strings.NewReader(sheetCSV))
	require.NoError(t, err)
	require.Len(t, grid, 3)
	assert.Equal(t, "5,0", grid[1][5])
	assert.Equal(t, "Keep the bedroom dark, cool and quiet", grid[1][9])
	assert.Len(t, grid[2], 4, "ragged rows are kept as-is")
}

func TestReadCSV_Empty(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader(""))
	require.ErrorIs(t, err, types.ErrEmptyGrid)
}

func TestFileSource_ReloadsOnEveryLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.csv")
	require.NoError(t, os.WriteFile(path, []byte(sheetCSV), 0o600))

	src := NewFileSource(path)
	rules, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "5,0", rules[0].Signals[0].ThresholdLow)

	require.NoError(t, os.WriteFile(path, []byte("RULE_ID\nR-NEW\n"), 0o600))
	rules, err = src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "R-NEW", rules[0].RuleID)
}

func TestFileSource_Missing(t *testing.T) {
	t.Parallel()

	src := NewFileSource(filepath.Join(t.TempDir(), "absent.csv"))
	_, err := src.Load(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestGridSource_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GridSource{Grid: [][]string{Header()}}.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriteCSV_ReadsBack(t *testing.T) {
	t.Parallel()

	rule := types.Rule{
		RuleID:      "R-1",
		Priority:    "4",
		Status:      "active",
		SignalLogic: "SIG1 OR SIG3",
		TipText:     "Hydrate, then stretch",
	}
	rule.Signals[0] = types.SignalSpec{MetricName: "hrv_sdnn_z", Comparator: "<", ThresholdLow: "-1,5"}
	rule.Signals[2] = types.SignalSpec{MetricName: "resting_hr_z", Comparator: ">", ThresholdLow: "1", Required: "TRUE"}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []types.Rule{rule}))

	grid, err := ReadCSV(&buf)
	require.NoError(t, err)
	rules, err := ParseGrid(grid)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule, rules[0])
}

func TestMatchGrid(t *testing.T) {
	t.Parallel()

	grid := [][]string{
		{"RULE_ID", "PRIORITY", "SIG1_ANNA_METRIC_NAME", "SIG1_COMPARATOR", "SIG1_THRESHOLD_LOW", "SIG1_FEATURE_TYPE", "SIGNAL_LOGIC", "TIP_TEXT"},
		{"R-LATE", "", "", "", "", "", "true", "Always"},
		{"R-HRV", "3", "hrv_sdnn_z", "<=", "-1", "z_score_vs_baseline", "SIG1", "Rest"},
		{"R-NEVER", "1", "hrv_sdnn_z", ">", "0", "z_score_vs_baseline", "SIG1", "Push"},
	}
	m := types.HealthMetrics{HRVYesterday: 30, HRVAvgLast28Days: 50, Age: 30}

	results, err := MatchGrid(grid, m)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "R-HRV", results[0].RuleID)
	assert.Equal(t, "R-LATE", results[1].RuleID)

	_, err = MatchGrid(nil, m)
	require.ErrorIs(t, err, types.ErrEmptyGrid)
}

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/healthsignals/internal/core/config"
	"github.com/solatis/healthsignals/internal/core/db"
	"github.com/solatis/healthsignals/internal/core/metrics"
	"github.com/solatis/healthsignals/internal/rules"
	"github.com/solatis/healthsignals/internal/ruletable"
	"github.com/solatis/healthsignals/internal/types"
)

var testHeader = []string{
	"RULE_ID", "PRIORITY", "STATUS",
	"SIG1_ANNA_METRIC_NAME", "SIG1_COMPARATOR", "SIG1_THRESHOLD_LOW", "SIG1_FEATURE_TYPE",
	"SIGNAL_LOGIC", "TIP_TEXT", "TIP_CATEGORY", "WHY_TEXT_TEMPLATE",
}

// testGrid matches R-LOW-HRV and R-ANY for testMetrics; R-HIGH-HR does not match.
func testGrid() [][]string {
	return [][]string{
		testHeader,
		{"R-ANY", "", "active", "", "", "", "", "true", "Drink water", "general", "Always"},
		{"R-LOW-HRV", "1", "active", "hrv_sdnn_z", "<=", "-1", "z_score_vs_baseline", "SIG1", "Rest today", "recovery", "HRV is low"},
		{"R-HIGH-HR", "2", "draft", "resting_hr_z", ">=", "2", "z_score_vs_baseline", "SIG1", "Slow down", "recovery", "HR is high"},
	}
}

func testMetrics() types.HealthMetrics {
	return types.HealthMetrics{
		SleepTotalMinsYesterday:         360,
		SleepTotalMinsLast28Days:        420,
		HRVYesterday:                    30,
		HRVAvgLast28Days:                50,
		RestingHRYesterday:              66,
		RestingHRAvgLast28Days:          60,
		SleepFragmentationYesterday:     7,
		SleepFragmentationAvgLast28Days: 5,
		Age:                             34,
	}
}

type fakeAudit struct {
	mu      sync.Mutex
	records []db.EvaluationRecord
	err     error
}

func (f *fakeAudit) Record(_ context.Context, rec db.EvaluationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAudit) Get(_ context.Context, id types.EvaluationID) (*db.EvaluationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			return &f.records[i], nil
		}
	}
	return nil, types.ErrEvaluationNotFound
}

func newTestService(t *testing.T, cfg *config.ServiceConfig, opts ...Option) *EvaluationService {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultServiceConfig()
		cfg.DataDir = t.TempDir()
	}
	svc, err := NewEvaluationService(rules.NewEngine(nil), cfg, opts...)
	require.NoError(t, err)
	return svc
}

func resultIDs(results []types.RuleEvaluationResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.RuleID)
	}
	return ids
}

func TestNewEvaluationService_Validation(t *testing.T) {
	_, err := NewEvaluationService(nil, config.DefaultServiceConfig())
	require.Error(t, err)

	_, err = NewEvaluationService(rules.NewEngine(nil), nil)
	require.Error(t, err)
}

func TestEvaluate_InlineRules(t *testing.T) {
	audit := &fakeAudit{}
	m := metrics.New()
	svc := newTestService(t, nil, WithAuditStore(audit), WithMetrics(m))

	resp, err := svc.Evaluate(context.Background(), EvaluateRequest{Rules: testGrid(), Metrics: testMetrics()})
	require.NoError(t, err)

	assert.Equal(t, []string{"R-LOW-HRV", "R-ANY"}, resultIDs(resp.Results))
	assert.Equal(t, 3, resp.EvaluatedRules)
	assert.NotEmpty(t, resp.EvaluationID)
	assert.False(t, resp.EvaluationTime.IsZero())

	require.NotNil(t, resp.Results[0].TipText)
	assert.Equal(t, "Rest today", *resp.Results[0].TipText)
	assert.Equal(t, 999, resp.Results[1].Priority)

	require.Len(t, audit.records, 1)
	assert.Equal(t, resp.EvaluationID, audit.records[0].ID)
	assert.Equal(t, SourceInline, audit.records[0].Source)
	assert.Equal(t, 2, audit.records[0].MatchedCount)

	expected := `
# HELP healthsignals_evaluations_total Completed rule set evaluations
# TYPE healthsignals_evaluations_total counter
healthsignals_evaluations_total{source="inline"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "healthsignals_evaluations_total"))
}

func TestEvaluate_FileSourceReloadsEachRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.csv")
	writeGrid(t, path, testGrid()[:2])

	cfg := config.DefaultServiceConfig()
	cfg.DataDir = t.TempDir()
	cfg.RulesPath = path
	svc := newTestService(t, cfg)

	resp, err := svc.Evaluate(context.Background(), EvaluateRequest{Metrics: testMetrics()})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-ANY"}, resultIDs(resp.Results))

	writeGrid(t, path, testGrid())

	resp, err = svc.Evaluate(context.Background(), EvaluateRequest{Metrics: testMetrics()})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-LOW-HRV", "R-ANY"}, resultIDs(resp.Results))
}

func TestEvaluate_InlineRulesOverrideFile(t *testing.T) {
	cfg := config.DefaultServiceConfig()
	cfg.DataDir = t.TempDir()
	cfg.RulesPath = filepath.Join(t.TempDir(), "missing.csv")
	svc := newTestService(t, cfg)

	resp, err := svc.Evaluate(context.Background(), EvaluateRequest{Rules: testGrid()[:2], Metrics: testMetrics()})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-ANY"}, resultIDs(resp.Results))
}

func TestEvaluate_Errors(t *testing.T) {
	badMetrics := testMetrics()
	badMetrics.Age = 0

	tests := []struct {
		name     string
		cfg      func(*config.ServiceConfig)
		req      EvaluateRequest
		wantErr  error
		wantKind ErrorKind
	}{
		{
			name:     "invalid metrics",
			req:      EvaluateRequest{Rules: testGrid(), Metrics: badMetrics},
			wantErr:  types.ErrInvalidMetrics,
			wantKind: KindInvalid,
		},
		{
			name:     "no rule source",
			req:      EvaluateRequest{Metrics: testMetrics()},
			wantErr:  types.ErrNoRuleSource,
			wantKind: KindInvalid,
		},
		{
			name:     "missing rule file",
			cfg:      func(c *config.ServiceConfig) { c.RulesPath = "/nonexistent/rules.csv" },
			req:      EvaluateRequest{Metrics: testMetrics()},
			wantErr:  types.ErrRuleSourceUnavailable,
			wantKind: KindUnavailable,
		},
		{
			name:     "too many rules for config",
			cfg:      func(c *config.ServiceConfig) { c.MaxRules = 2 },
			req:      EvaluateRequest{Rules: testGrid(), Metrics: testMetrics()},
			wantErr:  types.ErrTooManyRules,
			wantKind: KindInvalid,
		},
		{
			name:     "inline header too wide",
			req:      EvaluateRequest{Rules: [][]string{make([]string, types.MaxGridColumns+1)}, Metrics: testMetrics()},
			wantErr:  types.ErrTooManyColumns,
			wantKind: KindInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultServiceConfig()
			cfg.DataDir = t.TempDir()
			if tt.cfg != nil {
				tt.cfg(cfg)
			}
			audit := &fakeAudit{}
			svc := newTestService(t, cfg, WithAuditStore(audit))

			_, err := svc.Evaluate(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Empty(t, audit.records, "rejected requests are not audited")
		})
	}
}

func TestEvaluate_OversizedRuleFileIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.csv")
	writeGrid(t, path, testGrid())

	cfg := config.DefaultServiceConfig()
	cfg.DataDir = t.TempDir()
	cfg.RulesPath = path
	cfg.MaxRules = 2
	m := metrics.New()
	svc := newTestService(t, cfg, WithMetrics(m))

	_, err := svc.Evaluate(context.Background(), EvaluateRequest{Metrics: testMetrics()})
	require.ErrorIs(t, err, types.ErrTooManyRules)
	require.ErrorIs(t, err, types.ErrRuleSourceUnavailable)
	assert.Equal(t, KindUnavailable, KindOf(err))

	expected := `
# HELP healthsignals_evaluation_failures_total Evaluation requests rejected before matching
# TYPE healthsignals_evaluation_failures_total counter
healthsignals_evaluation_failures_total{reason="rule_source"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "healthsignals_evaluation_failures_total"))
}

func TestEvaluate_CanceledContext(t *testing.T) {
	svc := newTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Evaluate(ctx, EvaluateRequest{Rules: testGrid(), Metrics: testMetrics()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindCanceled, KindOf(err))
}

func TestEvaluate_StatusFilter(t *testing.T) {
	grid := testGrid()
	grid[3][4] = "<=" // R-HIGH-HR now matches, but it is a draft

	cfg := config.DefaultServiceConfig()
	cfg.DataDir = t.TempDir()
	svc := newTestService(t, cfg)

	resp, err := svc.Evaluate(context.Background(), EvaluateRequest{Rules: grid, Metrics: testMetrics()})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-LOW-HRV", "R-HIGH-HR", "R-ANY"}, resultIDs(resp.Results))

	cfg.ActiveStatuses = []string{"active"}
	resp, err = svc.Evaluate(context.Background(), EvaluateRequest{Rules: grid, Metrics: testMetrics()})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-LOW-HRV", "R-ANY"}, resultIDs(resp.Results))
	assert.Equal(t, 2, resp.EvaluatedRules)
}

func TestEvaluate_AuditFailureDoesNotFailRequest(t *testing.T) {
	var logs bytes.Buffer
	m := metrics.New()
	audit := &fakeAudit{err: errors.New("disk full")}
	svc := newTestService(t, nil,
		WithAuditStore(audit),
		WithMetrics(m),
		WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))

	resp, err := svc.Evaluate(context.Background(), EvaluateRequest{Rules: testGrid(), Metrics: testMetrics()})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Contains(t, logs.String(), "audit record failed")

	expected := `
# HELP healthsignals_audit_failures_total Evaluations whose audit record could not be written
# TYPE healthsignals_audit_failures_total counter
healthsignals_audit_failures_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "healthsignals_audit_failures_total"))
}

func TestEvaluate_AppendsJSONL(t *testing.T) {
	cfg := config.DefaultServiceConfig()
	cfg.DataDir = t.TempDir()
	svc := newTestService(t, cfg)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Evaluate(context.Background(), EvaluateRequest{Rules: testGrid(), Metrics: testMetrics()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	files, err := filepath.Glob(filepath.Join(cfg.DataDir, "evaluations", "*.jsonl"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	lines := 0
	for _, name := range files {
		f, err := os.Open(name)
		require.NoError(t, err)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var entry jsonlEntry
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
			assert.Equal(t, SourceInline, entry.Source)
			assert.Equal(t, []string{"R-LOW-HRV", "R-ANY"}, entry.Matched)
			lines++
		}
		f.Close()
	}
	assert.Equal(t, n, lines)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(t, nil)
	_, err := svc.Lookup(ctx, types.NewEvaluationID())
	require.ErrorIs(t, err, types.ErrEvaluationNotFound)

	audit := &fakeAudit{}
	svc = newTestService(t, nil, WithAuditStore(audit))
	resp, err := svc.Evaluate(ctx, EvaluateRequest{Rules: testGrid(), Metrics: testMetrics()})
	require.NoError(t, err)

	rec, err := svc.Lookup(ctx, resp.EvaluationID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.MatchedCount)
}

func writeGrid(t *testing.T, path string, grid [][]string) {
	t.Helper()
	parsed, err := ruletable.ParseGrid(grid)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ruletable.WriteCSV(&buf, parsed))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

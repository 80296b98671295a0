package rules

import (
	"testing"

	"github.com/solatis/healthsignals/internal/types"
)

func TestCompile_SimpleRule(t *testing.T) {
	rule := types.Rule{
		RuleID:   "R-001",
		Priority: "3",
		Signals: [types.MaxSignals]types.SignalSpec{
			{MetricName: "hrv_sdnn_z", Comparator: " <= ", ThresholdLow: "-1", FeatureType: FeatureZScoreVsBaseline},
		},
		SignalLogic: "SIG1",
	}

	compiled := Compile(rule)

	if compiled.Priority != 3 {
		t.Errorf("Priority = %d, want 3", compiled.Priority)
	}
	if compiled.Logic == nil {
		t.Fatal("Logic = nil, want parsed expression")
	}
	if len(compiled.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %v, want none", compiled.Diagnostics)
	}

	sig := compiled.Signals[0]
	if sig.Metric != MetricHRVSDNN {
		t.Errorf("Metric = %v, want hrv_sdnn_z", sig.Metric)
	}
	if sig.Comparator != CmpLte {
		t.Errorf("Comparator = %v, want <=", sig.Comparator)
	}
	if sig.Low != -1 {
		t.Errorf("Low = %v, want -1", sig.Low)
	}
	if sig.Problem != nil {
		t.Errorf("Problem = %v, want nil", sig.Problem)
	}

	for i := 1; i < types.MaxSignals; i++ {
		p := compiled.Signals[i].Problem
		if p == nil || p.Reason != types.ReasonEmptyMetric {
			t.Errorf("Signals[%d].Problem = %v, want empty_metric", i, p)
		}
	}
}

func TestCompile_DoesNotMutateRule(t *testing.T) {
	rule := types.Rule{
		RuleID:      "R-002",
		Priority:    " 7 ",
		SignalLogic: "SIG1 and SIG2",
		Signals: [types.MaxSignals]types.SignalSpec{
			{MetricName: "resting_hr_z", Comparator: "BETWEEN", ThresholdLow: "1,5", ThresholdHigh: "3,0"},
		},
	}
	before := rule

	_ = Compile(rule)

	if rule != before {
		t.Errorf("Compile() mutated rule: got %+v, want %+v", rule, before)
	}
}

func TestCompileSignal_Problems(t *testing.T) {
	tests := []struct {
		name       string
		spec       types.SignalSpec
		wantReason types.DiagnosticReason
	}{
		{
			name:       "empty metric",
			spec:       types.SignalSpec{MetricName: "  ", Comparator: "<", ThresholdLow: "1"},
			wantReason: types.ReasonEmptyMetric,
		},
		{
			name:       "unknown metric",
			spec:       types.SignalSpec{MetricName: "steps_z", Comparator: "<", ThresholdLow: "1"},
			wantReason: types.ReasonUnknownMetric,
		},
		{
			name:       "padded metric is unknown",
			spec:       types.SignalSpec{MetricName: "hrv_sdnn_z ", Comparator: "<", ThresholdLow: "1"},
			wantReason: types.ReasonUnknownMetric,
		},
		{
			name:       "unknown comparator",
			spec:       types.SignalSpec{MetricName: "hrv_sdnn_z", Comparator: "!=", ThresholdLow: "1"},
			wantReason: types.ReasonUnknownComparator,
		},
		{
			name:       "missing low",
			spec:       types.SignalSpec{MetricName: "hrv_sdnn_z", Comparator: ">="},
			wantReason: types.ReasonMissingThreshold,
		},
		{
			name:       "invalid low",
			spec:       types.SignalSpec{MetricName: "hrv_sdnn_z", Comparator: "==", ThresholdLow: "high"},
			wantReason: types.ReasonInvalidThreshold,
		},
		{
			name:       "between missing high",
			spec:       types.SignalSpec{MetricName: "hrv_sdnn_z", Comparator: "between", ThresholdLow: "1"},
			wantReason: types.ReasonMissingThreshold,
		},
		{
			name:       "between missing low",
			spec:       types.SignalSpec{MetricName: "hrv_sdnn_z", Comparator: "between", ThresholdHigh: "5"},
			wantReason: types.ReasonMissingThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := CompileSignal(2, tt.spec)
			if cs.Problem == nil {
				t.Fatalf("Problem = nil, want %s", tt.wantReason)
			}
			if cs.Problem.Reason != tt.wantReason {
				t.Errorf("Problem.Reason = %s, want %s", cs.Problem.Reason, tt.wantReason)
			}
			if cs.Problem.Signal != 2 {
				t.Errorf("Problem.Signal = %d, want 2", cs.Problem.Signal)
			}
		})
	}
}

func TestCompile_RuleDiagnostics(t *testing.T) {
	tests := []struct {
		name       string
		priority   string
		logic      string
		wantReason []types.DiagnosticReason
		wantPrio   int
	}{
		{"clean", "1", "SIG1", nil, 1},
		{"empty priority is silent", "", "SIG1", nil, 999},
		{"invalid priority", "abc", "SIG1", []types.DiagnosticReason{types.ReasonInvalidPriority}, 999},
		{"empty logic", "2", " ", []types.DiagnosticReason{types.ReasonEmptyLogic}, 2},
		{"invalid logic and priority", "x", "SIG1 +", []types.DiagnosticReason{types.ReasonInvalidLogic, types.ReasonInvalidPriority}, 999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled := Compile(types.Rule{RuleID: "R", Priority: tt.priority, SignalLogic: tt.logic})
			if compiled.Priority != tt.wantPrio {
				t.Errorf("Priority = %d, want %d", compiled.Priority, tt.wantPrio)
			}
			if len(compiled.Diagnostics) != len(tt.wantReason) {
				t.Fatalf("Diagnostics = %v, want reasons %v", compiled.Diagnostics, tt.wantReason)
			}
			for i, d := range compiled.Diagnostics {
				if d.Reason != tt.wantReason[i] {
					t.Errorf("Diagnostics[%d].Reason = %s, want %s", i, d.Reason, tt.wantReason[i])
				}
			}
		})
	}
}

func TestCompiledRule_Problems(t *testing.T) {
	rule := types.Rule{
		RuleID:      "R",
		Priority:    "p1",
		SignalLogic: "SIG1 AND SIG3",
		Signals: [types.MaxSignals]types.SignalSpec{
			{MetricName: "steps_z", Comparator: "<=", ThresholdLow: "1"},
			{},
			{MetricName: SymbolHRVSDNN, Comparator: "<=", ThresholdLow: ""},
		},
	}

	got := Compile(rule).Problems()
	want := []types.DiagnosticReason{
		types.ReasonUnknownMetric,
		types.ReasonMissingThreshold,
		types.ReasonInvalidPriority,
	}
	if len(got) != len(want) {
		t.Fatalf("Problems() = %v, want reasons %v", got, want)
	}
	for i, d := range got {
		if d.Reason != want[i] {
			t.Errorf("Problems()[%d].Reason = %s, want %s", i, d.Reason, want[i])
		}
	}

	if p := Compile(types.Rule{SignalLogic: "SIG1", Priority: "1", Signals: [types.MaxSignals]types.SignalSpec{
		{MetricName: SymbolRestingHR, Comparator: ">", ThresholdLow: "1"},
	}}).Problems(); len(p) != 0 {
		t.Errorf("Problems() = %v, want none", p)
	}
}

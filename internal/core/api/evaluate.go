package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/solatis/healthsignals/internal/core/db"
	"github.com/solatis/healthsignals/internal/core/metrics"
	"github.com/solatis/healthsignals/internal/rules"
	"github.com/solatis/healthsignals/internal/ruletable"
	"github.com/solatis/healthsignals/internal/types"
)

// Rule source labels for logs, metrics and the audit log.
const (
	SourceInline = "inline"
	SourceFile   = "file"
)

// EvaluateRequest carries one metrics snapshot and, optionally, an inline
// rule grid. Without inline rules the configured rule file is used.
type EvaluateRequest struct {
	Rules   [][]string          `json:"rules,omitempty"`
	Metrics types.HealthMetrics `json:"metrics"`
}

// EvaluateResponse carries the ranked matches of one evaluation.
type EvaluateResponse struct {
	EvaluationID   types.EvaluationID           `json:"evaluationId"`
	Results        []types.RuleEvaluationResult `json:"results"`
	EvaluatedRules int                          `json:"evaluatedRules"`
	EvaluationTime time.Time                    `json:"evaluationTime"`
}

// jsonlEntry is one line of the daily evaluations file.
type jsonlEntry struct {
	EvaluationID   types.EvaluationID `json:"evaluationId"`
	EvaluationTime time.Time          `json:"evaluationTime"`
	Source         string             `json:"source"`
	EvaluatedRules int                `json:"evaluatedRules"`
	Matched        []string           `json:"matched"`
	Indeterminate  int                `json:"indeterminateSignals"`
	DurationMicros int64              `json:"durationUs"`
}

// Evaluate validates the metrics, loads the rule set, and returns the
// matched rules ranked by priority.
// Audit and JSONL output are best-effort: failures are logged, never returned.
func (s *EvaluationService) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
	start := time.Now()

	if err := req.Metrics.Validate(); err != nil {
		s.metrics.ObserveFailure(metrics.ReasonInvalidMetrics)
		return nil, err
	}

	ruleSet, source, err := s.loadRules(ctx, req.Rules)
	if err != nil {
		s.metrics.ObserveFailure(failureReason(err))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		s.metrics.ObserveFailure(metrics.ReasonCanceled)
		return nil, err
	}

	id := types.NewEvaluationID()
	report := s.engine.Match(ctx, ruleSet, req.Metrics)
	elapsed := time.Since(start)

	s.metrics.ObserveEvaluation(source, report.Evaluated, len(report.Results), report.Indeterminate, elapsed)
	s.logger.Info("evaluation completed",
		"evaluation_id", id,
		"source", source,
		"evaluated", report.Evaluated,
		"matched", len(report.Results),
		"duration", elapsed)

	rec := db.NewEvaluationRecord(id, source, report.Evaluated, report.Indeterminate, elapsed, report.Results)
	s.recordAudit(ctx, rec)
	s.appendJSONL(rec)

	return &EvaluateResponse{
		EvaluationID:   id,
		Results:        report.Results,
		EvaluatedRules: report.Evaluated,
		EvaluationTime: rec.CreatedAt,
	}, nil
}

// loadRules selects the rule source, enforces the configured rule limit and
// applies the status filter.
func (s *EvaluationService) loadRules(ctx context.Context, inline [][]string) ([]types.Rule, string, error) {
	var (
		ruleSet []types.Rule
		source  string
		err     error
	)

	switch {
	case len(inline) > 0:
		source = SourceInline
		ruleSet, err = ruletable.GridSource{Grid: inline}.Load(ctx)
		if err != nil {
			return nil, source, err
		}
	case s.source != nil:
		source = SourceFile
		ruleSet, err = s.source.Load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, source, err
			}
			return nil, source, fmt.Errorf("%w: %w", types.ErrRuleSourceUnavailable, err)
		}
	default:
		return nil, "", types.ErrNoRuleSource
	}

	if s.cfg.MaxRules > 0 && len(ruleSet) > s.cfg.MaxRules {
		err = fmt.Errorf("%w: %d rules, limit %d", types.ErrTooManyRules, len(ruleSet), s.cfg.MaxRules)
		// An oversized configured sheet is a server fault, not a bad request
		if source == SourceFile {
			err = fmt.Errorf("%w: %w", types.ErrRuleSourceUnavailable, err)
		}
		return nil, source, err
	}

	return rules.FilterByStatus(ruleSet, s.cfg.ActiveStatuses), source, nil
}

func (s *EvaluationService) recordAudit(ctx context.Context, rec db.EvaluationRecord) {
	if s.audit == nil {
		return
	}
	// Audit write must not be lost to a client disconnect after matching
	auditCtx := context.WithoutCancel(ctx)
	if err := s.audit.Record(auditCtx, rec); err != nil {
		s.metrics.AuditFailure()
		s.logger.Error("audit record failed", "evaluation_id", rec.ID, "error", err)
	}
}

// appendJSONL writes one summary line to DataDir/evaluations/YYYY-MM-DD.jsonl.
// JSONL output is a debugging aid, not authoritative.
func (s *EvaluationService) appendJSONL(rec db.EvaluationRecord) {
	if s.cfg.DataDir == "" {
		return
	}

	filename := filepath.Join(s.cfg.DataDir, "evaluations", rec.CreatedAt.Format("2006-01-02.jsonl"))
	mu := s.getJSONLMutex(filename)

	matched := make([]string, 0, len(rec.Matches))
	for _, m := range rec.Matches {
		matched = append(matched, m.RuleID)
	}

	mu.Lock()
	defer mu.Unlock()
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Warn("jsonl open failed", "file", filename, "error", err)
		return
	}
	defer f.Close()

	_ = json.NewEncoder(f).Encode(jsonlEntry{
		EvaluationID:   rec.ID,
		EvaluationTime: rec.CreatedAt,
		Source:         rec.Source,
		EvaluatedRules: rec.RuleCount,
		Matched:        matched,
		Indeterminate:  rec.IndeterminateCount,
		DurationMicros: rec.DurationMicros,
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ReasonCanceled
	case errors.Is(err, types.ErrRuleSourceUnavailable):
		return metrics.ReasonRuleSource
	case errors.Is(err, types.ErrTooManyRules):
		return metrics.ReasonTooManyRules
	default:
		return metrics.ReasonRuleSource
	}
}

// internal/core/db/audit.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/healthsignals/internal/types"
)

/*
 * Evaluation audit log.
 *
 * One evaluations row per request and one evaluation_matches row per matched
 * rule, in rank order. Only counts and rule identities are stored: no metric
 * values, no rule text, no guidance. This keeps the log free of health data.
 *
 * Writes are a single transaction so a reader never sees an evaluation
 * without its matches.
 */

// MaxListLimit caps ListRecent.
const MaxListLimit = 500

// EvaluationRecord is one audited evaluation.
type EvaluationRecord struct {
	ID                 types.EvaluationID `db:"evaluation_id" json:"evaluationId"`
	CreatedAt          time.Time          `db:"created_at" json:"createdAt"`
	Source             string             `db:"source" json:"source"`
	RuleCount          int                `db:"rule_count" json:"ruleCount"`
	MatchedCount       int                `db:"matched_count" json:"matchedCount"`
	IndeterminateCount int                `db:"indeterminate_count" json:"indeterminateCount"`
	DurationMicros     int64              `db:"duration_us" json:"durationUs"`
	Matches            []MatchRecord      `db:"-" json:"matches,omitempty"`
}

// MatchRecord is one matched rule within an audited evaluation.
type MatchRecord struct {
	Rank     int    `db:"match_rank" json:"rank"`
	RuleID   string `db:"rule_id" json:"ruleId"`
	Priority int    `db:"priority" json:"priority"`
	Category string `db:"category" json:"category"`
}

// NewEvaluationRecord builds an audit record from ranked results.
func NewEvaluationRecord(id types.EvaluationID, source string, ruleCount, indeterminate int, duration time.Duration, results []types.RuleEvaluationResult) EvaluationRecord {
	// created_at is the request time carried in the UUIDv7 ID
	createdAt := types.EvaluationIDTime(id)
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	rec := EvaluationRecord{
		ID:                 id,
		CreatedAt:          createdAt.UTC(),
		Source:             source,
		RuleCount:          ruleCount,
		MatchedCount:       len(results),
		IndeterminateCount: indeterminate,
		DurationMicros:     duration.Microseconds(),
		Matches:            make([]MatchRecord, 0, len(results)),
	}
	for i, r := range results {
		category := ""
		if r.Category != nil {
			category = *r.Category
		}
		rec.Matches = append(rec.Matches, MatchRecord{
			Rank:     i + 1,
			RuleID:   r.RuleID,
			Priority: r.Priority,
			Category: category,
		})
	}
	return rec
}

// AuditStore persists evaluation records.
type AuditStore struct {
	db *sqlx.DB
	q  *Queries
}

// NewAuditStore creates an AuditStore over an open, migrated database.
func NewAuditStore(db *sqlx.DB) (*AuditStore, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &AuditStore{db: db, q: q}, nil
}

// Record stores an evaluation and its matches atomically.
func (s *AuditStore) Record(ctx context.Context, rec EvaluationRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.q.ExecTx(ctx, tx, "insert-evaluation",
		rec.ID, rec.CreatedAt.UTC(), rec.Source, rec.RuleCount,
		rec.MatchedCount, rec.IndeterminateCount, rec.DurationMicros,
	); err != nil {
		return fmt.Errorf("failed to insert evaluation %s: %w", rec.ID, err)
	}

	for _, m := range rec.Matches {
		if _, err := s.q.ExecTx(ctx, tx, "insert-evaluation-match",
			rec.ID, m.Rank, m.RuleID, m.Priority, m.Category,
		); err != nil {
			return fmt.Errorf("failed to insert match %d for evaluation %s: %w", m.Rank, rec.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns one evaluation with its matches.
// Returns types.ErrEvaluationNotFound for unknown IDs.
func (s *AuditStore) Get(ctx context.Context, id types.EvaluationID) (*EvaluationRecord, error) {
	var rec EvaluationRecord
	if err := s.q.GetContext(ctx, "get-evaluation", &rec, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrEvaluationNotFound, id)
		}
		return nil, fmt.Errorf("failed to get evaluation %s: %w", id, err)
	}

	rec.Matches = []MatchRecord{}
	if err := s.q.SelectContext(ctx, "list-evaluation-matches", &rec.Matches, id); err != nil {
		return nil, fmt.Errorf("failed to list matches for evaluation %s: %w", id, err)
	}
	return &rec, nil
}

// ListRecent returns the newest evaluations first, without matches.
// limit is clamped to 1..MaxListLimit.
func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]EvaluationRecord, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	recs := []EvaluationRecord{}
	if err := s.q.SelectContext(ctx, "list-recent-evaluations", &recs, limit); err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	return recs, nil
}

// Prune deletes evaluations older than cutoff and returns the number removed.
func (s *AuditStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, "delete-evaluations-before", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune evaluations: %w", err)
	}
	return res.RowsAffected()
}

package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/healthsignals/internal/types"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = MigrateUp(ctx, db)
	require.NoError(t, err)
	return db
}

func strPtr(s string) *string { return &s }

func matchedResults() []types.RuleEvaluationResult {
	return []types.RuleEvaluationResult{
		{RuleID: "R-2", Matched: true, Priority: 1, Category: strPtr("recovery")},
		{RuleID: "R-9", Matched: true, Priority: 999, Category: strPtr("")},
	}
}

func TestAuditStore_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewAuditStore(openTestDB(t))
	require.NoError(t, err)

	id := types.NewEvaluationID()
	rec := NewEvaluationRecord(id, "inline", 12, 3, 1500*time.Microsecond, matchedResults())
	require.NoError(t, store.Record(ctx, rec))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, "inline", got.Source)
	assert.Equal(t, 12, got.RuleCount)
	assert.Equal(t, 2, got.MatchedCount)
	assert.Equal(t, 3, got.IndeterminateCount)
	assert.Equal(t, int64(1500), got.DurationMicros)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Second)

	require.Len(t, got.Matches, 2)
	assert.Equal(t, MatchRecord{Rank: 1, RuleID: "R-2", Priority: 1, Category: "recovery"}, got.Matches[0])
	assert.Equal(t, MatchRecord{Rank: 2, RuleID: "R-9", Priority: 999, Category: ""}, got.Matches[1])
}

func TestAuditStore_GetUnknown(t *testing.T) {
	store, err := NewAuditStore(openTestDB(t))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), types.NewEvaluationID())
	require.ErrorIs(t, err, types.ErrEvaluationNotFound)
}

func TestAuditStore_RecordDuplicateRollsBack(t *testing.T) {
	ctx := context.Background()
	store, err := NewAuditStore(openTestDB(t))
	require.NoError(t, err)

	id := types.NewEvaluationID()
	require.NoError(t, store.Record(ctx, NewEvaluationRecord(id, "file", 1, 0, 0, nil)))

	err = store.Record(ctx, NewEvaluationRecord(id, "file", 1, 0, 0, matchedResults()))
	require.Error(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Matches, "failed record must not leave partial matches")
}

func TestAuditStore_ListRecentAndPrune(t *testing.T) {
	ctx := context.Background()
	store, err := NewAuditStore(openTestDB(t))
	require.NoError(t, err)

	old := NewEvaluationRecord(types.NewEvaluationID(), "file", 1, 0, 0, nil)
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.Record(ctx, old))

	recent := NewEvaluationRecord(types.NewEvaluationID(), "file", 2, 0, 0, matchedResults())
	require.NoError(t, store.Record(ctx, recent))

	list, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, recent.ID, list[0].ID, "newest first")
	assert.Equal(t, old.ID, list[1].ID)

	limited, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, limited, 1, "non-positive limit clamps to 1")

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get(ctx, old.ID)
	require.ErrorIs(t, err, types.ErrEvaluationNotFound)
	_, err = store.Get(ctx, recent.ID)
	require.NoError(t, err)
}

func TestNewEvaluationRecord_RanksInOrder(t *testing.T) {
	rec := NewEvaluationRecord("id", "inline", 5, 0, 0, matchedResults())

	assert.Equal(t, 2, rec.MatchedCount)
	require.Len(t, rec.Matches, 2)
	assert.Equal(t, 1, rec.Matches[0].Rank)
	assert.Equal(t, "R-9", rec.Matches[1].RuleID)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
}

func TestNewEvaluationRecord_CreatedAtFromID(t *testing.T) {
	id := types.NewEvaluationID()
	rec := NewEvaluationRecord(id, "file", 1, 0, 0, nil)

	assert.Equal(t, types.EvaluationIDTime(id).UTC(), rec.CreatedAt)
	assert.WithinDuration(t, time.Now(), rec.CreatedAt, time.Minute)
}

package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreResultLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec, err := s.GetResult(ctx, "acme/widget")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.UpsertAnalyzing(ctx, ResultRecord{
		RepoKey: "acme/widget", RepoOwner: "acme", RepoName: "widget", AnalyzedBy: "wallet1",
	}))
	rec, err = s.GetResult(ctx, "acme/widget")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusAnalyzing, rec.Status)
	assert.Equal(t, "wallet1", rec.AnalyzedBy)

	require.NoError(t, s.MarkDone(ctx, "acme/widget", DoneUpdate{
		Result: json.RawMessage(`{"finalScore":62}`), CommitSha: "abc123",
		FilesCount: 3, TotalLines: 120, TokenCount: 900,
	}))
	rec, err = s.GetResult(ctx, "acme/widget")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, "abc123", rec.CommitSha)
	assert.Equal(t, 3, rec.FilesCount)

	// Re-trigger clears the error/result flags but keeps identity fields.
	require.NoError(t, s.UpsertAnalyzing(ctx, ResultRecord{RepoKey: "acme/widget", AnalyzedBy: "wallet2"}))
	rec, _ = s.GetResult(ctx, "acme/widget")
	assert.Equal(t, StatusAnalyzing, rec.Status)
	assert.Equal(t, "acme", rec.RepoOwner)

	require.NoError(t, s.MarkError(ctx, "acme/widget", "TOO_LARGE", 31000))
	rec, _ = s.GetResult(ctx, "acme/widget")
	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, "TOO_LARGE", rec.ErrorKind)
	assert.Equal(t, 31000, rec.TotalLines)
}

func TestMemoryStoreUsage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	count, err := s.GetUsage(ctx, "ip:1.2.3.4", UsageIP, "2026-08-31")
	require.NoError(t, err)
	assert.Zero(t, count)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementUsage(ctx, "ip:1.2.3.4", UsageIP, "2026-08-31"))
	}
	count, _ = s.GetUsage(ctx, "ip:1.2.3.4", UsageIP, "2026-08-31")
	assert.Equal(t, 3, count)

	// A new date is a new counter.
	count, _ = s.GetUsage(ctx, "ip:1.2.3.4", UsageIP, "2026-09-01")
	assert.Zero(t, count)

	n, err := s.ResetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	count, _ = s.GetUsage(ctx, "ip:1.2.3.4", UsageIP, "2026-08-31")
	assert.Zero(t, count)
}

func TestMemoryStorePruneErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertAnalyzing(ctx, ResultRecord{RepoKey: "a/ok"}))
	require.NoError(t, s.MarkDone(ctx, "a/ok", DoneUpdate{Result: json.RawMessage(`{}`)}))
	require.NoError(t, s.UpsertAnalyzing(ctx, ResultRecord{RepoKey: "b/bad"}))
	require.NoError(t, s.MarkError(ctx, "b/bad", "CLONE_FAILED", 0))

	n, err := s.PruneErrors(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, _ := s.GetResult(ctx, "a/ok")
	assert.NotNil(t, rec)
	rec, _ = s.GetResult(ctx, "b/bad")
	assert.Nil(t, rec)
}

package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verepo/internal/store"
)

type countingStore struct {
	*store.MemoryStore
	gets int
}

func (c *countingStore) GetResult(ctx context.Context, repoKey string) (*store.ResultRecord, error) {
	c.gets++
	return c.MemoryStore.GetResult(ctx, repoKey)
}

func TestCachedStoreServesDoneFromMemory(t *testing.T) {
	ctx := context.Background()
	origin := &countingStore{MemoryStore: store.NewMemoryStore()}
	cached := NewCachedStore(origin, Config{TTL: time.Minute, MaxEntries: 8})

	require.NoError(t, cached.UpsertAnalyzing(ctx, store.ResultRecord{RepoKey: "acme/widget"}))
	require.NoError(t, cached.MarkDone(ctx, "acme/widget", store.DoneUpdate{Result: json.RawMessage(`{}`), CommitSha: "abc"}))

	rec1, err := cached.GetResult(ctx, "acme/widget")
	require.NoError(t, err)
	require.NotNil(t, rec1)
	rec2, err := cached.GetResult(ctx, "acme/widget")
	require.NoError(t, err)
	require.NotNil(t, rec2)

	assert.Equal(t, 1, origin.gets, "second read should come from cache")
	assert.Equal(t, "abc", rec2.CommitSha)
}

func TestCachedStoreNeverCachesAnalyzing(t *testing.T) {
	ctx := context.Background()
	origin := &countingStore{MemoryStore: store.NewMemoryStore()}
	cached := NewCachedStore(origin, Config{TTL: time.Minute, MaxEntries: 8})

	require.NoError(t, cached.UpsertAnalyzing(ctx, store.ResultRecord{RepoKey: "acme/widget"}))

	_, _ = cached.GetResult(ctx, "acme/widget")
	_, _ = cached.GetResult(ctx, "acme/widget")
	assert.Equal(t, 2, origin.gets, "analyzing records must always hit the origin")
}

func TestCachedStoreInvalidatesOnReTrigger(t *testing.T) {
	ctx := context.Background()
	origin := &countingStore{MemoryStore: store.NewMemoryStore()}
	cached := NewCachedStore(origin, Config{TTL: time.Minute, MaxEntries: 8})

	require.NoError(t, cached.UpsertAnalyzing(ctx, store.ResultRecord{RepoKey: "acme/widget"}))
	require.NoError(t, cached.MarkDone(ctx, "acme/widget", store.DoneUpdate{Result: json.RawMessage(`{}`)}))
	_, _ = cached.GetResult(ctx, "acme/widget")

	// Commit change re-triggers analysis; the stale done row must not be
	// served from memory afterwards.
	require.NoError(t, cached.UpsertAnalyzing(ctx, store.ResultRecord{RepoKey: "acme/widget"}))
	rec, err := cached.GetResult(ctx, "acme/widget")
	require.NoError(t, err)
	assert.Equal(t, store.StatusAnalyzing, rec.Status)
}

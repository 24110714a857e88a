package retrieval

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResultCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewResultCache(NewResultCacheParams{Client: client}), mr
}

func TestResultCacheRoundTrip(t *testing.T) {
	cache, _ := newTestResultCache(t)
	ctx := context.Background()

	_, found := cache.Get(ctx, "tenant-a", ModeLocal, "who is neo?")
	require.False(t, found)

	stored := &RetrievalResult{
		Mode:   ModeLocal,
		Query:  "who is neo?",
		Answer: "The One.",
		Candidates: []Candidate{
			{ID: "chunk-1", Source: SourceVector, Score: 0.9, Content: "Neo is the One."},
		},
	}
	cache.Set(ctx, "tenant-a", ModeLocal, "who is neo?", stored)

	got, found := cache.Get(ctx, "tenant-a", ModeLocal, "who is neo?")
	require.True(t, found)
	assert.Equal(t, stored.Answer, got.Answer)
	assert.Equal(t, stored.Candidates, got.Candidates)
}

func TestResultCacheScopesKeys(t *testing.T) {
	cache, _ := newTestResultCache(t)
	ctx := context.Background()

	cache.Set(ctx, "tenant-a", ModeLocal, "who is neo?", &RetrievalResult{Answer: "A"})

	_, found := cache.Get(ctx, "tenant-b", ModeLocal, "who is neo?")
	assert.False(t, found, "result leaked across tenants")

	_, found = cache.Get(ctx, "tenant-a", ModeBasic, "who is neo?")
	assert.False(t, found, "result leaked across modes")
}

func TestResultCacheSoftFailsWhenBackendDown(t *testing.T) {
	cache, mr := newTestResultCache(t)
	ctx := context.Background()

	mr.Close()

	_, found := cache.Get(ctx, "tenant-a", ModeLocal, "who is neo?")
	assert.False(t, found)
	cache.Set(ctx, "tenant-a", ModeLocal, "who is neo?", &RetrievalResult{})
}

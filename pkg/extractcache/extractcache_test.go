package extractcache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/graphweave/pkg/common"
)

func baseKeyParams() KeyParams {
	return KeyParams{
		TenantID:         "tenant-a",
		Content:          "Neo meets Morpheus.",
		Prompt:           "extract entities",
		OntologyHash:     "abc123",
		Model:            "gpt-4o-mini",
		Temperature:      0.2,
		GleaningMode:     "smart",
		ExtractorVersion: "1",
	}
}

func TestKeyDeterministic(t *testing.T) {
	assert.Equal(t, Key(baseKeyParams()), Key(baseKeyParams()))
}

func TestKeySensitivity(t *testing.T) {
	seed := int64(42)

	tests := []struct {
		name   string
		mutate func(*KeyParams)
	}{
		{"tenant", func(p *KeyParams) { p.TenantID = "tenant-b" }},
		{"content", func(p *KeyParams) { p.Content = "Trinity meets Neo." }},
		{"prompt", func(p *KeyParams) { p.Prompt = "extract more entities" }},
		{"ontology", func(p *KeyParams) { p.OntologyHash = "def456" }},
		{"model", func(p *KeyParams) { p.Model = "gpt-4o" }},
		{"temperature", func(p *KeyParams) { p.Temperature = 0.7 }},
		{"seed", func(p *KeyParams) { p.Seed = &seed }},
		{"gleaning mode", func(p *KeyParams) { p.GleaningMode = "off" }},
		{"extractor version", func(p *KeyParams) { p.ExtractorVersion = "2" }},
	}

	base := Key(baseKeyParams())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseKeyParams()
			tt.mutate(&p)
			assert.NotEqual(t, base, Key(p), "changing %s must change the key", tt.name)
		})
	}
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCache(NewCacheParams{KV: NewRedisKV(client)}), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key := Key(baseKeyParams())

	_, found := cache.Get(ctx, key)
	require.False(t, found)

	stored := &common.ExtractionResult{
		Entities: []common.Entity{
			{Name: "NEO", Type: "PERSON", ImportanceScore: 0.9, SourceChunks: []string{"chunk-1"}},
		},
		Relationships: []common.Relationship{
			{SourceEntity: "NEO", TargetEntity: "MORPHEUS", RelationshipType: "KNOWS", Strength: 0.8},
		},
		Usage: common.Usage{LLMCalls: 2, TotalTokens: 900},
	}
	cache.Set(ctx, key, stored)

	got, found := cache.Get(ctx, key)
	require.True(t, found)
	assert.Equal(t, stored.Entities, got.Entities)
	assert.Equal(t, stored.Relationships, got.Relationships)
	assert.Zero(t, got.Usage.LLMCalls, "usage must not be cached")
	assert.Zero(t, got.Usage.TotalTokens, "usage must not be cached")
}

func TestCacheSoftFailsWhenBackendDown(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	key := Key(baseKeyParams())

	mr.Close()

	_, found := cache.Get(ctx, key)
	assert.False(t, found)

	// Must not panic or return an error path to the caller.
	cache.Set(ctx, key, &common.ExtractionResult{})
}

func TestCacheIgnoresCorruptEntries(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	key := Key(baseKeyParams())

	require.NoError(t, mr.Set(key, "not json"))

	_, found := cache.Get(ctx, key)
	assert.False(t, found)
}

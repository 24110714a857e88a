package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/graphweave/graphweave/pkg/logger"
)

// DefaultResultTTL bounds how long retrieval results are served from cache.
// Shorter than the extraction cache: answers go stale as soon as the graph
// or its communities change.
const DefaultResultTTL = 15 * time.Minute

// ResultCache caches full retrieval results keyed by tenant, mode and query
// hash. Like every cache in this engine it only ever fails soft.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCacheParams configures a ResultCache.
type NewResultCacheParams struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewResultCache creates a ResultCache.
func NewResultCache(params NewResultCacheParams) *ResultCache {
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultCache{client: params.Client, ttl: ttl}
}

func resultKey(tenantID string, mode Mode, query string) string {
	queryHash := sha256.Sum256([]byte(query))
	return fmt.Sprintf("retrieval:%s:%s:%s", tenantID, mode, hex.EncodeToString(queryHash[:]))
}

// Get returns the cached result, or ok=false on miss or failure.
func (c *ResultCache) Get(ctx context.Context, tenantID string, mode Mode, query string) (*RetrievalResult, bool) {
	value, err := c.client.Get(ctx, resultKey(tenantID, mode, query)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Warn("[ResultCache] Lookup failed", "error", err)
		return nil, false
	}

	var result RetrievalResult
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		logger.Warn("[ResultCache] Corrupt cache entry", "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores a retrieval result.
func (c *ResultCache) Set(ctx context.Context, tenantID string, mode Mode, query string, result *RetrievalResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Warn("[ResultCache] Failed to encode result", "error", err)
		return
	}
	if err := c.client.Set(ctx, resultKey(tenantID, mode, query), payload, c.ttl).Err(); err != nil {
		logger.Warn("[ResultCache] Write failed", "error", err)
	}
}

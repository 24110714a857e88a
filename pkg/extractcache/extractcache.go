package extractcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graphweave/graphweave/pkg/common"
	"github.com/graphweave/graphweave/pkg/logger"
)

// DefaultTTL is how long cached extraction results live. Extraction is
// deterministic in its key inputs, so the TTL exists to bound storage, not
// to guard freshness.
const DefaultTTL = 7 * 24 * time.Hour

// KV is the minimal key/value surface the cache needs from its backing
// store.
type KV interface {
	// Get returns the stored value and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetEx stores a value with a TTL.
	SetEx(ctx context.Context, key string, value string, ttl time.Duration) error
}

// KeyParams are the inputs that determine an extraction outcome. Any change
// to any of them must produce a different key, so cached results can never
// leak across tenants, prompts, ontologies or model configurations.
type KeyParams struct {
	TenantID         string
	Content          string
	Prompt           string
	OntologyHash     string
	Model            string
	Temperature      float64
	Seed             *int64
	GleaningMode     string
	ExtractorVersion string
}

// Key derives the deterministic cache key for the given extraction inputs.
// Content and prompt are hashed first so the key stays fixed-size.
func Key(p KeyParams) string {
	contentHash := sha256.Sum256([]byte(p.Content))
	promptHash := sha256.Sum256([]byte(p.Prompt))

	seed := "none"
	if p.Seed != nil {
		seed = fmt.Sprintf("%d", *p.Seed)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%.4f|%s|%s|%s",
		p.TenantID,
		hex.EncodeToString(contentHash[:]),
		hex.EncodeToString(promptHash[:]),
		p.OntologyHash,
		p.Model,
		p.Temperature,
		seed,
		p.GleaningMode,
		p.ExtractorVersion,
	)

	return "extract:" + hex.EncodeToString(h.Sum(nil))
}

// Cache is a write-through cache for extraction results. Every failure is a
// soft failure: a broken cache degrades to recomputation, it never fails an
// extraction.
type Cache struct {
	kv  KV
	ttl time.Duration
}

// NewCacheParams configures a Cache.
type NewCacheParams struct {
	KV  KV
	TTL time.Duration
}

// NewCache creates a Cache. A zero TTL falls back to DefaultTTL.
func NewCache(params NewCacheParams) *Cache {
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{kv: params.KV, ttl: ttl}
}

// cached is the stored shape: results only, no usage. Usage describes the
// calls that produced the result, and a cache hit made none.
type cached struct {
	Entities      []common.Entity       `json:"entities"`
	Relationships []common.Relationship `json:"relationships"`
}

// Get returns the cached extraction result for key, or ok=false on miss or
// on any backend or decode failure.
func (c *Cache) Get(ctx context.Context, key string) (*common.ExtractionResult, bool) {
	value, found, err := c.kv.Get(ctx, key)
	if err != nil {
		logger.Warn("[ExtractCache] Lookup failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var stored cached
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		logger.Warn("[ExtractCache] Corrupt cache entry", "key", key, "error", err)
		return nil, false
	}

	return &common.ExtractionResult{
		Entities:      stored.Entities,
		Relationships: stored.Relationships,
	}, true
}

// Set stores an extraction result under key, stripping usage accounting.
func (c *Cache) Set(ctx context.Context, key string, result *common.ExtractionResult) {
	payload, err := json.Marshal(cached{
		Entities:      result.Entities,
		Relationships: result.Relationships,
	})
	if err != nil {
		logger.Warn("[ExtractCache] Failed to encode result", "error", err)
		return
	}

	if err := c.kv.SetEx(ctx, key, string(payload), c.ttl); err != nil {
		logger.Warn("[ExtractCache] Write failed", "error", err)
	}
}

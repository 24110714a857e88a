package vector

import (
	"context"
)

// Collections the engine stores embeddings in.
const (
	CollectionChunks      = "chunks"
	CollectionEntities    = "entities"
	CollectionCommunities = "communities"
)

// Record is one embedded item to upsert.
type Record struct {
	ID         string
	TenantID   string
	Collection string
	Content    string
	Embedding  []float32
	Metadata   map[string]any
}

// Match is one similarity-search result. Score is higher-is-better.
type Match struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Store is the vector-search surface of the retrieval strategies. All
// operations are tenant-scoped.
type Store interface {
	Search(ctx context.Context, queryVector []float32, tenantID string, limit int, filters map[string]any, collection string) ([]Match, error)
	HybridSearch(ctx context.Context, dense []float32, sparse string, tenantID string, limit int) ([]Match, error)
	Upsert(ctx context.Context, records []Record) error
}

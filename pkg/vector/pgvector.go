package vector

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

const (
	searchQuery = `
SELECT id, content, metadata, 1 - (embedding <=> @query_vector) AS score
FROM embeddings
WHERE tenant_id = @tenant_id
  AND collection = @collection
  AND (@filters::jsonb IS NULL OR metadata @> @filters::jsonb)
ORDER BY embedding <=> @query_vector
LIMIT @limit`

	// Reciprocal-rank fusion of dense similarity and full-text rank.
	hybridSearchQuery = `
WITH dense AS (
  SELECT id, row_number() OVER (ORDER BY embedding <=> @query_vector) AS rank
  FROM embeddings
  WHERE tenant_id = @tenant_id AND collection = @collection
  ORDER BY embedding <=> @query_vector
  LIMIT @pool
), sparse AS (
  SELECT id, row_number() OVER (
    ORDER BY ts_rank_cd(to_tsvector('simple', content), plainto_tsquery('simple', @query_text)) DESC
  ) AS rank
  FROM embeddings
  WHERE tenant_id = @tenant_id AND collection = @collection
    AND to_tsvector('simple', content) @@ plainto_tsquery('simple', @query_text)
  LIMIT @pool
)
SELECT e.id, e.content, e.metadata,
  COALESCE(1.0 / (60 + dense.rank), 0) + COALESCE(1.0 / (60 + sparse.rank), 0) AS score
FROM embeddings e
LEFT JOIN dense ON dense.id = e.id
LEFT JOIN sparse ON sparse.id = e.id
WHERE dense.id IS NOT NULL OR sparse.id IS NOT NULL
ORDER BY score DESC
LIMIT @limit`

	upsertQuery = `
INSERT INTO embeddings (id, tenant_id, collection, content, embedding, metadata)
VALUES (@id, @tenant_id, @collection, @content, @embedding, @metadata)
ON CONFLICT (id) DO UPDATE
SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`
)

const defaultLimit = 10

// hybridPoolFactor widens the per-ranker candidate pool before fusion.
const hybridPoolFactor = 4

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// PgvectorStore implements Store on PostgreSQL with the pgvector extension.
type PgvectorStore struct {
	conn pgxIConn
}

// NewPgvectorStoreParams configures a PgvectorStore.
type NewPgvectorStoreParams struct {
	Conn pgxIConn
}

// NewPgvectorStore creates a store over an existing pool or connection. The
// connection must have pgvector types registered.
func NewPgvectorStore(params NewPgvectorStoreParams) (*PgvectorStore, error) {
	if params.Conn == nil {
		return nil, fmt.Errorf("vector store requires a connection")
	}
	return &PgvectorStore{conn: params.Conn}, nil
}

func (s *PgvectorStore) Search(
	ctx context.Context,
	queryVector []float32,
	tenantID string,
	limit int,
	filters map[string]any,
	collection string,
) ([]Match, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if collection == "" {
		collection = CollectionChunks
	}

	var filterArg any
	if len(filters) > 0 {
		filterArg = filters
	}

	rows, err := s.conn.Query(ctx, searchQuery, pgxv5.NamedArgs{
		"query_vector": pgvector.NewVector(queryVector),
		"tenant_id":    tenantID,
		"collection":   collection,
		"filters":      filterArg,
		"limit":        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	return collectMatches(rows)
}

func (s *PgvectorStore) HybridSearch(
	ctx context.Context,
	dense []float32,
	sparse string,
	tenantID string,
	limit int,
) ([]Match, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.conn.Query(ctx, hybridSearchQuery, pgxv5.NamedArgs{
		"query_vector": pgvector.NewVector(dense),
		"query_text":   sparse,
		"tenant_id":    tenantID,
		"collection":   CollectionChunks,
		"pool":         limit * hybridPoolFactor,
		"limit":        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}
	defer rows.Close()

	return collectMatches(rows)
}

func (s *PgvectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgxv5.Batch{}
	for _, record := range records {
		batch.Queue(upsertQuery, pgxv5.NamedArgs{
			"id":         record.ID,
			"tenant_id":  record.TenantID,
			"collection": record.Collection,
			"content":    record.Content,
			"embedding":  pgvector.NewVector(record.Embedding),
			"metadata":   record.Metadata,
		})
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("vector upsert begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("vector upsert record %d failed: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("vector upsert close failed: %w", err)
	}

	return tx.Commit(ctx)
}

func collectMatches(rows pgxv5.Rows) ([]Match, error) {
	var matches []Match
	for rows.Next() {
		var match Match
		var metadata map[string]any
		if err := rows.Scan(&match.ID, &match.Content, &metadata, &match.Score); err != nil {
			return nil, fmt.Errorf("vector row scan failed: %w", err)
		}
		match.Metadata = metadata
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector rows failed: %w", err)
	}
	return matches, nil
}

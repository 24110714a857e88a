package graph

import (
	"context"
	"fmt"

	"github.com/graphweave/graphweave/internal/util"
	"github.com/graphweave/graphweave/pkg/ai"
	"github.com/graphweave/graphweave/pkg/common"
	"github.com/graphweave/graphweave/pkg/graphdb"
	"github.com/graphweave/graphweave/pkg/vector"
)

const (
	upsertChunkQuery = `
INSERT INTO chunks (id, tenant_id, document_id, content)
VALUES (@id, @tenant_id, @document_id, @content)
ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content`

	upsertEntityQuery = `
INSERT INTO entities (tenant_id, name, type, description, importance_score)
VALUES (@tenant_id, @name, @type, @description, @importance_score)
ON CONFLICT (tenant_id, name, type) DO UPDATE
SET importance_score = GREATEST(entities.importance_score, EXCLUDED.importance_score),
    description = CASE
      WHEN length(EXCLUDED.description) > length(entities.description) THEN EXCLUDED.description
      ELSE entities.description
    END`

	upsertRelationshipQuery = `
INSERT INTO relationships (tenant_id, source_entity, target_entity, relationship_type, description, strength)
VALUES (@tenant_id, @source_entity, @target_entity, @relationship_type, @description, @strength)
ON CONFLICT (tenant_id, source_entity, target_entity, relationship_type) DO UPDATE
SET strength = GREATEST(relationships.strength, EXCLUDED.strength),
    description = CASE
      WHEN length(EXCLUDED.description) > length(relationships.description) THEN EXCLUDED.description
      ELSE relationships.description
    END`

	insertMentionQuery = `
INSERT INTO entity_mentions (tenant_id, entity_name, chunk_id)
VALUES (@tenant_id, @entity_name, @chunk_id)
ON CONFLICT DO NOTHING`
)

// StoreWriter persists chunk extractions: graph rows in one batched
// transaction, then chunk and entity embeddings in the vector store. Entity
// vector records are keyed by entity name so seed searches resolve directly
// to graph nodes.
type StoreWriter struct {
	db    graphdb.Client
	store vector.Store
	llm   ai.Client
}

// NewStoreWriterParams configures a StoreWriter.
type NewStoreWriterParams struct {
	DB    graphdb.Client
	Store vector.Store
	LLM   ai.Client
}

// NewStoreWriter creates a StoreWriter.
func NewStoreWriter(params NewStoreWriterParams) (*StoreWriter, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("store writer requires a graph client")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("store writer requires a vector store")
	}
	if params.LLM == nil {
		return nil, fmt.Errorf("store writer requires an AI client")
	}
	return &StoreWriter{db: params.DB, store: params.Store, llm: params.LLM}, nil
}

// WriteChunkExtraction writes the chunk row, its entities, relationships and
// mention links in one transaction, then embeds the chunk content and every
// extracted entity into the vector store.
func (w *StoreWriter) WriteChunkExtraction(
	ctx context.Context,
	chunk common.Chunk,
	result *common.ExtractionResult,
) error {
	statements := make([]graphdb.Statement, 0, 1+2*len(result.Entities)+len(result.Relationships))

	statements = append(statements, graphdb.Statement{
		Query: upsertChunkQuery,
		Params: map[string]any{
			"id":          chunk.ID,
			"tenant_id":   chunk.TenantID,
			"document_id": chunk.DocumentID,
			"content":     util.SanitizePostgresText(chunk.Content),
		},
	})

	for _, entity := range result.Entities {
		statements = append(statements, graphdb.Statement{
			Query: upsertEntityQuery,
			Params: map[string]any{
				"tenant_id":        chunk.TenantID,
				"name":             entity.Name,
				"type":             entity.Type,
				"description":      util.SanitizePostgresText(entity.Description),
				"importance_score": entity.ImportanceScore,
			},
		})
		statements = append(statements, graphdb.Statement{
			Query: insertMentionQuery,
			Params: map[string]any{
				"tenant_id":   chunk.TenantID,
				"entity_name": entity.Name,
				"chunk_id":    chunk.ID,
			},
		})
	}

	for _, rel := range result.Relationships {
		statements = append(statements, graphdb.Statement{
			Query: upsertRelationshipQuery,
			Params: map[string]any{
				"tenant_id":         chunk.TenantID,
				"source_entity":     rel.SourceEntity,
				"target_entity":     rel.TargetEntity,
				"relationship_type": rel.RelationshipType,
				"description":       util.SanitizePostgresText(rel.Description),
				"strength":          rel.Strength,
			},
		})
	}

	if err := w.db.ExecuteWriteBatch(ctx, statements); err != nil {
		return fmt.Errorf("persisting chunk %s: %w", chunk.ID, err)
	}

	return w.writeEmbeddings(ctx, chunk, result)
}

func (w *StoreWriter) writeEmbeddings(
	ctx context.Context,
	chunk common.Chunk,
	result *common.ExtractionResult,
) error {
	records := make([]vector.Record, 0, 1+len(result.Entities))

	chunkEmbedding, err := w.llm.Embed(ctx, []byte(chunk.Content))
	if err != nil {
		return fmt.Errorf("embedding chunk %s: %w", chunk.ID, err)
	}
	records = append(records, vector.Record{
		ID:         chunk.ID,
		TenantID:   chunk.TenantID,
		Collection: vector.CollectionChunks,
		Content:    chunk.Content,
		Embedding:  chunkEmbedding,
		Metadata:   map[string]any{"document_id": chunk.DocumentID},
	})

	for _, entity := range result.Entities {
		embedding, err := w.llm.Embed(ctx, []byte(entity.Name+": "+entity.Description))
		if err != nil {
			return fmt.Errorf("embedding entity %s: %w", entity.Name, err)
		}
		records = append(records, vector.Record{
			ID:         entity.Name,
			TenantID:   chunk.TenantID,
			Collection: vector.CollectionEntities,
			Content:    entity.Description,
			Embedding:  embedding,
			Metadata:   map[string]any{"type": entity.Type},
		})
	}

	if err := w.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upserting embeddings for chunk %s: %w", chunk.ID, err)
	}
	return nil
}

package graph

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/graphweave/graphweave/pkg/common"
	"github.com/graphweave/graphweave/pkg/graphdb"
	"github.com/graphweave/graphweave/pkg/vector"
)

type fakeGraphClient struct {
	mu      sync.Mutex
	batches [][]graphdb.Statement
	err     error
}

func (f *fakeGraphClient) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	return nil, nil
}

func (f *fakeGraphClient) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	return nil, nil
}

func (f *fakeGraphClient) ExecuteWriteBatch(ctx context.Context, statements []graphdb.Statement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, statements)
	return nil
}

type fakeVectorStore struct {
	mu      sync.Mutex
	records []vector.Record
}

func (f *fakeVectorStore) Search(ctx context.Context, queryVector []float32, tenantID string, limit int, filters map[string]any, collection string) ([]vector.Match, error) {
	return nil, nil
}

func (f *fakeVectorStore) HybridSearch(ctx context.Context, dense []float32, sparse string, tenantID string, limit int) ([]vector.Match, error) {
	return nil, nil
}

func (f *fakeVectorStore) Upsert(ctx context.Context, records []vector.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func newTestWriter(t *testing.T, db *fakeGraphClient, store *fakeVectorStore) *StoreWriter {
	t.Helper()
	writer, err := NewStoreWriter(NewStoreWriterParams{
		DB:    db,
		Store: store,
		LLM:   &fakeAI{},
	})
	if err != nil {
		t.Fatalf("NewStoreWriter() error = %v", err)
	}
	return writer
}

func TestStoreWriterPersistsGraphAndEmbeddings(t *testing.T) {
	db := &fakeGraphClient{}
	store := &fakeVectorStore{}
	writer := newTestWriter(t, db, store)

	chunk := common.Chunk{ID: "chunk-1", DocumentID: "doc-1", TenantID: "tenant-a", Content: "Neo fights Smith."}
	result := &common.ExtractionResult{
		Entities: []common.Entity{
			{Name: "NEO", Type: "PERSON", Description: "The One", ImportanceScore: 0.9},
			{Name: "SMITH", Type: "PERSON", Description: "An agent", ImportanceScore: 0.8},
		},
		Relationships: []common.Relationship{
			{SourceEntity: "NEO", TargetEntity: "SMITH", RelationshipType: "FIGHTS", Description: "Rivals", Strength: 0.9},
		},
	}

	if err := writer.WriteChunkExtraction(context.Background(), chunk, result); err != nil {
		t.Fatalf("WriteChunkExtraction() error = %v", err)
	}

	if len(db.batches) != 1 {
		t.Fatalf("write batches = %d, want 1", len(db.batches))
	}
	// One chunk upsert, one upsert plus one mention per entity, one
	// relationship upsert.
	if got, want := len(db.batches[0]), 1+2*len(result.Entities)+len(result.Relationships); got != want {
		t.Errorf("batch statements = %d, want %d", got, want)
	}

	if got, want := len(store.records), 1+len(result.Entities); got != want {
		t.Fatalf("vector records = %d, want %d", got, want)
	}
	byID := map[string]vector.Record{}
	for _, record := range store.records {
		byID[record.ID] = record
	}
	if byID["chunk-1"].Collection != vector.CollectionChunks {
		t.Errorf("chunk record collection = %s", byID["chunk-1"].Collection)
	}
	if byID["NEO"].Collection != vector.CollectionEntities {
		t.Errorf("entity record collection = %s", byID["NEO"].Collection)
	}
	if byID["NEO"].TenantID != "tenant-a" {
		t.Errorf("entity record tenant = %s", byID["NEO"].TenantID)
	}
}

func TestStoreWriterSanitizesText(t *testing.T) {
	db := &fakeGraphClient{}
	store := &fakeVectorStore{}
	writer := newTestWriter(t, db, store)

	chunk := common.Chunk{ID: "chunk-1", TenantID: "tenant-a", Content: "bad\x00byte"}
	result := &common.ExtractionResult{
		Entities: []common.Entity{
			{Name: "NEO", Type: "PERSON", Description: "nul\x00here", ImportanceScore: 0.9},
		},
	}

	if err := writer.WriteChunkExtraction(context.Background(), chunk, result); err != nil {
		t.Fatalf("WriteChunkExtraction() error = %v", err)
	}

	for _, statement := range db.batches[0] {
		for key, value := range statement.Params {
			text, ok := value.(string)
			if ok && strings.Contains(text, "\x00") {
				t.Errorf("parameter %q still contains a null byte", key)
			}
		}
	}
}

func TestStoreWriterPropagatesBatchFailure(t *testing.T) {
	db := &fakeGraphClient{err: context.DeadlineExceeded}
	store := &fakeVectorStore{}
	writer := newTestWriter(t, db, store)

	chunk := common.Chunk{ID: "chunk-1", TenantID: "tenant-a", Content: "text"}
	err := writer.WriteChunkExtraction(context.Background(), chunk, &common.ExtractionResult{})
	if err == nil {
		t.Fatal("WriteChunkExtraction() error = nil, want batch failure")
	}
	if len(store.records) != 0 {
		t.Error("embeddings written despite graph write failure")
	}
}

package community

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/graphweave/graphweave/pkg/graphdb"
)

type fakeDB struct {
	mu            sync.Mutex
	entities      []graphdb.Row
	relationships []graphdb.Row
	writeRows     []graphdb.Row
	writeQueries  []string
	batches       [][]graphdb.Statement
}

func (f *fakeDB) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	switch {
	case strings.Contains(query, "FROM entities"):
		return f.entities, nil
	case strings.Contains(query, "FROM relationships"):
		return f.relationships, nil
	}
	return nil, nil
}

func (f *fakeDB) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]graphdb.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeQueries = append(f.writeQueries, query)
	return f.writeRows, nil
}

func (f *fakeDB) ExecuteWriteBatch(ctx context.Context, statements []graphdb.Statement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]graphdb.Statement, len(statements))
	copy(batch, statements)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeDB) allStatements() []graphdb.Statement {
	var out []graphdb.Statement
	for _, batch := range f.batches {
		out = append(out, batch...)
	}
	return out
}

func entityRows(names ...string) []graphdb.Row {
	rows := make([]graphdb.Row, 0, len(names))
	for _, name := range names {
		rows = append(rows, graphdb.Row{"name": name})
	}
	return rows
}

func relationshipRow(source, target string, strength float64) graphdb.Row {
	return graphdb.Row{"source_entity": source, "target_entity": target, "strength": strength}
}

// membershipByEntity extracts entity -> community ids from persisted
// statements.
func membershipByEntity(t *testing.T, statements []graphdb.Statement) map[string][]string {
	t.Helper()
	members := map[string][]string{}
	for _, statement := range statements {
		if statement.Query != linkMemberQuery {
			continue
		}
		entity := statement.Params["entity_name"].(string)
		members[entity] = append(members[entity], statement.Params["community_id"].(string))
	}
	return members
}

func communitiesByLevel(statements []graphdb.Statement) map[int][]string {
	levels := map[int][]string{}
	for _, statement := range statements {
		if statement.Query != upsertCommunityQuery {
			continue
		}
		level := statement.Params["level"].(int)
		levels[level] = append(levels[level], statement.Params["id"].(string))
	}
	return levels
}

func TestDetectSkipsEmptyTenant(t *testing.T) {
	db := &fakeDB{}
	detector, err := NewDetector(NewDetectorParams{DB: db})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	result, err := detector.Detect(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if result.Status != StatusSkipped {
		t.Errorf("status = %q, want %q", result.Status, StatusSkipped)
	}
	if len(db.batches) != 0 {
		t.Errorf("batches written = %d, want 0", len(db.batches))
	}
}

func TestDetectIsolatedEntitiesFormSingletons(t *testing.T) {
	db := &fakeDB{entities: entityRows("ALPHA", "BETA", "GAMMA")}
	detector, err := NewDetector(NewDetectorParams{DB: db})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	result, err := detector.Detect(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if result.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", result.Status, StatusCompleted)
	}
	if result.Levels != 1 {
		t.Errorf("levels = %d, want 1", result.Levels)
	}
	if result.CommunityCount != 3 {
		t.Errorf("communities = %d, want 3 singletons", result.CommunityCount)
	}

	members := membershipByEntity(t, db.allStatements())
	for _, entity := range []string{"ALPHA", "BETA", "GAMMA"} {
		if len(members[entity]) != 1 {
			t.Errorf("entity %s memberships = %v, want exactly one", entity, members[entity])
		}
	}
}

func TestDetectPersistsCommunitiesAsPending(t *testing.T) {
	db := &fakeDB{entities: entityRows("ALPHA", "BETA")}
	detector, err := NewDetector(NewDetectorParams{DB: db})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	if _, err := detector.Detect(context.Background(), "tenant-a"); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	upserts := 0
	for _, statement := range db.allStatements() {
		if statement.Query != upsertCommunityQuery {
			continue
		}
		upserts++
		if got := statement.Params["status"]; got != StatePending {
			t.Errorf("community %v status = %v, want %q", statement.Params["id"], got, StatePending)
		}
	}
	if upserts == 0 {
		t.Fatal("no community upserts persisted")
	}
}

func triangleGraph() (entities []graphdb.Row, relationships []graphdb.Row) {
	entities = entityRows("A1", "A2", "A3", "B1", "B2", "B3")
	relationships = []graphdb.Row{
		relationshipRow("A1", "A2", 1),
		relationshipRow("A2", "A3", 1),
		relationshipRow("A1", "A3", 1),
		relationshipRow("B1", "B2", 1),
		relationshipRow("B2", "B3", 1),
		relationshipRow("B1", "B3", 1),
	}
	return entities, relationships
}

func TestDetectSeparatesDisconnectedComponents(t *testing.T) {
	entities, relationships := triangleGraph()
	db := &fakeDB{entities: entities, relationships: relationships}
	detector, err := NewDetector(NewDetectorParams{DB: db})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	result, err := detector.Detect(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if result.CommunityCount != 2 {
		t.Fatalf("communities = %d, want 2", result.CommunityCount)
	}

	members := membershipByEntity(t, db.allStatements())
	communityOf := func(entity string) string {
		ids := members[entity]
		if len(ids) != 1 {
			t.Fatalf("entity %s memberships = %v, want exactly one", entity, ids)
		}
		return ids[0]
	}

	if communityOf("A1") != communityOf("A2") || communityOf("A2") != communityOf("A3") {
		t.Error("first triangle split across communities")
	}
	if communityOf("B1") != communityOf("B2") || communityOf("B2") != communityOf("B3") {
		t.Error("second triangle split across communities")
	}
	if communityOf("A1") == communityOf("B1") {
		t.Error("disconnected components merged into one community")
	}
}

func TestDetectBuildsHierarchyAtLowResolution(t *testing.T) {
	entities, relationships := triangleGraph()
	// One weak bridge between the triangles: kept apart at level 0, merged
	// by the induced pass at a permissive resolution.
	relationships = append(relationships, relationshipRow("A1", "B1", 1))

	db := &fakeDB{entities: entities, relationships: relationships}
	detector, err := NewDetector(NewDetectorParams{DB: db, Resolution: 0.1, MaxLevels: 3})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	result, err := detector.Detect(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if result.Levels != 2 {
		t.Fatalf("levels = %d, want 2", result.Levels)
	}

	statements := db.allStatements()
	levels := communitiesByLevel(statements)
	if len(levels[0]) != 2 {
		t.Errorf("level-0 communities = %d, want 2", len(levels[0]))
	}
	if len(levels[1]) != 1 {
		t.Fatalf("level-1 communities = %d, want 1", len(levels[1]))
	}

	var children []string
	for _, statement := range statements {
		if statement.Query != linkChildQuery {
			continue
		}
		if got := statement.Params["parent_id"].(string); got != levels[1][0] {
			t.Errorf("child link parent = %s, want %s", got, levels[1][0])
		}
		children = append(children, statement.Params["child_id"].(string))
	}

	sort.Strings(children)
	want := append([]string(nil), levels[0]...)
	sort.Strings(want)
	if len(children) != len(want) {
		t.Fatalf("child links = %v, want exactly the level-0 ids %v", children, want)
	}
	for i := range want {
		if children[i] != want[i] {
			t.Fatalf("child links = %v, want exactly the level-0 ids %v", children, want)
		}
	}
}

func TestDetectPersistsInBatches(t *testing.T) {
	names := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		names = append(names, fmt.Sprintf("ENTITY_%03d", i))
	}

	db := &fakeDB{entities: entityRows(names...)}
	detector, err := NewDetector(NewDetectorParams{DB: db, BatchSize: 100})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	if _, err := detector.Detect(context.Background(), "tenant-a"); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if len(db.batches) < 2 {
		t.Fatalf("batches = %d, want multiple for 150 singleton communities", len(db.batches))
	}
	for _, batch := range db.batches {
		if len(batch) > 100 {
			t.Errorf("batch size = %d, want <= 100", len(batch))
		}
	}
}

package community

import (
	"context"
	"strings"
	"testing"

	"github.com/graphweave/graphweave/pkg/graphdb"
)

func TestMarkStaleCountsUpdatedCommunities(t *testing.T) {
	db := &fakeDB{writeRows: []graphdb.Row{{"id": "c1"}, {"id": "c2"}}}
	lifecycle, err := NewLifecycle(NewLifecycleParams{DB: db})
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}

	count, err := lifecycle.MarkStaleByEntityNames(context.Background(), "tenant-a", []string{"NEO"})
	if err != nil {
		t.Fatalf("MarkStaleByEntityNames() error = %v", err)
	}
	if count != 2 {
		t.Errorf("stale count = %d, want 2", count)
	}

	count, err = lifecycle.MarkStaleByTenant(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("MarkStaleByTenant() error = %v", err)
	}
	if count != 2 {
		t.Errorf("stale count = %d, want 2", count)
	}
}

func TestMarkStaleNoopOnEmptyInput(t *testing.T) {
	db := &fakeDB{}
	lifecycle, err := NewLifecycle(NewLifecycleParams{DB: db})
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}

	if _, err := lifecycle.MarkStaleByEntities(context.Background(), "tenant-a", nil); err != nil {
		t.Fatalf("MarkStaleByEntities() error = %v", err)
	}
	if _, err := lifecycle.MarkStaleByEntityNames(context.Background(), "tenant-a", nil); err != nil {
		t.Fatalf("MarkStaleByEntityNames() error = %v", err)
	}
	if len(db.writeQueries) != 0 {
		t.Errorf("writes issued = %d, want 0 for empty entity sets", len(db.writeQueries))
	}
}

func TestCleanupOrphansAttachesToUncategorized(t *testing.T) {
	db := &fakeDB{entities: entityRows("LONER", "DRIFTER")}
	lifecycle, err := NewLifecycle(NewLifecycleParams{DB: db})
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}

	attached, err := lifecycle.CleanupOrphans(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("CleanupOrphans() error = %v", err)
	}
	if attached != 2 {
		t.Errorf("attached = %d, want 2", attached)
	}

	statements := db.allStatements()
	if len(statements) != 3 {
		t.Fatalf("statements = %d, want upsert + 2 member links", len(statements))
	}
	if statements[0].Query != upsertCommunityQuery {
		t.Error("first statement is not the community upsert")
	}
	if got := statements[0].Params["title"]; got != UncategorizedTitle {
		t.Errorf("community title = %v, want %q", got, UncategorizedTitle)
	}
	if got := statements[0].Params["level"]; got != 0 {
		t.Errorf("community level = %v, want 0", got)
	}
	if got := statements[0].Params["status"]; got != StatePending {
		t.Errorf("community status = %v, want %q", got, StatePending)
	}
	for _, statement := range statements[1:] {
		if statement.Query != linkMemberQuery {
			t.Error("expected member link statement")
		}
		if got := statement.Params["community_id"].(string); got != "uncategorized:tenant-a" {
			t.Errorf("community id = %s, want tenant-scoped uncategorized id", got)
		}
	}
}

func TestCleanupOrphansNoopWithoutOrphans(t *testing.T) {
	db := &fakeDB{}
	lifecycle, err := NewLifecycle(NewLifecycleParams{DB: db})
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}

	attached, err := lifecycle.CleanupOrphans(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("CleanupOrphans() error = %v", err)
	}
	if attached != 0 {
		t.Errorf("attached = %d, want 0", attached)
	}
	if len(db.batches) != 0 {
		t.Errorf("batches = %d, want 0", len(db.batches))
	}
}

func TestDetectStalledJobs(t *testing.T) {
	db := &fakeDB{writeRows: []graphdb.Row{{"id": "c1"}}}
	lifecycle, err := NewLifecycle(NewLifecycleParams{DB: db})
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}

	failed, err := lifecycle.DetectStalledJobs(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("DetectStalledJobs() error = %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if len(db.writeQueries) != 1 || !strings.Contains(db.writeQueries[0], "status = 'failed'") {
		t.Errorf("unexpected write queries: %v", db.writeQueries)
	}
}

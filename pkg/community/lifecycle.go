package community

import (
	"context"
	"fmt"
	"time"

	"github.com/graphweave/graphweave/pkg/graphdb"
	"github.com/graphweave/graphweave/pkg/logger"
)

// UncategorizedTitle names the synthetic level-0 community that collects
// entities without any membership.
const UncategorizedTitle = "Uncategorized"

// DefaultStalledAfter is how long a community may sit in processing before
// it is forced to failed.
const DefaultStalledAfter = time.Hour

const (
	markStaleByEntityIDsQuery = `
UPDATE communities c SET is_stale = true
WHERE c.tenant_id = @tenant_id
  AND EXISTS (
    SELECT 1 FROM community_members m
    JOIN entities e ON e.tenant_id = c.tenant_id AND e.name = m.entity_name
    WHERE m.community_id = c.id AND e.id = ANY(@entity_ids)
  )
RETURNING c.id`

	markStaleByEntityNamesQuery = `
UPDATE communities c SET is_stale = true
WHERE c.tenant_id = @tenant_id
  AND EXISTS (
    SELECT 1 FROM community_members m
    WHERE m.community_id = c.id AND m.entity_name = ANY(@entity_names)
  )
RETURNING c.id`

	markStaleByTenantQuery = `
UPDATE communities SET is_stale = true
WHERE tenant_id = @tenant_id
RETURNING id`

	selectOrphanEntitiesQuery = `
SELECT e.name FROM entities e
WHERE e.tenant_id = @tenant_id
  AND NOT EXISTS (
    SELECT 1 FROM community_members m WHERE m.entity_name = e.name AND m.tenant_id = e.tenant_id
  )
ORDER BY e.name`

	failStalledQuery = `
UPDATE communities SET status = 'failed', error = @error
WHERE tenant_id = @tenant_id AND status = 'processing' AND updated_at < @cutoff
RETURNING id`
)

// Lifecycle maintains community state between detection runs: staleness
// propagation after graph writes, orphan cleanup and stalled-job recovery.
type Lifecycle struct {
	db           graphdb.Client
	stalledAfter time.Duration
}

// NewLifecycleParams configures a Lifecycle.
type NewLifecycleParams struct {
	DB           graphdb.Client
	StalledAfter time.Duration
}

// NewLifecycle creates a Lifecycle manager.
func NewLifecycle(params NewLifecycleParams) (*Lifecycle, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("lifecycle requires a graph client")
	}
	stalledAfter := params.StalledAfter
	if stalledAfter <= 0 {
		stalledAfter = DefaultStalledAfter
	}
	return &Lifecycle{db: params.DB, stalledAfter: stalledAfter}, nil
}

// MarkStaleByEntities flags every community containing any of the given
// entity ids. Called after graph writes that touch entities.
func (l *Lifecycle) MarkStaleByEntities(ctx context.Context, tenantID string, entityIDs []string) (int, error) {
	if len(entityIDs) == 0 {
		return 0, nil
	}
	rows, err := l.db.ExecuteWrite(ctx, markStaleByEntityIDsQuery, map[string]any{
		"tenant_id":  tenantID,
		"entity_ids": entityIDs,
	})
	if err != nil {
		return 0, fmt.Errorf("marking communities stale: %w", err)
	}
	return len(rows), nil
}

// MarkStaleByEntityNames flags every community containing any of the given
// canonical entity names.
func (l *Lifecycle) MarkStaleByEntityNames(ctx context.Context, tenantID string, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	rows, err := l.db.ExecuteWrite(ctx, markStaleByEntityNamesQuery, map[string]any{
		"tenant_id":    tenantID,
		"entity_names": names,
	})
	if err != nil {
		return 0, fmt.Errorf("marking communities stale: %w", err)
	}
	return len(rows), nil
}

// MarkStaleByTenant invalidates every community of the tenant.
func (l *Lifecycle) MarkStaleByTenant(ctx context.Context, tenantID string) (int, error) {
	rows, err := l.db.ExecuteWrite(ctx, markStaleByTenantQuery, map[string]any{
		"tenant_id": tenantID,
	})
	if err != nil {
		return 0, fmt.Errorf("marking tenant communities stale: %w", err)
	}
	return len(rows), nil
}

// CleanupOrphans attaches every entity without a community membership to a
// synthetic level-0 "Uncategorized" community, so that after cleanup every
// entity belongs to at least one level-0 community. Returns how many
// entities were attached.
func (l *Lifecycle) CleanupOrphans(ctx context.Context, tenantID string) (int, error) {
	rows, err := l.db.ExecuteRead(ctx, selectOrphanEntitiesQuery, map[string]any{
		"tenant_id": tenantID,
	})
	if err != nil {
		return 0, fmt.Errorf("finding orphan entities: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	// Deterministic id so repeated cleanups reuse the same community.
	uncategorizedID := "uncategorized:" + tenantID

	statements := []graphdb.Statement{{
		Query: upsertCommunityQuery,
		Params: map[string]any{
			"id":        uncategorizedID,
			"tenant_id": tenantID,
			"level":     0,
			"title":     UncategorizedTitle,
			"status":    StatePending,
		},
	}}
	attached := 0
	for _, row := range rows {
		name, ok := row["name"].(string)
		if !ok || name == "" {
			continue
		}
		statements = append(statements, graphdb.Statement{
			Query: linkMemberQuery,
			Params: map[string]any{
				"community_id": uncategorizedID,
				"tenant_id":    tenantID,
				"entity_name":  name,
			},
		})
		attached++
	}

	if err := l.db.ExecuteWriteBatch(ctx, statements); err != nil {
		return 0, fmt.Errorf("attaching orphan entities: %w", err)
	}

	logger.Info("[Community] Orphan cleanup complete", "tenant", tenantID, "attached", attached)
	return attached, nil
}

// DetectStalledJobs forces communities stuck in processing beyond the
// timeout into failed, unblocking retries. Returns how many were failed.
func (l *Lifecycle) DetectStalledJobs(ctx context.Context, tenantID string) (int, error) {
	cutoff := time.Now().Add(-l.stalledAfter)
	rows, err := l.db.ExecuteWrite(ctx, failStalledQuery, map[string]any{
		"tenant_id": tenantID,
		"cutoff":    cutoff,
		"error":     fmt.Sprintf("community detection stalled for more than %s", l.stalledAfter),
	})
	if err != nil {
		return 0, fmt.Errorf("failing stalled communities: %w", err)
	}
	if len(rows) > 0 {
		logger.Warn("[Community] Forced stalled communities to failed",
			"tenant", tenantID, "count", len(rows))
	}
	return len(rows), nil
}

package community

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/graphweave/graphweave/pkg/graphdb"
	"github.com/graphweave/graphweave/pkg/logger"
)

// Detection run outcomes.
const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
)

// Persisted community states. Detection writes pending; the summarizer
// claims pending communities as processing and finishes them as ready or
// failed.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateReady      = "ready"
	StateFailed     = "failed"
)

const (
	defaultResolution = 1.0
	defaultMaxLevels  = 3
	defaultSeed       = 42
	persistBatchSize  = 100
	communityIDSize   = 21
)

const (
	selectEntitiesQuery = `
SELECT name FROM entities
WHERE tenant_id = @tenant_id
ORDER BY name`

	selectRelationshipsQuery = `
SELECT source_entity, target_entity, strength FROM relationships
WHERE tenant_id = @tenant_id
ORDER BY source_entity, target_entity`

	upsertCommunityQuery = `
INSERT INTO communities (id, tenant_id, level, title, status, is_stale)
VALUES (@id, @tenant_id, @level, @title, @status, false)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title, status = EXCLUDED.status, is_stale = false`

	linkMemberQuery = `
INSERT INTO community_members (community_id, tenant_id, entity_name)
VALUES (@community_id, @tenant_id, @entity_name)
ON CONFLICT DO NOTHING`

	linkChildQuery = `
INSERT INTO community_children (parent_id, child_id, tenant_id)
VALUES (@parent_id, @child_id, @tenant_id)
ON CONFLICT DO NOTHING`
)

// DetectResult summarizes one detection run.
type DetectResult struct {
	Status         string
	Levels         int
	CommunityCount int
}

// levelCommunity is one detected community before persistence. Members are
// entity names at level 0 and child community ids above.
type levelCommunity struct {
	id      string
	level   int
	members []string
}

// Detector builds the hierarchical community structure of a tenant's entity
// graph with resolution-parameterized modularity clustering. A fixed seed
// makes runs reproducible for identical input graphs.
type Detector struct {
	db         graphdb.Client
	resolution float64
	maxLevels  int
	seed       int64
	batchSize  int
}

// NewDetectorParams configures a Detector. Zero values fall back to
// defaults.
type NewDetectorParams struct {
	DB         graphdb.Client
	Resolution float64
	MaxLevels  int
	Seed       int64
	BatchSize  int
}

// NewDetector creates a Detector.
func NewDetector(params NewDetectorParams) (*Detector, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("detector requires a graph client")
	}
	if params.Resolution <= 0 {
		params.Resolution = defaultResolution
	}
	if params.MaxLevels <= 0 {
		params.MaxLevels = defaultMaxLevels
	}
	if params.Seed == 0 {
		params.Seed = defaultSeed
	}
	if params.BatchSize <= 0 {
		params.BatchSize = persistBatchSize
	}
	return &Detector{
		db:         params.DB,
		resolution: params.Resolution,
		maxLevels:  params.MaxLevels,
		seed:       params.Seed,
		batchSize:  params.BatchSize,
	}, nil
}

// Detect fetches the tenant's entity graph, clusters it level by level and
// persists the full hierarchy in batched writes. An empty entity set
// short-circuits with a skipped status; isolated entities become singleton
// communities.
func (d *Detector) Detect(ctx context.Context, tenantID string) (*DetectResult, error) {
	graph, err := d.fetchGraph(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(graph.nodes) == 0 {
		logger.Info("[Community] No entities, skipping detection", "tenant", tenantID)
		return &DetectResult{Status: StatusSkipped}, nil
	}

	levels, err := d.buildHierarchy(graph)
	if err != nil {
		return nil, err
	}

	if err := d.persist(ctx, tenantID, levels); err != nil {
		return nil, err
	}

	total := 0
	for _, level := range levels {
		total += len(level)
	}
	logger.Info("[Community] Detection complete",
		"tenant", tenantID, "levels", len(levels), "communities", total)

	return &DetectResult{
		Status:         StatusCompleted,
		Levels:         len(levels),
		CommunityCount: total,
	}, nil
}

func (d *Detector) fetchGraph(ctx context.Context, tenantID string) (*weightedGraph, error) {
	graph := newWeightedGraph()
	params := map[string]any{"tenant_id": tenantID}

	entities, err := d.db.ExecuteRead(ctx, selectEntitiesQuery, params)
	if err != nil {
		return nil, fmt.Errorf("fetching entities: %w", err)
	}
	for _, row := range entities {
		if name, ok := row["name"].(string); ok && name != "" {
			graph.addNode(name)
		}
	}

	relationships, err := d.db.ExecuteRead(ctx, selectRelationshipsQuery, params)
	if err != nil {
		return nil, fmt.Errorf("fetching relationships: %w", err)
	}
	for _, row := range relationships {
		source, _ := row["source_entity"].(string)
		target, _ := row["target_entity"].(string)
		if source == "" || target == "" || source == target {
			continue
		}
		weight := 1.0
		if strength, ok := toFloat(row["strength"]); ok && strength > 0 {
			weight = strength
		}
		graph.addEdge(source, target, weight)
	}

	return graph, nil
}

// buildHierarchy clusters level 0 over the entity graph, then repeatedly
// clusters the induced community graph. It stops at maxLevels or as soon as
// a level produces exactly as many clusters as its input has nodes, which
// means no further merging occurred.
func (d *Detector) buildHierarchy(graph *weightedGraph) ([][]levelCommunity, error) {
	rng := rand.New(rand.NewSource(d.seed))

	var levels [][]levelCommunity
	current := graph

	for level := 0; level < d.maxLevels; level++ {
		labels := clusterOnce(current, d.resolution, rng)

		clusterCount := 0
		for _, label := range labels {
			if label >= clusterCount {
				clusterCount = label + 1
			}
		}
		if level > 0 && clusterCount == len(current.nodes) {
			break
		}

		communities := make([]levelCommunity, clusterCount)
		ids := make([]string, clusterCount)
		for i := range communities {
			id, err := gonanoid.New(communityIDSize)
			if err != nil {
				return nil, fmt.Errorf("generating community id: %w", err)
			}
			ids[i] = id
			communities[i] = levelCommunity{id: id, level: level}
		}
		for node, label := range labels {
			communities[label].members = append(communities[label].members, current.nodes[node])
		}

		levels = append(levels, communities)

		if clusterCount == len(current.nodes) {
			// Level 0 converged immediately; an induced pass cannot merge
			// further.
			break
		}
		current = buildInduced(current, labels, ids)
	}

	return levels, nil
}

func (d *Detector) persist(ctx context.Context, tenantID string, levels [][]levelCommunity) error {
	var statements []graphdb.Statement

	flush := func(force bool) error {
		if len(statements) == 0 || (!force && len(statements) < d.batchSize) {
			return nil
		}
		if err := d.db.ExecuteWriteBatch(ctx, statements); err != nil {
			return fmt.Errorf("persisting communities: %w", err)
		}
		statements = statements[:0]
		return nil
	}

	for _, level := range levels {
		for _, community := range level {
			statements = append(statements, graphdb.Statement{
				Query: upsertCommunityQuery,
				Params: map[string]any{
					"id":        community.id,
					"tenant_id": tenantID,
					"level":     community.level,
					"title":     communityTitle(community),
					"status":    StatePending,
				},
			})
			if err := flush(false); err != nil {
				return err
			}

			for _, member := range community.members {
				query := linkMemberQuery
				params := map[string]any{
					"community_id": community.id,
					"tenant_id":    tenantID,
					"entity_name":  member,
				}
				if community.level > 0 {
					query = linkChildQuery
					params = map[string]any{
						"parent_id": community.id,
						"child_id":  member,
						"tenant_id": tenantID,
					}
				}
				statements = append(statements, graphdb.Statement{Query: query, Params: params})

				if err := flush(false); err != nil {
					return err
				}
			}

			if err := flush(false); err != nil {
				return err
			}
		}
	}

	return flush(true)
}

func communityTitle(c levelCommunity) string {
	const sample = 3
	members := c.members
	suffix := ""
	if len(members) > sample {
		suffix = fmt.Sprintf(" +%d", len(members)-sample)
		members = members[:sample]
	}
	return fmt.Sprintf("L%d: %s%s", c.level, strings.Join(members, ", "), suffix)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

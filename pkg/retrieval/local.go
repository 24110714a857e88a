package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/graphweave/graphweave/pkg/ai"
	"github.com/graphweave/graphweave/pkg/graphdb"
	"github.com/graphweave/graphweave/pkg/vector"
)

const (
	defaultLocalLimit   = 10
	defaultSeedLimit    = 5
	defaultMaxDepth     = 2
	traversalFanout     = 50
	chunksPerEntityPool = 25
)

const (
	selectNeighborsQuery = `
SELECT source_entity, target_entity, relationship_type, description, strength
FROM relationships
WHERE tenant_id = @tenant_id
  AND (source_entity = ANY(@names) OR target_entity = ANY(@names))
ORDER BY strength DESC
LIMIT @limit`

	selectEntityChunksQuery = `
SELECT DISTINCT ch.id, ch.content
FROM chunks ch
JOIN entity_mentions em ON em.chunk_id = ch.id AND em.tenant_id = ch.tenant_id
WHERE ch.tenant_id = @tenant_id AND em.entity_name = ANY(@names)
LIMIT @limit`

	selectEntityCommunitiesQuery = `
SELECT DISTINCT c.id, c.summary
FROM communities c
JOIN community_members m ON m.community_id = c.id
WHERE c.tenant_id = @tenant_id AND c.level = 0 AND m.entity_name = ANY(@names)`
)

// LocalStrategy retrieves around specific entities: entity-embedding seed
// search, bounded-depth traversal outward, and fusion of vector, graph and
// community evidence under adaptive weights.
type LocalStrategy struct {
	llm   ai.Client
	store vector.Store
	db    graphdb.Client
}

// NewLocalStrategyParams configures a LocalStrategy.
type NewLocalStrategyParams struct {
	LLM   ai.Client
	Store vector.Store
	DB    graphdb.Client
}

// NewLocalStrategy creates a LocalStrategy.
func NewLocalStrategy(params NewLocalStrategyParams) (*LocalStrategy, error) {
	if params.LLM == nil {
		return nil, fmt.Errorf("local strategy requires an AI client")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("local strategy requires a vector store")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("local strategy requires a graph client")
	}
	return &LocalStrategy{llm: params.LLM, store: params.Store, db: params.DB}, nil
}

func (s *LocalStrategy) Retrieve(
	ctx context.Context,
	query string,
	tenantID string,
	opts Options,
) (*RetrievalResult, error) {
	start := time.Now()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLocalLimit
	}
	seedLimit := opts.SeedLimit
	if seedLimit <= 0 {
		seedLimit = defaultSeedLimit
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	embedding, err := s.llm.Embed(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	seeds, err := s.store.Search(ctx, embedding, tenantID, seedLimit, nil, vector.CollectionEntities)
	if err != nil {
		return nil, fmt.Errorf("searching entity embeddings: %w", err)
	}

	seedNames := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		seedNames = append(seedNames, seed.ID)
	}

	var candidates []Candidate

	graphCandidates, reached, err := s.traverse(ctx, tenantID, seedNames, maxDepth)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, graphCandidates...)

	chunkCandidates, err := s.entityChunks(ctx, tenantID, reached)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, chunkCandidates...)

	communityCandidates, err := s.entityCommunities(ctx, tenantID, seedNames)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, communityCandidates...)

	vectorMatches, err := s.store.Search(ctx, embedding, tenantID, limit, nil, vector.CollectionChunks)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	candidates = append(candidates, matchesToCandidates(vectorMatches, SourceVector)...)

	fused := fuseCandidates(candidates, adaptiveWeights(query, opts.TenantConfig, opts.WeightsOverride), limit)

	return &RetrievalResult{
		Mode:       ModeLocal,
		Query:      query,
		Candidates: fused,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// traverse walks outward from the seed entities up to maxDepth hops,
// scoring relationship evidence by strength decayed per hop. Returns the
// relationship candidates and every entity name reached.
func (s *LocalStrategy) traverse(
	ctx context.Context,
	tenantID string,
	seedNames []string,
	maxDepth int,
) ([]Candidate, []string, error) {
	if len(seedNames) == 0 {
		return nil, nil, nil
	}

	visited := map[string]struct{}{}
	for _, name := range seedNames {
		visited[name] = struct{}{}
	}
	frontier := seedNames

	var candidates []Candidate
	seenEdges := map[string]struct{}{}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		rows, err := s.db.ExecuteRead(ctx, selectNeighborsQuery, map[string]any{
			"tenant_id": tenantID,
			"names":     frontier,
			"limit":     traversalFanout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("traversing depth %d: %w", depth, err)
		}

		decay := 1.0 / float64(depth)
		var next []string
		for _, row := range rows {
			source, _ := row["source_entity"].(string)
			target, _ := row["target_entity"].(string)
			relType, _ := row["relationship_type"].(string)
			description, _ := row["description"].(string)
			strength, _ := row["strength"].(float64)
			if strength <= 0 {
				strength = 0.5
			}

			edgeID := source + "->" + target + ":" + relType
			if _, seen := seenEdges[edgeID]; seen {
				continue
			}
			seenEdges[edgeID] = struct{}{}

			candidates = append(candidates, Candidate{
				ID:      edgeID,
				Source:  SourceGraph,
				Score:   strength * decay,
				Content: fmt.Sprintf("%s %s %s: %s", source, relType, target, description),
				Metadata: map[string]any{
					"source_entity": source,
					"target_entity": target,
					"depth":         depth,
				},
			})

			for _, name := range []string{source, target} {
				if _, ok := visited[name]; !ok {
					visited[name] = struct{}{}
					next = append(next, name)
				}
			}
		}
		frontier = next
	}

	reached := make([]string, 0, len(visited))
	for name := range visited {
		reached = append(reached, name)
	}
	return candidates, reached, nil
}

func (s *LocalStrategy) entityChunks(ctx context.Context, tenantID string, names []string) ([]Candidate, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.db.ExecuteRead(ctx, selectEntityChunksQuery, map[string]any{
		"tenant_id": tenantID,
		"names":     names,
		"limit":     chunksPerEntityPool,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching entity chunks: %w", err)
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		content, _ := row["content"].(string)
		candidates = append(candidates, Candidate{
			ID:      id,
			Source:  SourceGraph,
			Score:   0.5,
			Content: content,
		})
	}
	return candidates, nil
}

func (s *LocalStrategy) entityCommunities(ctx context.Context, tenantID string, names []string) ([]Candidate, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.db.ExecuteRead(ctx, selectEntityCommunitiesQuery, map[string]any{
		"tenant_id": tenantID,
		"names":     names,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching entity communities: %w", err)
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		summary, _ := row["summary"].(string)
		if summary == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:      "community:" + id,
			Source:  SourceCommunity,
			Score:   1.0,
			Content: summary,
			Metadata: map[string]any{
				"community_id": id,
			},
		})
	}
	return candidates, nil
}

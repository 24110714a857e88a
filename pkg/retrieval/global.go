package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graphweave/graphweave/pkg/ai"
	"github.com/graphweave/graphweave/pkg/common"
	"github.com/graphweave/graphweave/pkg/logger"
	"github.com/graphweave/graphweave/pkg/vector"
)

const (
	defaultCommunityLimit = 8
	defaultMaxKeyPoints   = 20
	mapParallelism        = 4
)

// keyPoint is one scored statement extracted from a community report.
type keyPoint struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`

	communityID string
}

type mapResponse struct {
	Points []keyPoint `json:"points"`
}

// GlobalStrategy answers corpus-wide questions with a map/reduce over
// community reports: shortlist communities by summary similarity, extract
// key points from each in parallel, then synthesize one answer citing the
// contributing communities.
type GlobalStrategy struct {
	llm   ai.Client
	store vector.Store
}

// NewGlobalStrategyParams configures a GlobalStrategy.
type NewGlobalStrategyParams struct {
	LLM   ai.Client
	Store vector.Store
}

// NewGlobalStrategy creates a GlobalStrategy.
func NewGlobalStrategy(params NewGlobalStrategyParams) (*GlobalStrategy, error) {
	if params.LLM == nil {
		return nil, fmt.Errorf("global strategy requires an AI client")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("global strategy requires a vector store")
	}
	return &GlobalStrategy{llm: params.LLM, store: params.Store}, nil
}

func (s *GlobalStrategy) Retrieve(
	ctx context.Context,
	query string,
	tenantID string,
	opts Options,
) (*RetrievalResult, error) {
	start := time.Now()

	communityLimit := opts.CommunityLimit
	if communityLimit <= 0 {
		communityLimit = defaultCommunityLimit
	}
	maxKeyPoints := opts.MaxKeyPoints
	if maxKeyPoints <= 0 {
		maxKeyPoints = defaultMaxKeyPoints
	}

	result := &RetrievalResult{Mode: ModeGlobal, Query: query}

	embedding, err := s.llm.Embed(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	shortlist, err := s.store.Search(ctx, embedding, tenantID, communityLimit, nil, vector.CollectionCommunities)
	if err != nil {
		return nil, fmt.Errorf("searching community summaries: %w", err)
	}
	if len(shortlist) == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	points := s.mapPhase(ctx, query, shortlist, result)
	if len(points) == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Score > points[j].Score })
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}

	answer, err := s.reducePhase(ctx, query, points, result)
	if err != nil {
		return nil, err
	}
	result.Answer = answer

	contributing := map[string]struct{}{}
	for _, point := range points {
		contributing[point.communityID] = struct{}{}
	}
	for id := range contributing {
		result.Communities = append(result.Communities, id)
	}
	sort.Strings(result.Communities)

	for _, point := range points {
		result.Candidates = append(result.Candidates, Candidate{
			ID:      point.communityID + ":" + firstWords(point.Text, 6),
			Source:  SourceCommunity,
			Score:   point.Score / 100,
			Content: point.Text,
			Metadata: map[string]any{
				"community_id": point.communityID,
			},
		})
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// mapPhase extracts key points per shortlisted community in parallel. A
// failed or unparseable map call drops that community, it never fails the
// whole retrieval.
func (s *GlobalStrategy) mapPhase(
	ctx context.Context,
	query string,
	shortlist []vector.Match,
	result *RetrievalResult,
) []keyPoint {
	var mu sync.Mutex
	var points []keyPoint

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(mapParallelism)

	for _, community := range shortlist {
		group.Go(func() error {
			prompt := fmt.Sprintf(ai.GlobalMapPrompt, community.ID, community.Content, query)
			response, err := s.llm.Generate(groupCtx, prompt)
			if err != nil {
				logger.Warn("[Global] Map call failed, dropping community",
					"community", community.ID, "error", err)
				return nil
			}

			mu.Lock()
			accumulateResponseUsage(&result.Usage, response)
			mu.Unlock()

			var parsed mapResponse
			if err := ai.UnmarshalFlexible(response.Text, &parsed); err != nil {
				logger.Warn("[Global] Unparseable map output, dropping community",
					"community", community.ID, "error", err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, point := range parsed.Points {
				if point.Text == "" || point.Score <= 0 {
					continue
				}
				point.communityID = community.ID
				points = append(points, point)
			}
			return nil
		})
	}

	// Map errors are absorbed above; Wait only propagates ctx cancellation.
	if err := group.Wait(); err != nil {
		logger.Warn("[Global] Map phase interrupted", "error", err)
	}

	return points
}

func (s *GlobalStrategy) reducePhase(
	ctx context.Context,
	query string,
	points []keyPoint,
	result *RetrievalResult,
) (string, error) {
	lines := make([]string, 0, len(points))
	for _, point := range points {
		lines = append(lines, fmt.Sprintf("[%s] %.0f: %s", point.communityID, point.Score, point.Text))
	}

	response, err := s.llm.Generate(ctx, fmt.Sprintf(ai.GlobalReducePrompt, strings.Join(lines, "\n"), query))
	if err != nil {
		return "", fmt.Errorf("reduce synthesis failed: %w", err)
	}
	accumulateResponseUsage(&result.Usage, response)

	return strings.TrimSpace(response.Text), nil
}

func accumulateResponseUsage(usage *common.Usage, response *ai.Response) {
	usage.Add(common.Usage{
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		TotalTokens:  response.Usage.TotalTokens,
		CostEstimate: response.CostEstimate,
		LLMCalls:     1,
		Model:        response.Model,
		Provider:     response.Provider,
	})
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

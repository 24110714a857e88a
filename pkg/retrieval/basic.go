package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/graphweave/graphweave/pkg/ai"
	"github.com/graphweave/graphweave/pkg/vector"
)

const defaultBasicLimit = 10

// BasicStrategy answers with plain similarity search over the tenant's
// chunk collection, optionally hybrid dense+sparse.
type BasicStrategy struct {
	llm   ai.Client
	store vector.Store
}

// NewBasicStrategyParams configures a BasicStrategy.
type NewBasicStrategyParams struct {
	LLM   ai.Client
	Store vector.Store
}

// NewBasicStrategy creates a BasicStrategy.
func NewBasicStrategy(params NewBasicStrategyParams) (*BasicStrategy, error) {
	if params.LLM == nil {
		return nil, fmt.Errorf("basic strategy requires an AI client")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("basic strategy requires a vector store")
	}
	return &BasicStrategy{llm: params.LLM, store: params.Store}, nil
}

func (s *BasicStrategy) Retrieve(
	ctx context.Context,
	query string,
	tenantID string,
	opts Options,
) (*RetrievalResult, error) {
	start := time.Now()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultBasicLimit
	}

	embedding, err := s.llm.Embed(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var matches []vector.Match
	if opts.UseHybrid {
		matches, err = s.store.HybridSearch(ctx, embedding, query, tenantID, limit)
	} else {
		matches, err = s.store.Search(ctx, embedding, tenantID, limit, nil, vector.CollectionChunks)
	}
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	result := &RetrievalResult{
		Mode:       ModeBasic,
		Query:      query,
		Candidates: matchesToCandidates(matches, SourceVector),
		DurationMs: time.Since(start).Milliseconds(),
	}
	return result, nil
}

func matchesToCandidates(matches []vector.Match, source string) []Candidate {
	candidates := make([]Candidate, 0, len(matches))
	for _, match := range matches {
		candidates = append(candidates, Candidate{
			ID:       match.ID,
			Source:   source,
			Score:    match.Score,
			Content:  match.Content,
			Metadata: match.Metadata,
		})
	}
	return candidates
}

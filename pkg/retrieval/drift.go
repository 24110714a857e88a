package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graphweave/graphweave/pkg/ai"
	"github.com/graphweave/graphweave/pkg/logger"
)

const (
	defaultMaxIterations = 2
	defaultMaxFollowUps  = 3
	driftContextMaxChars = 16000
	subQueryParallelism  = 3
)

type followUpResponse struct {
	FollowUps []string `json:"follow_ups"`
	Done      bool     `json:"done"`
}

// DriftStrategy answers multi-hop questions iteratively: a primer retrieval
// establishes context, then a bounded loop asks the model for follow-up
// questions, runs them as parallel sub-retrievals and folds new evidence
// back in, and a final pass synthesizes the grounded answer.
//
// Termination is guaranteed three ways: the iteration cap, the model's done
// signal, and a no-new-information check. The loop never issues more than
// maxIterations * maxFollowUps sub-queries.
type DriftStrategy struct {
	llm    ai.Client
	primer Strategy
}

// NewDriftStrategyParams configures a DriftStrategy. Primer is the strategy
// run for the initial context and every sub-query, typically local search.
type NewDriftStrategyParams struct {
	LLM    ai.Client
	Primer Strategy
}

// NewDriftStrategy creates a DriftStrategy.
func NewDriftStrategy(params NewDriftStrategyParams) (*DriftStrategy, error) {
	if params.LLM == nil {
		return nil, fmt.Errorf("drift strategy requires an AI client")
	}
	if params.Primer == nil {
		return nil, fmt.Errorf("drift strategy requires a primer strategy")
	}
	return &DriftStrategy{llm: params.LLM, primer: params.Primer}, nil
}

func (s *DriftStrategy) Retrieve(
	ctx context.Context,
	query string,
	tenantID string,
	opts Options,
) (*RetrievalResult, error) {
	start := time.Now()

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	maxFollowUps := opts.MaxFollowUps
	if maxFollowUps <= 0 {
		maxFollowUps = defaultMaxFollowUps
	}

	result := &RetrievalResult{Mode: ModeDrift, Query: query}

	primer, err := s.primer.Retrieve(ctx, query, tenantID, opts)
	if err != nil {
		return nil, fmt.Errorf("primer retrieval: %w", err)
	}
	result.Usage.Add(primer.Usage)

	seen := map[string]struct{}{}
	for _, candidate := range primer.Candidates {
		seen[candidate.ID] = struct{}{}
		result.Candidates = append(result.Candidates, candidate)
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		followUps, done := s.askFollowUps(ctx, query, result, maxFollowUps)
		if done || len(followUps) == 0 {
			logger.Debug("[Drift] Model signaled completion", "iteration", iteration)
			break
		}
		if len(followUps) > maxFollowUps {
			followUps = followUps[:maxFollowUps]
		}

		added := s.runSubQueries(ctx, followUps, tenantID, opts, seen, result)
		logger.Debug("[Drift] Iteration complete",
			"iteration", iteration, "follow_ups", len(followUps), "new_candidates", added)
		if added == 0 {
			break
		}
	}

	answer, err := s.synthesize(ctx, query, result)
	if err != nil {
		return nil, err
	}
	result.Answer = answer

	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// askFollowUps requests the next sub-questions. Any model or parse failure
// reads as "done": the loop stops rather than retrying its way past the
// budget.
func (s *DriftStrategy) askFollowUps(
	ctx context.Context,
	query string,
	result *RetrievalResult,
	maxFollowUps int,
) ([]string, bool) {
	prompt := fmt.Sprintf(ai.DriftFollowUpPrompt, buildDriftContext(result.Candidates), query, maxFollowUps)
	response, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		logger.Warn("[Drift] Follow-up call failed, stopping iteration", "error", err)
		return nil, true
	}
	accumulateResponseUsage(&result.Usage, response)

	var parsed followUpResponse
	if err := ai.UnmarshalFlexible(response.Text, &parsed); err != nil {
		logger.Warn("[Drift] Unparseable follow-up output, stopping iteration", "error", err)
		return nil, true
	}

	return parsed.FollowUps, parsed.Done
}

// runSubQueries executes follow-ups in parallel and merges unseen
// candidates into the result. Returns how many new candidates arrived.
func (s *DriftStrategy) runSubQueries(
	ctx context.Context,
	followUps []string,
	tenantID string,
	opts Options,
	seen map[string]struct{},
	result *RetrievalResult,
) int {
	var mu sync.Mutex
	added := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(subQueryParallelism)

	for _, followUp := range followUps {
		group.Go(func() error {
			sub, err := s.primer.Retrieve(groupCtx, followUp, tenantID, opts)
			if err != nil {
				logger.Warn("[Drift] Sub-query failed", "query", followUp, "error", err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			result.Usage.Add(sub.Usage)
			for _, candidate := range sub.Candidates {
				if _, exists := seen[candidate.ID]; exists {
					continue
				}
				seen[candidate.ID] = struct{}{}
				result.Candidates = append(result.Candidates, candidate)
				added++
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logger.Warn("[Drift] Sub-query phase interrupted", "error", err)
	}

	return added
}

func (s *DriftStrategy) synthesize(ctx context.Context, query string, result *RetrievalResult) (string, error) {
	response, err := s.llm.Generate(ctx, fmt.Sprintf(ai.DriftSynthesisPrompt, buildDriftContext(result.Candidates), query))
	if err != nil {
		return "", fmt.Errorf("drift synthesis failed: %w", err)
	}
	accumulateResponseUsage(&result.Usage, response)

	return strings.TrimSpace(response.Text), nil
}

// buildDriftContext concatenates candidate contents newest-last, capped so
// prompts stay bounded no matter how many iterations ran.
func buildDriftContext(candidates []Candidate) string {
	var b strings.Builder
	for _, candidate := range candidates {
		if candidate.Content == "" {
			continue
		}
		if b.Len()+len(candidate.Content) > driftContextMaxChars {
			break
		}
		b.WriteString("- ")
		b.WriteString(candidate.Content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "(no context retrieved)"
	}
	return b.String()
}

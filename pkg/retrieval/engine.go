package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/graphweave/graphweave/pkg/logger"
)

// Engine is the retrieval pipeline front door: route, short-circuit
// structured queries, dispatch to the selected strategy, cache the result.
type Engine struct {
	router     *Router
	structured *StructuredExecutor
	strategies map[Mode]Strategy
	cache      *ResultCache
	useLLM     bool
}

// NewEngineParams configures an Engine. Cache is optional.
type NewEngineParams struct {
	Router     *Router
	Structured *StructuredExecutor
	Basic      Strategy
	Local      Strategy
	Global     Strategy
	Drift      Strategy
	Cache      *ResultCache
	UseLLM     bool
}

// NewEngine creates an Engine.
func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Router == nil {
		return nil, fmt.Errorf("engine requires a router")
	}
	if params.Structured == nil {
		return nil, fmt.Errorf("engine requires a structured executor")
	}
	strategies := map[Mode]Strategy{
		ModeBasic:  params.Basic,
		ModeLocal:  params.Local,
		ModeGlobal: params.Global,
		ModeDrift:  params.Drift,
	}
	for mode, strategy := range strategies {
		if strategy == nil {
			return nil, fmt.Errorf("engine requires a %s strategy", mode)
		}
	}
	return &Engine{
		router:     params.Router,
		structured: params.Structured,
		strategies: strategies,
		cache:      params.Cache,
		useLLM:     params.UseLLM,
	}, nil
}

// Retrieve answers one query. It always returns a result object; empty
// evidence is a valid outcome, not an error.
func (e *Engine) Retrieve(
	ctx context.Context,
	query string,
	tenantID string,
	explicit Mode,
	opts Options,
) (*RetrievalResult, error) {
	mode := e.router.Route(ctx, query, explicit, e.useLLM)
	logger.Info("[Retrieval] Routed query", "tenant", tenantID, "mode", mode)

	if mode == ModeStructured {
		start := time.Now()
		structured := e.structured.TryExecute(ctx, query, tenantID)
		if structured != nil {
			return structuredToResult(query, structured, start), nil
		}
		// Routed structured but the compiler disagreed; fall back.
		mode = ModeBasic
	}

	if e.cache != nil {
		if cached, found := e.cache.Get(ctx, tenantID, mode, query); found {
			logger.Debug("[Retrieval] Result cache hit", "tenant", tenantID, "mode", mode)
			cached.Usage.CacheHit = true
			return cached, nil
		}
	}

	result, err := e.strategies[mode].Retrieve(ctx, query, tenantID, opts)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Set(ctx, tenantID, mode, query, result)
	}
	return result, nil
}

func structuredToResult(query string, structured *StructuredResult, start time.Time) *RetrievalResult {
	result := &RetrievalResult{
		Mode:       ModeStructured,
		Query:      query,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if !structured.Success {
		result.Answer = fmt.Sprintf("query failed: %s", structured.Error)
		return result
	}

	if structured.Count != nil {
		result.Answer = fmt.Sprintf("%d", *structured.Count)
		return result
	}
	for i, row := range structured.Rows {
		result.Candidates = append(result.Candidates, Candidate{
			ID:       fmt.Sprintf("%s:%d", structured.QueryType, i),
			Source:   SourceGraph,
			Score:    1.0,
			Metadata: map[string]any(row),
		})
	}
	return result
}

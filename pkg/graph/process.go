package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graphweave/graphweave/pkg/common"
	"github.com/graphweave/graphweave/pkg/governor"
	"github.com/graphweave/graphweave/pkg/logger"
	"github.com/graphweave/graphweave/pkg/tenant"
)

// Writer receives the extraction result of each chunk as soon as that chunk
// finishes. Calls arrive concurrently and in no particular order;
// implementations must be safe for concurrent use.
type Writer interface {
	WriteChunkExtraction(ctx context.Context, chunk common.Chunk, result *common.ExtractionResult) error
}

// BatchResult summarizes one extraction batch.
type BatchResult struct {
	ChunksProcessed int
	ChunksFailed    int
	CacheHits       int
	Usage           common.Usage
}

// Coordinator fans extraction out over a chunk batch. The governor is the
// only serialization point: every chunk acquires an admission slot before
// its extraction starts and feeds latency and error signals back on
// release.
type Coordinator struct {
	extractor *Extractor
	governor  *governor.Governor
	writer    Writer
}

// NewCoordinatorParams configures a Coordinator.
type NewCoordinatorParams struct {
	Extractor *Extractor
	Governor  *governor.Governor
	Writer    Writer
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(params NewCoordinatorParams) (*Coordinator, error) {
	if params.Extractor == nil {
		return nil, fmt.Errorf("coordinator requires an extractor")
	}
	if params.Governor == nil {
		return nil, fmt.Errorf("coordinator requires a governor")
	}
	if params.Writer == nil {
		return nil, fmt.Errorf("coordinator requires a graph writer")
	}
	return &Coordinator{
		extractor: params.Extractor,
		governor:  params.Governor,
		writer:    params.Writer,
	}, nil
}

// ProcessChunks extracts every chunk in the batch and hands each result to
// the writer as it completes. Model-call failures inside a chunk are soft
// and counted in the result; configuration errors and writer failures abort
// the batch.
func (c *Coordinator) ProcessChunks(
	ctx context.Context,
	chunks []common.Chunk,
	cfg *tenant.Config,
) (*BatchResult, error) {
	result := &BatchResult{}
	if len(chunks) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)

	for _, chunk := range chunks {
		group.Go(func() error {
			if _, err := c.governor.Acquire(groupCtx); err != nil {
				return err
			}

			start := time.Now()
			extraction, err := c.extractor.Extract(groupCtx, chunk, cfg)
			latencyMs := time.Since(start).Milliseconds()

			hadError := err != nil || (extraction != nil && len(extraction.CallErrors) > 0)
			c.governor.Release(latencyMs, hadError)

			if err != nil {
				return fmt.Errorf("chunk %s: %w", chunk.ID, err)
			}

			if writeErr := c.writer.WriteChunkExtraction(groupCtx, chunk, extraction); writeErr != nil {
				return fmt.Errorf("writing chunk %s: %w", chunk.ID, writeErr)
			}

			mu.Lock()
			defer mu.Unlock()
			result.ChunksProcessed++
			if len(extraction.CallErrors) > 0 {
				result.ChunksFailed++
			}
			if extraction.Usage.CacheHit {
				result.CacheHits++
			}
			result.Usage.Add(extraction.Usage)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}

	logger.Info("[Extract] Batch complete",
		"tenant", cfg.TenantID(),
		"chunks", result.ChunksProcessed,
		"failed", result.ChunksFailed,
		"cache_hits", result.CacheHits,
		"llm_calls", result.Usage.LLMCalls,
		"total_tokens", result.Usage.TotalTokens,
		"cost_estimate", result.Usage.CostEstimate,
	)

	return result, nil
}

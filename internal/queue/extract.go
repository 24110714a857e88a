package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/graphweave/graphweave/pkg/graph"
	"github.com/graphweave/graphweave/pkg/logger"
	"github.com/graphweave/graphweave/pkg/tenant"
)

// ProcessExtractionMessage runs one extraction batch and, on success, queues
// a community rebuild for the tenant. Chunk-level model failures are soft
// and reported in the batch result; a returned error sends the whole
// message to retry.
func ProcessExtractionMessage(
	ctx context.Context,
	coordinator *graph.Coordinator,
	ch *amqp091.Channel,
	msg string,
) error {
	data := new(ExtractionJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.TenantID == "" {
		return fmt.Errorf("extraction job without tenant id")
	}

	cfg := tenant.NewConfig(data.TenantID, data.TenantConfig)

	logger.Info("[Queue] Starting extraction batch",
		"tenant", data.TenantID,
		"correlation_id", data.CorrelationID,
		"batch", fmt.Sprintf("%d/%d", data.BatchID, data.TotalBatches),
		"chunks", len(data.Chunks),
	)

	start := time.Now()
	result, err := coordinator.ProcessChunks(ctx, data.Chunks, cfg)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Extraction batch done",
		"tenant", data.TenantID,
		"correlation_id", data.CorrelationID,
		"batch_id", data.BatchID,
		"processed", result.ChunksProcessed,
		"failed", result.ChunksFailed,
		"cache_hits", result.CacheHits,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	communityJob := CommunityJobMsg{
		Message:       "Rebuild after extraction batch",
		TenantID:      data.TenantID,
		CorrelationID: data.CorrelationID,
	}
	jobBytes, err := json.Marshal(communityJob)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, CommunityQueue, jobBytes)
}

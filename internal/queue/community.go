package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graphweave/graphweave/pkg/community"
	"github.com/graphweave/graphweave/pkg/logger"
)

// ProcessCommunityMessage invalidates the affected communities, rebuilds the
// tenant's community hierarchy and sweeps entities the new hierarchy left
// behind into the catch-all community.
func ProcessCommunityMessage(
	ctx context.Context,
	detector *community.Detector,
	lifecycle *community.Lifecycle,
	msg string,
) error {
	data := new(CommunityJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if data.TenantID == "" {
		return fmt.Errorf("community job without tenant id")
	}

	var stale int
	var err error
	if len(data.StaleEntityNames) > 0 {
		stale, err = lifecycle.MarkStaleByEntityNames(ctx, data.TenantID, data.StaleEntityNames)
	} else {
		stale, err = lifecycle.MarkStaleByTenant(ctx, data.TenantID)
	}
	if err != nil {
		return fmt.Errorf("marking communities stale: %w", err)
	}

	start := time.Now()
	result, err := detector.Detect(ctx, data.TenantID)
	if err != nil {
		return fmt.Errorf("detecting communities: %w", err)
	}

	orphans, err := lifecycle.CleanupOrphans(ctx, data.TenantID)
	if err != nil {
		return fmt.Errorf("cleaning up orphan entities: %w", err)
	}

	logger.Info("[Queue] Community rebuild done",
		"tenant", data.TenantID,
		"correlation_id", data.CorrelationID,
		"status", result.Status,
		"levels", result.Levels,
		"communities", result.CommunityCount,
		"stale_marked", stale,
		"orphans", orphans,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

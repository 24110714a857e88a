package queue

import (
	"context"
	"fmt"

	"github.com/graphweave/graphweave/pkg/community"
	"github.com/graphweave/graphweave/pkg/graphdb"
	"github.com/graphweave/graphweave/pkg/logger"
)

const selectProcessingTenantsQuery = `
SELECT DISTINCT tenant_id FROM communities
WHERE status = 'processing'`

// RecoverStalledJobs fails community jobs that a crashed worker left in
// processing, so the next rebuild for those tenants starts clean. Called
// once on worker startup.
func RecoverStalledJobs(
	ctx context.Context,
	db graphdb.Client,
	lifecycle *community.Lifecycle,
) error {
	rows, err := db.ExecuteRead(ctx, selectProcessingTenantsQuery, nil)
	if err != nil {
		return fmt.Errorf("listing tenants with processing jobs: %w", err)
	}

	if len(rows) == 0 {
		logger.Debug("[Queue] No stalled community jobs found")
		return nil
	}

	for _, row := range rows {
		tenantID, _ := row["tenant_id"].(string)
		if tenantID == "" {
			continue
		}

		failed, err := lifecycle.DetectStalledJobs(ctx, tenantID)
		if err != nil {
			logger.Error("[Queue] Failed to recover stalled jobs", "tenant", tenantID, "err", err)
			continue
		}
		if failed > 0 {
			logger.Info("[Queue] Recovered stalled community jobs", "tenant", tenantID, "failed", failed)
		}
	}

	return nil
}

package queue

import "github.com/graphweave/graphweave/pkg/common"

// ExtractionJobMsg is one extraction batch. TenantConfig carries the
// tenant's step overrides so the worker never reads tenant settings from a
// second source mid-job.
type ExtractionJobMsg struct {
	Message       string         `json:"message"`
	TenantID      string         `json:"tenant_id"`
	CorrelationID string         `json:"correlation_id"`
	BatchID       int            `json:"batch_id"`
	TotalBatches  int            `json:"total_batches"`
	Chunks        []common.Chunk `json:"chunks"`
	TenantConfig  map[string]any `json:"tenant_config,omitempty"`
}

// CommunityJobMsg requests a community rebuild for a tenant. With
// StaleEntityNames set only the communities touching those entities are
// invalidated first; otherwise the whole tenant is marked stale.
type CommunityJobMsg struct {
	Message          string   `json:"message"`
	TenantID         string   `json:"tenant_id"`
	CorrelationID    string   `json:"correlation_id"`
	StaleEntityNames []string `json:"stale_entity_names,omitempty"`
}

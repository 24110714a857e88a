package retrieval

import (
	"context"

	"github.com/graphweave/graphweave/pkg/common"
	"github.com/graphweave/graphweave/pkg/tenant"
)

// Mode is a retrieval mode the router can select.
type Mode string

const (
	ModeStructured Mode = "structured"
	ModeBasic      Mode = "basic"
	ModeLocal      Mode = "local"
	ModeGlobal     Mode = "global"
	ModeDrift      Mode = "drift"
)

// ValidMode reports whether m names a known retrieval mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeStructured, ModeBasic, ModeLocal, ModeGlobal, ModeDrift:
		return true
	}
	return false
}

// Candidate sources.
const (
	SourceVector    = "vector"
	SourceGraph     = "graph"
	SourceCommunity = "community"
)

// Candidate is the uniform scored item every strategy emits, regardless of
// whether it came from vector search, graph traversal or a community
// report.
type Candidate struct {
	ID       string         `json:"id"`
	Source   string         `json:"source"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RetrievalResult is what every strategy returns. Candidates carry the
// retrieved evidence; Answer is set by strategies that synthesize one
// (global, drift). An empty result is a valid outcome, distinct from an
// error.
type RetrievalResult struct {
	Mode        Mode         `json:"mode"`
	Query       string       `json:"query"`
	Answer      string       `json:"answer,omitempty"`
	Candidates  []Candidate  `json:"candidates"`
	Communities []string     `json:"communities,omitempty"`
	Usage       common.Usage `json:"usage"`
	DurationMs  int64        `json:"duration_ms"`
}

// Empty reports whether the retrieval produced neither evidence nor an
// answer.
func (r *RetrievalResult) Empty() bool {
	return len(r.Candidates) == 0 && r.Answer == ""
}

// Options tune one retrieval call. Zero values fall back to per-strategy
// defaults.
type Options struct {
	Limit     int
	UseHybrid bool

	// TenantConfig carries the caller's resolved tenant settings; strategies
	// read step-scoped overrides from it when set.
	TenantConfig *tenant.Config

	// Local search.
	MaxDepth        int
	SeedLimit       int
	WeightsOverride map[string]float64

	// Global search.
	CommunityLimit int
	MaxKeyPoints   int

	// DRIFT search.
	MaxIterations int
	MaxFollowUps  int
}

// Strategy is the shared retrieval contract.
type Strategy interface {
	Retrieve(ctx context.Context, query string, tenantID string, opts Options) (*RetrievalResult, error)
}

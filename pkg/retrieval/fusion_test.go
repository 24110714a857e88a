package retrieval

import (
	"testing"

	"github.com/graphweave/graphweave/pkg/tenant"
)

func TestFuseCandidatesMergesAcrossSources(t *testing.T) {
	candidates := []Candidate{
		{ID: "chunk-1", Source: SourceVector, Score: 0.8, Content: "from vector"},
		{ID: "chunk-1", Source: SourceGraph, Score: 0.5},
		{ID: "chunk-2", Source: SourceVector, Score: 0.4, Content: "vector only"},
	}

	fused := fuseCandidates(candidates, defaultFusionWeights(), 10)

	if len(fused) != 2 {
		t.Fatalf("fused = %d candidates, want 2", len(fused))
	}
	if fused[0].ID != "chunk-1" {
		t.Errorf("top candidate = %s, want chunk-1 (appears in two sources)", fused[0].ID)
	}
	if fused[0].Content != "from vector" {
		t.Errorf("merged content = %q, want preserved content", fused[0].Content)
	}
}

func TestFuseCandidatesRespectsLimit(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 20; i++ {
		candidates = append(candidates, Candidate{
			ID:     string(rune('a' + i)),
			Source: SourceVector,
			Score:  float64(i),
		})
	}

	fused := fuseCandidates(candidates, defaultFusionWeights(), 5)
	if len(fused) != 5 {
		t.Errorf("fused = %d, want 5", len(fused))
	}
	if fused[0].Score < fused[4].Score {
		t.Error("fused candidates not sorted by score descending")
	}
}

func TestFuseCandidatesDeterministicOnTies(t *testing.T) {
	candidates := []Candidate{
		{ID: "b", Source: SourceVector, Score: 1.0},
		{ID: "a", Source: SourceVector, Score: 1.0},
	}

	first := fuseCandidates(candidates, defaultFusionWeights(), 10)
	second := fuseCandidates(candidates, defaultFusionWeights(), 10)

	if first[0].ID != "a" || second[0].ID != "a" {
		t.Errorf("tie break = %s/%s, want stable ID order", first[0].ID, second[0].ID)
	}
}

func TestAdaptiveWeightsEntityCueBoostsGraph(t *testing.T) {
	base := defaultFusionWeights()
	boosted := adaptiveWeights("who is the captain of the ship?", nil, nil)
	if boosted.graph <= base.graph {
		t.Errorf("graph weight = %v, want boosted above %v", boosted.graph, base.graph)
	}
}

func TestAdaptiveWeightsTenantOverride(t *testing.T) {
	cfg := tenant.NewConfig("tenant-a", map[string]any{
		"steps": map[string]any{
			StepLocalSearch: map[string]any{
				"weight_vector": 0.2,
			},
		},
	})

	w := adaptiveWeights("anything", cfg, nil)
	if w.vector != 0.2 {
		t.Errorf("vector weight = %v, want tenant override 0.2", w.vector)
	}
}

func TestAdaptiveWeightsCallOverrideWins(t *testing.T) {
	cfg := tenant.NewConfig("tenant-a", map[string]any{
		"steps": map[string]any{
			StepLocalSearch: map[string]any{
				"weight_vector": 0.2,
			},
		},
	})

	w := adaptiveWeights("anything", cfg, map[string]float64{"vector": 0.9})
	if w.vector != 0.9 {
		t.Errorf("vector weight = %v, want per-call override 0.9", w.vector)
	}
}

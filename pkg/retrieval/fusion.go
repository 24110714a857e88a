package retrieval

import (
	"sort"
	"strings"

	"github.com/graphweave/graphweave/pkg/tenant"
)

// StepLocalSearch is the tenant-config namespace for local-search tuning.
const StepLocalSearch = "retrieval.local_search"

// weights scale candidates per source before fusion.
type weights struct {
	vector    float64
	graph     float64
	community float64
}

func defaultFusionWeights() weights {
	return weights{vector: 1.0, graph: 0.8, community: 0.6}
}

// entityCues mark queries about specific named things, where graph evidence
// outranks raw text similarity. thematicCues mark queries about topics and
// patterns, where community reports gain weight.
var (
	entityCues   = []string{"who", "where", "which", "when", "named"}
	thematicCues = []string{"theme", "topic", "pattern", "trend", "about"}
)

// adaptiveWeights derives fusion weights from the query shape, then applies
// tenant overrides (steps.retrieval.local_search.weight_vector etc.) and
// finally per-call overrides.
func adaptiveWeights(query string, cfg *tenant.Config, override map[string]float64) weights {
	w := defaultFusionWeights()

	normalized := strings.ToLower(query)
	for _, cue := range entityCues {
		if strings.Contains(normalized, cue) {
			w.graph *= 1.5
			break
		}
	}
	for _, cue := range thematicCues {
		if strings.Contains(normalized, cue) {
			w.community *= 1.5
			break
		}
	}

	if cfg != nil {
		if v, ok := cfg.StepFloat(StepLocalSearch, "weight_vector"); ok {
			w.vector = v
		}
		if v, ok := cfg.StepFloat(StepLocalSearch, "weight_graph"); ok {
			w.graph = v
		}
		if v, ok := cfg.StepFloat(StepLocalSearch, "weight_community"); ok {
			w.community = v
		}
	}

	if v, ok := override["vector"]; ok {
		w.vector = v
	}
	if v, ok := override["graph"]; ok {
		w.graph = v
	}
	if v, ok := override["community"]; ok {
		w.community = v
	}

	return w
}

func (w weights) forSource(source string) float64 {
	switch source {
	case SourceVector:
		return w.vector
	case SourceGraph:
		return w.graph
	case SourceCommunity:
		return w.community
	}
	return 1.0
}

// fuseCandidates merges candidates from all sources into one ranked list:
// scores are max-normalized within each source, scaled by the source
// weight, and summed for candidates appearing in several sources. Ties
// break on ID for determinism.
func fuseCandidates(candidates []Candidate, w weights, limit int) []Candidate {
	maxPerSource := map[string]float64{}
	for _, candidate := range candidates {
		if candidate.Score > maxPerSource[candidate.Source] {
			maxPerSource[candidate.Source] = candidate.Score
		}
	}

	merged := map[string]*Candidate{}
	order := []string{}
	for _, candidate := range candidates {
		normalized := candidate.Score
		if max := maxPerSource[candidate.Source]; max > 0 {
			normalized = candidate.Score / max
		}
		scored := normalized * w.forSource(candidate.Source)

		existing, ok := merged[candidate.ID]
		if !ok {
			copied := candidate
			copied.Score = scored
			merged[candidate.ID] = &copied
			order = append(order, candidate.ID)
			continue
		}
		existing.Score += scored
		if existing.Content == "" {
			existing.Content = candidate.Content
		}
	}

	fused := make([]Candidate, 0, len(merged))
	for _, id := range order {
		fused = append(fused, *merged[id])
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}

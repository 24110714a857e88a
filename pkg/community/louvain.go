package community

import (
	"math/rand"
)

// weightedGraph is an undirected weighted graph with self-loops, the working
// representation for modularity clustering. Node order is insertion order so
// clustering stays deterministic for a fixed input order and seed.
type weightedGraph struct {
	nodes []string
	index map[string]int
	adj   []map[int]float64
}

func newWeightedGraph() *weightedGraph {
	return &weightedGraph{index: map[string]int{}}
}

func (g *weightedGraph) addNode(id string) int {
	if idx, ok := g.index[id]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, id)
	g.index[id] = idx
	g.adj = append(g.adj, map[int]float64{})
	return idx
}

// addEdge accumulates weight on the undirected edge a-b. a == b records a
// self-loop.
func (g *weightedGraph) addEdge(a, b string, weight float64) {
	if weight <= 0 {
		weight = 1.0
	}
	ai := g.addNode(a)
	bi := g.addNode(b)
	g.adj[ai][bi] += weight
	if ai != bi {
		g.adj[bi][ai] += weight
	}
}

// totalWeight returns m, the sum of edge weights with self-loops counted
// once.
func (g *weightedGraph) totalWeight() float64 {
	var m float64
	for i, neighbors := range g.adj {
		for j, w := range neighbors {
			if j == i {
				m += w
			} else if j > i {
				m += w
			}
		}
	}
	return m
}

// degrees returns the weighted degree of every node, self-loops counted
// twice per the standard modularity formulation.
func (g *weightedGraph) degrees() []float64 {
	degrees := make([]float64, len(g.nodes))
	for i, neighbors := range g.adj {
		for j, w := range neighbors {
			if j == i {
				degrees[i] += 2 * w
			} else {
				degrees[i] += w
			}
		}
	}
	return degrees
}

const maxSweeps = 100

// clusterOnce assigns every node a community label by greedy local
// modularity optimization: nodes are visited in seeded shuffled order and
// moved to the neighboring community with the highest positive gain, until
// a full sweep moves nothing. Labels are normalized to 0..k-1 in first-seen
// node order.
func clusterOnce(g *weightedGraph, resolution float64, rng *rand.Rand) []int {
	n := len(g.nodes)
	community := make([]int, n)
	for i := range community {
		community[i] = i
	}
	if n == 0 {
		return community
	}

	m := g.totalWeight()
	if m == 0 {
		// No edges: every node is its own community.
		return community
	}
	m2 := 2 * m
	degrees := g.degrees()

	communityTotal := make([]float64, n)
	copy(communityTotal, degrees)

	order := rng.Perm(n)

	for sweep := 0; sweep < maxSweeps; sweep++ {
		moved := false

		for _, node := range order {
			current := community[node]
			communityTotal[current] -= degrees[node]

			// Weight from node into each neighboring community.
			neighborWeights := map[int]float64{}
			for neighbor, w := range g.adj[node] {
				if neighbor == node {
					continue
				}
				neighborWeights[community[neighbor]] += w
			}

			best := current
			bestGain := neighborWeights[current] - resolution*communityTotal[current]*degrees[node]/m2
			for candidate, inWeight := range neighborWeights {
				if candidate == current {
					continue
				}
				gain := inWeight - resolution*communityTotal[candidate]*degrees[node]/m2
				if gain > bestGain {
					bestGain = gain
					best = candidate
				}
			}

			community[node] = best
			communityTotal[best] += degrees[node]
			if best != current {
				moved = true
			}
		}

		if !moved {
			break
		}
	}

	return normalizeLabels(community)
}

func normalizeLabels(labels []int) []int {
	next := 0
	mapping := map[int]int{}
	normalized := make([]int, len(labels))
	for i, label := range labels {
		canonical, ok := mapping[label]
		if !ok {
			canonical = next
			mapping[label] = canonical
			next++
		}
		normalized[i] = canonical
	}
	return normalized
}

// buildInduced aggregates g by the given labels: each community becomes one
// node, intra-community weight becomes a self-loop, inter-community weights
// are summed. Node ids are taken from communityIDs indexed by label.
func buildInduced(g *weightedGraph, labels []int, communityIDs []string) *weightedGraph {
	induced := newWeightedGraph()
	for _, id := range communityIDs {
		induced.addNode(id)
	}

	for i, neighbors := range g.adj {
		for j, w := range neighbors {
			if j < i {
				continue
			}
			induced.addEdge(communityIDs[labels[i]], communityIDs[labels[j]], w)
		}
	}

	return induced
}

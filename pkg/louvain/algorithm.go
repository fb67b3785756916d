package louvain

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the Louvain baseline parameters
type Config struct {
	MaxLevels     int
	MaxIterations int
	RandomSeed    int64
}

// DefaultConfig returns the baseline defaults
func DefaultConfig() Config {
	return Config{
		MaxLevels:     10,
		MaxIterations: 100,
		RandomSeed:    42,
	}
}

// Result represents the algorithm output
type Result struct {
	Communities    []int       `json:"communities"` // community of each original node
	NumCommunities int         `json:"num_communities"`
	Modularity     float64     `json:"modularity"`
	Levels         []LevelInfo `json:"levels"`
	RuntimeMS      int64       `json:"runtime_ms"`
}

// LevelInfo contains information about each hierarchical level
type LevelInfo struct {
	Level          int     `json:"level"`
	Nodes          int     `json:"nodes"`
	NumCommunities int     `json:"num_communities"`
	NumMoves       int     `json:"num_moves"`
	Modularity     float64 `json:"modularity"`
}

// Groups returns the label groups of the result, ordered by first member
func (r *Result) Groups(labels []string) [][]string {
	index := make(map[int]int)
	groups := make([][]string, 0, r.NumCommunities)
	for node, c := range r.Communities {
		k, ok := index[c]
		if !ok {
			k = len(groups)
			index[c] = k
			groups = append(groups, nil)
		}
		groups[k] = append(groups[k], labels[node])
	}
	return groups
}

// Community represents the state of communities at one level
type Community struct {
	NodeToCommunity          []int     // community ID of each node
	CommunityWeights         []float64 // total degree of each community
	CommunityInternalWeights []float64 // internal weight of each community, edges counted twice
}

// NewCommunity initializes each node in its own community
func NewCommunity(graph *Graph) *Community {
	n := graph.NumNodes
	comm := &Community{
		NodeToCommunity:          make([]int, n),
		CommunityWeights:         make([]float64, n),
		CommunityInternalWeights: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		comm.NodeToCommunity[i] = i
		comm.CommunityWeights[i] = graph.Degrees[i]
		comm.CommunityInternalWeights[i] = 2 * graph.SelfLoops[i]
	}
	return comm
}

// CalculateModularity computes Newman's modularity of the current assignment
func CalculateModularity(graph *Graph, comm *Community) float64 {
	if graph.TotalWeight == 0 {
		return 0.0
	}
	m2 := 2.0 * graph.TotalWeight
	modularity := 0.0
	for c := range comm.CommunityWeights {
		total := comm.CommunityWeights[c]
		if total == 0 && comm.CommunityInternalWeights[c] == 0 {
			continue
		}
		modularity += comm.CommunityInternalWeights[c]/m2 - (total/m2)*(total/m2)
	}
	return modularity
}

// ModularityOf computes the modularity of an arbitrary assignment of graph nodes
func ModularityOf(graph *Graph, membership []int) float64 {
	if graph.TotalWeight == 0 {
		return 0.0
	}
	internal := make(map[int]float64)
	total := make(map[int]float64)
	for u := 0; u < graph.NumNodes; u++ {
		c := membership[u]
		total[c] += graph.Degrees[u]
		internal[c] += 2 * graph.SelfLoops[u]
		for _, nb := range graph.Adjacency[u] {
			if membership[nb.Node] == c {
				internal[c] += nb.Weight
			}
		}
	}

	m2 := 2.0 * graph.TotalWeight
	modularity := 0.0
	for c, tot := range total {
		modularity += internal[c]/m2 - (tot/m2)*(tot/m2)
	}
	return modularity
}

// neighborCommunities sums the weights from node to each adjacent community
func neighborCommunities(graph *Graph, comm *Community, node int) map[int]float64 {
	weights := make(map[int]float64)
	for _, nb := range graph.Adjacency[node] {
		weights[comm.NodeToCommunity[nb.Node]] += nb.Weight
	}
	return weights
}

// OneLevel moves nodes between communities until no move improves modularity
func OneLevel(graph *Graph, comm *Community, config Config, rng *rand.Rand) (bool, int) {
	improvement := false
	totalMoves := 0
	m2 := 2.0 * graph.TotalWeight

	nodes := make([]int, graph.NumNodes)
	for i := range nodes {
		nodes[i] = i
	}

	for iteration := 0; iteration < config.MaxIterations; iteration++ {
		iterationMoves := 0
		rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

		for _, node := range nodes {
			oldComm := comm.NodeToCommunity[node]
			degree := graph.Degrees[node]
			selfLoop := graph.SelfLoops[node]
			weights := neighborCommunities(graph, comm, node)

			// Remove from old community
			comm.CommunityWeights[oldComm] -= degree
			comm.CommunityInternalWeights[oldComm] -= 2 * (weights[oldComm] + selfLoop)

			bestComm := oldComm
			bestGain := weights[oldComm] - comm.CommunityWeights[oldComm]*degree/m2
			for targetComm, edgeWeight := range weights {
				gain := edgeWeight - comm.CommunityWeights[targetComm]*degree/m2
				if gain > bestGain || (gain == bestGain && targetComm < bestComm) { // tiebreaking by community ID
					bestComm = targetComm
					bestGain = gain
				}
			}

			// Insert into best community
			comm.NodeToCommunity[node] = bestComm
			comm.CommunityWeights[bestComm] += degree
			comm.CommunityInternalWeights[bestComm] += 2 * (weights[bestComm] + selfLoop)

			if bestComm != oldComm {
				iterationMoves++
				improvement = true
			}
		}

		totalMoves += iterationMoves
		if iterationMoves == 0 {
			break
		}
	}
	return improvement, totalMoves
}

// AggregateGraph creates a super-graph whose nodes are the non-empty communities.
// It returns the super-node of every community-level node.
func AggregateGraph(graph *Graph, comm *Community) (*Graph, []int, error) {
	commToSuper := make(map[int]int)
	nodeToSuper := make([]int, graph.NumNodes)
	for node := 0; node < graph.NumNodes; node++ {
		c := comm.NodeToCommunity[node]
		super, ok := commToSuper[c]
		if !ok {
			super = len(commToSuper)
			commToSuper[c] = super
		}
		nodeToSuper[node] = super
	}

	superEdges := make(map[[2]int]float64)
	for u := 0; u < graph.NumNodes; u++ {
		su := nodeToSuper[u]
		if graph.SelfLoops[u] > 0 {
			superEdges[[2]int{su, su}] += graph.SelfLoops[u]
		}
		for _, nb := range graph.Adjacency[u] {
			if nb.Node < u {
				continue // each undirected edge once
			}
			a, b := su, nodeToSuper[nb.Node]
			if a > b {
				a, b = b, a
			}
			superEdges[[2]int{a, b}] += nb.Weight
		}
	}

	superGraph := NewGraph(len(commToSuper))
	for edge, weight := range superEdges {
		if err := superGraph.AddEdge(edge[0], edge[1], weight); err != nil {
			return nil, nil, fmt.Errorf("aggregation failed: %w", err)
		}
	}
	return superGraph, nodeToSuper, nil
}

// Run executes the Louvain algorithm on graph
func Run(ctx context.Context, graph *Graph, config Config, logger zerolog.Logger) (*Result, error) {
	startTime := time.Now()

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}

	rng := rand.New(rand.NewSource(config.RandomSeed))
	membership := make([]int, graph.NumNodes)
	for i := range membership {
		membership[i] = i
	}

	result := &Result{Levels: make([]LevelInfo, 0)}
	current := graph
	if graph.TotalWeight == 0 {
		logger.Debug().Int("nodes", graph.NumNodes).Msg("Graph has no edges, every node is its own community")
		config.MaxLevels = 0
	}

	for level := 0; level < config.MaxLevels; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		comm := NewCommunity(current)
		improvement, moves := OneLevel(current, comm, config, rng)
		if !improvement {
			logger.Debug().Int("level", level).Msg("No improvement, stopping")
			break
		}

		superGraph, nodeToSuper, err := AggregateGraph(current, comm)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", level, err)
		}
		for i, node := range membership {
			membership[i] = nodeToSuper[node]
		}

		result.Levels = append(result.Levels, LevelInfo{
			Level:          level,
			Nodes:          current.NumNodes,
			NumCommunities: superGraph.NumNodes,
			NumMoves:       moves,
			Modularity:     CalculateModularity(current, comm),
		})

		if superGraph.NumNodes >= current.NumNodes {
			break
		}
		current = superGraph
	}

	result.Communities = membership
	result.NumCommunities = current.NumNodes
	if len(result.Levels) > 0 {
		result.NumCommunities = result.Levels[len(result.Levels)-1].NumCommunities
	}
	result.Modularity = ModularityOf(graph, membership)
	result.RuntimeMS = time.Since(startTime).Milliseconds()

	logger.Info().
		Int("levels", len(result.Levels)).
		Int("communities", result.NumCommunities).
		Float64("modularity", result.Modularity).
		Int64("runtime_ms", result.RuntimeMS).
		Msg("Louvain baseline completed")

	return result, nil
}

package louvain

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Neighbor is one weighted adjacency entry
type Neighbor struct {
	Node   int
	Weight float64
}

// Graph is the undirected weighted graph the baseline works on. Self-loop
// weights are kept apart from the adjacency lists.
type Graph struct {
	NumNodes    int          `json:"num_nodes"`
	Adjacency   [][]Neighbor `json:"-"`
	SelfLoops   []float64    `json:"self_loops"`
	Degrees     []float64    `json:"degrees"`      // self-loops count twice
	TotalWeight float64      `json:"total_weight"` // each edge once
}

// NewGraph creates an edgeless graph with n nodes
func NewGraph(n int) *Graph {
	return &Graph{
		NumNodes:  n,
		Adjacency: make([][]Neighbor, n),
		SelfLoops: make([]float64, n),
		Degrees:   make([]float64, n),
	}
}

// FromSimilarity builds the undirected graph of a directed similarity matrix,
// weighting each pair by the mean of both directions. The diagonal is ignored.
func FromSimilarity(a mat.Matrix) (*Graph, error) {
	n, c := a.Dims()
	if n != c {
		return nil, fmt.Errorf("similarity matrix must be square, got %dx%d", n, c)
	}

	g := NewGraph(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if w := (a.At(i, j) + a.At(j, i)) / 2; w > 0 {
				if err := g.AddEdge(i, j, w); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

// AddEdge adds weight between u and v; u == v adds to the self-loop
func (g *Graph) AddEdge(u, v int, weight float64) error {
	if u < 0 || u >= g.NumNodes || v < 0 || v >= g.NumNodes {
		return fmt.Errorf("edge %d-%d outside graph of %d nodes", u, v, g.NumNodes)
	}
	if weight <= 0 {
		return fmt.Errorf("edge %d-%d: weight must be positive, got %g", u, v, weight)
	}

	if u == v {
		g.SelfLoops[u] += weight
		g.Degrees[u] += 2 * weight
	} else {
		g.Adjacency[u] = append(g.Adjacency[u], Neighbor{Node: v, Weight: weight})
		g.Adjacency[v] = append(g.Adjacency[v], Neighbor{Node: u, Weight: weight})
		g.Degrees[u] += weight
		g.Degrees[v] += weight
	}
	g.TotalWeight += weight
	return nil
}

// Weight sums the edge weight between u and v
func (g *Graph) Weight(u, v int) float64 {
	if u < 0 || u >= g.NumNodes || v < 0 || v >= g.NumNodes {
		return 0
	}
	if u == v {
		return g.SelfLoops[u]
	}
	total := 0.0
	for _, nb := range g.Adjacency[u] {
		if nb.Node == v {
			total += nb.Weight
		}
	}
	return total
}

// Validate checks that the graph is non-empty and its adjacency is well formed
func (g *Graph) Validate() error {
	if g.NumNodes <= 0 {
		return fmt.Errorf("graph must have positive number of nodes")
	}
	if len(g.Adjacency) != g.NumNodes || len(g.SelfLoops) != g.NumNodes || len(g.Degrees) != g.NumNodes {
		return fmt.Errorf("node arrays do not match %d nodes", g.NumNodes)
	}
	for u, neighbors := range g.Adjacency {
		for _, nb := range neighbors {
			switch {
			case nb.Node < 0 || nb.Node >= g.NumNodes:
				return fmt.Errorf("node %d has neighbor %d outside the graph", u, nb.Node)
			case nb.Node == u:
				return fmt.Errorf("node %d lists itself as neighbor", u)
			case nb.Weight <= 0:
				return fmt.Errorf("edge %d-%d has non-positive weight %g", u, nb.Node, nb.Weight)
			}
		}
	}
	return nil
}

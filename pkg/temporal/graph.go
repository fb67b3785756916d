package temporal

import (
	"iter"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph is a time-expanded graph over actor versions.
//
// A delivery edge (src, t) -> (dst, t) of weight zero is added for every
// event, and a carry-forward edge (a, prev) -> (a, t) of weight t - prev links
// consecutive appearances of the same actor. The graph is immutable once
// built; only the per-actor version index is filled lazily.
type Graph struct {
	g        *simple.WeightedDirectedGraph
	ids      map[Version]int64
	events   []Event
	lastSeen map[string]int64
	numEdges int

	mu       sync.Mutex
	versions map[string]*versionIndex
}

type versionIndex struct {
	once  sync.Once
	times []int64
}

// BuildOption configures Build
type BuildOption func(*buildConfig)

type buildConfig struct {
	maxTime int64
}

// WithMaxTime stops the build at the first event later than t
func WithMaxTime(t int64) BuildOption {
	return func(c *buildConfig) {
		c.maxTime = t
	}
}

// Build constructs the time-expanded graph from a timestamp-sorted event log
func Build(events []Event, opts ...BuildOption) (*Graph, error) {
	cfg := buildConfig{maxTime: math.MaxInt64}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := CheckOrder(events); err != nil {
		return nil, err
	}

	g := &Graph{
		g:        simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		ids:      make(map[Version]int64),
		lastSeen: make(map[string]int64),
		versions: make(map[string]*versionIndex),
	}

	for i, e := range events {
		if e.Timestamp > cfg.maxTime {
			break
		}
		t := e.Timestamp

		src := g.node(Version{Actor: e.Source, Timestamp: t})
		dst := g.node(Version{Actor: e.Destination, Timestamp: t})
		if src != dst {
			g.setEdge(src, dst, 0)
		}

		g.carryForward(e.Source, t)
		if e.Destination != e.Source {
			g.carryForward(e.Destination, t)
		}

		g.lastSeen[e.Source] = t
		g.lastSeen[e.Destination] = t
		g.events = events[:i+1]
	}

	return g, nil
}

func (g *Graph) node(v Version) int64 {
	if id, ok := g.ids[v]; ok {
		return id
	}
	id := int64(len(g.ids))
	g.g.AddNode(simple.Node(id))
	g.ids[v] = id
	return id
}

func (g *Graph) setEdge(from, to int64, weight float64) {
	if !g.g.HasEdgeFromTo(from, to) {
		g.numEdges++
	}
	g.g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(from), T: simple.Node(to), W: weight})
}

// carryForward links the actor's previous version to its version at t
func (g *Graph) carryForward(actor string, t int64) {
	prev, ok := g.lastSeen[actor]
	if !ok || prev >= t {
		return
	}
	from := g.ids[Version{Actor: actor, Timestamp: prev}]
	to := g.ids[Version{Actor: actor, Timestamp: t}]
	g.setEdge(from, to, float64(t-prev))
}

// Versions returns the ascending distinct timestamps at or after start at
// which actor appears. The sequence can be iterated any number of times.
func (g *Graph) Versions(actor string, start int64) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		times := g.index(actor)
		i := sort.Search(len(times), func(i int) bool { return times[i] >= start })
		for _, t := range times[i:] {
			if !yield(t) {
				return
			}
		}
	}
}

// PrimeVersions builds the version index of every given actor up front
func (g *Graph) PrimeVersions(actors []string) {
	for _, a := range actors {
		g.index(a)
	}
}

func (g *Graph) index(actor string) []int64 {
	g.mu.Lock()
	idx, ok := g.versions[actor]
	if !ok {
		idx = &versionIndex{}
		g.versions[actor] = idx
	}
	g.mu.Unlock()

	idx.once.Do(func() {
		idx.times = g.collectVersions(actor)
	})
	return idx.times
}

func (g *Graph) collectVersions(actor string) []int64 {
	seen := make(map[int64]bool)
	times := make([]int64, 0)
	for _, e := range g.events {
		if (e.Source == actor || e.Destination == actor) && !seen[e.Timestamp] {
			seen[e.Timestamp] = true
			times = append(times, e.Timestamp)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}

// HasPath reports whether to is reachable from from. Unknown versions are unreachable.
func (g *Graph) HasPath(from, to Version) bool {
	fid, ok := g.ids[from]
	if !ok {
		return false
	}
	tid, ok := g.ids[to]
	if !ok {
		return false
	}
	if fid == tid {
		return true
	}
	return topo.PathExistsIn(g.g, simple.Node(fid), simple.Node(tid))
}

// Weight returns the weight of the edge from -> to, if present
func (g *Graph) Weight(from, to Version) (float64, bool) {
	fid, ok := g.ids[from]
	if !ok {
		return 0, false
	}
	tid, ok := g.ids[to]
	if !ok || fid == tid || !g.g.HasEdgeFromTo(fid, tid) {
		return 0, false
	}
	return g.g.Weight(fid, tid)
}

// LastSeen returns the latest timestamp processed for actor
func (g *Graph) LastSeen(actor string) (int64, bool) {
	t, ok := g.lastSeen[actor]
	return t, ok
}

// Actors returns the sorted actors present in the built graph
func (g *Graph) Actors() []string {
	actors := make([]string, 0, len(g.lastSeen))
	for a := range g.lastSeen {
		actors = append(actors, a)
	}
	sort.Strings(actors)
	return actors
}

// NumVersions returns the number of temporal nodes
func (g *Graph) NumVersions() int { return len(g.ids) }

// NumEdges returns the number of delivery and carry-forward edges
func (g *Graph) NumEdges() int { return g.numEdges }

// NumEvents returns how many events were consumed by the build
func (g *Graph) NumEvents() int { return len(g.events) }

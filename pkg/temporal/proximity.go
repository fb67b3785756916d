package temporal

import (
	"math"
)

// AnchorStep records the anchor found for one source version
type AnchorStep struct {
	Version   int64 `json:"version"`
	Anchor    int64 `json:"anchor"`
	Reachable bool  `json:"reachable"`
}

// Delay returns anchor - version, or +Inf when the step is unreachable
func (s AnchorStep) Delay() float64 {
	if !s.Reachable {
		return math.Inf(1)
	}
	return float64(s.Anchor - s.Version)
}

// ProximityEngine answers temporal proximity queries over a built Graph.
// It only reads the graph and is safe for concurrent use.
type ProximityEngine struct {
	graph *Graph
}

// NewProximityEngine creates an engine over g
func NewProximityEngine(g *Graph) *ProximityEngine {
	return &ProximityEngine{graph: g}
}

// Anchor returns the earliest version of node2, searching from max(t, from),
// that is reachable from (node1, t).
func (pe *ProximityEngine) Anchor(node1, node2 string, t, from int64) (int64, bool) {
	last, ok := pe.graph.LastSeen(node2)
	if !ok || last < t {
		return 0, false
	}
	if last == t {
		return t, true
	}

	source := Version{Actor: node1, Timestamp: t}
	for v := range pe.graph.Versions(node2, max(t, from)) {
		if pe.graph.HasPath(source, Version{Actor: node2, Timestamp: v}) {
			return v, true
		}
	}
	return 0, false
}

// Proximity returns the minimal delay from (node1, t) to any later version of node2
func (pe *ProximityEngine) Proximity(node1, node2 string, t int64) (int64, bool) {
	v, ok := pe.Anchor(node1, node2, t, t)
	if !ok {
		return 0, false
	}
	return v - t, true
}

// Trace walks the versions of node1 in order with a running anchor. Reachable
// targets only move forward in time, so each search starts at the previous
// anchor, and the walk stops at the first unreachable version (included).
func (pe *ProximityEngine) Trace(node1, node2 string) []AnchorStep {
	steps := make([]AnchorStep, 0)
	var anchor int64 = math.MinInt64

	for t := range pe.graph.Versions(node1, math.MinInt64) {
		v, ok := pe.Anchor(node1, node2, t, max(anchor, t))
		steps = append(steps, AnchorStep{Version: t, Anchor: v, Reachable: ok})
		if !ok {
			break
		}
		anchor = v
	}
	return steps
}

// AverageProximity returns the mean delay over the versions of node1 that can
// reach node2, +Inf if none can. An actor is at distance zero from itself.
func (pe *ProximityEngine) AverageProximity(node1, node2 string) float64 {
	if node1 == node2 {
		return 0
	}

	total := 0.0
	count := 0
	for _, step := range pe.Trace(node1, node2) {
		if !step.Reachable {
			break
		}
		total += step.Delay()
		count++
	}

	if count == 0 {
		return math.Inf(1)
	}
	return total / float64(count)
}

package temporal

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainEvents is the log A->B at 0, B->C at 1, A->B at 5
func chainEvents() []Event {
	return []Event{
		{Source: "A", Destination: "B", Timestamp: 0},
		{Source: "B", Destination: "C", Timestamp: 1},
		{Source: "A", Destination: "B", Timestamp: 5},
	}
}

func mustBuild(t *testing.T, events []Event, opts ...BuildOption) *Graph {
	t.Helper()
	g, err := Build(events, opts...)
	require.NoError(t, err)
	return g
}

func collect(g *Graph, actor string, start int64) []int64 {
	return slices.Collect(g.Versions(actor, start))
}

func TestBuild_Edges(t *testing.T) {
	g := mustBuild(t, chainEvents())

	assert.Equal(t, 6, g.NumVersions())
	assert.Equal(t, 6, g.NumEdges())
	assert.Equal(t, 3, g.NumEvents())

	tests := []struct {
		from, to Version
		weight   float64
	}{
		{Version{"A", 0}, Version{"B", 0}, 0},
		{Version{"B", 1}, Version{"C", 1}, 0},
		{Version{"B", 0}, Version{"B", 1}, 1},
		{Version{"A", 0}, Version{"A", 5}, 5},
		{Version{"B", 1}, Version{"B", 5}, 4},
	}
	for _, tt := range tests {
		w, ok := g.Weight(tt.from, tt.to)
		require.True(t, ok, "missing edge %s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.weight, w)
	}

	// delivery edges are directed
	_, ok := g.Weight(Version{"B", 0}, Version{"A", 0})
	assert.False(t, ok)
	// carry-forward only links consecutive appearances
	_, ok = g.Weight(Version{"B", 0}, Version{"B", 5})
	assert.False(t, ok)
}

func TestBuild_SelfInteraction(t *testing.T) {
	g := mustBuild(t, []Event{
		{Source: "A", Destination: "A", Timestamp: 2},
		{Source: "A", Destination: "A", Timestamp: 3},
	})

	assert.Equal(t, 2, g.NumVersions())
	assert.Equal(t, 1, g.NumEdges())
	w, ok := g.Weight(Version{"A", 2}, Version{"A", 3})
	require.True(t, ok)
	assert.Equal(t, 1.0, w)
}

func TestBuild_RepeatedTimestamp(t *testing.T) {
	g := mustBuild(t, []Event{
		{Source: "A", Destination: "B", Timestamp: 4},
		{Source: "A", Destination: "C", Timestamp: 4},
	})

	assert.Equal(t, 3, g.NumVersions())
	assert.Equal(t, 2, g.NumEdges())
	assert.True(t, g.HasPath(Version{"A", 4}, Version{"C", 4}))
}

func TestBuild_Unsorted(t *testing.T) {
	_, err := Build([]Event{
		{Source: "A", Destination: "B", Timestamp: 5},
		{Source: "B", Destination: "C", Timestamp: 1},
	})
	require.ErrorIs(t, err, ErrUnsortedEvents)

	events := []Event{
		{Source: "A", Destination: "B", Timestamp: 5},
		{Source: "B", Destination: "C", Timestamp: 1},
		{Source: "C", Destination: "D", Timestamp: 1},
	}
	SortEvents(events)
	require.NoError(t, CheckOrder(events))
	assert.Equal(t, "B", events[0].Source)
	assert.Equal(t, "C", events[1].Source)
}

func TestBuild_MaxTime(t *testing.T) {
	g := mustBuild(t, chainEvents(), WithMaxTime(1))

	assert.Equal(t, 2, g.NumEvents())
	assert.Equal(t, []int64{0}, collect(g, "A", 0))
	last, ok := g.LastSeen("B")
	require.True(t, ok)
	assert.Equal(t, int64(1), last)
}

func TestVersions(t *testing.T) {
	g := mustBuild(t, chainEvents())

	assert.Equal(t, []int64{0, 5}, collect(g, "A", 0))
	assert.Equal(t, []int64{0, 1, 5}, collect(g, "B", 0))
	assert.Equal(t, []int64{1, 5}, collect(g, "B", 1))
	assert.Equal(t, []int64{5}, collect(g, "B", 2))
	assert.Empty(t, collect(g, "B", 6))
	assert.Empty(t, collect(g, "Z", 0))

	// restartable
	seq := g.Versions("B", 0)
	assert.Equal(t, slices.Collect(seq), slices.Collect(seq))

	// early stop
	var first int64 = -1
	for v := range seq {
		first = v
		break
	}
	assert.Equal(t, int64(0), first)
}

func TestHasPath(t *testing.T) {
	g := mustBuild(t, chainEvents())

	assert.True(t, g.HasPath(Version{"A", 0}, Version{"C", 1}))
	assert.True(t, g.HasPath(Version{"A", 0}, Version{"B", 5}))
	assert.True(t, g.HasPath(Version{"C", 1}, Version{"C", 1}))
	assert.False(t, g.HasPath(Version{"A", 5}, Version{"C", 1}))
	assert.False(t, g.HasPath(Version{"C", 1}, Version{"A", 5}))
	assert.False(t, g.HasPath(Version{"A", 1}, Version{"C", 1}))
}

func TestProximity(t *testing.T) {
	pe := NewProximityEngine(mustBuild(t, chainEvents()))

	d, ok := pe.Proximity("A", "C", 0)
	require.True(t, ok)
	assert.Equal(t, int64(1), d)

	_, ok = pe.Proximity("A", "C", 5)
	assert.False(t, ok)

	// last_seen[B] == 5 short-circuits to a zero delay
	d, ok = pe.Proximity("A", "B", 5)
	require.True(t, ok)
	assert.Equal(t, int64(0), d)

	_, ok = pe.Proximity("A", "Z", 0)
	assert.False(t, ok)
}

func TestAverageProximity(t *testing.T) {
	pe := NewProximityEngine(mustBuild(t, chainEvents()))
	inf := math.Inf(1)

	tests := []struct {
		from, to string
		want     float64
	}{
		{"A", "C", 1},
		{"A", "B", 0},
		{"B", "C", 0.5},
		{"B", "A", inf},
		{"C", "A", inf},
		{"C", "B", inf},
		{"A", "A", 0},
		{"Z", "Z", 0},
		{"Z", "A", inf},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, pe.AverageProximity(tt.from, tt.to))
		})
	}
}

func TestTrace_StopsAtFirstUnreachable(t *testing.T) {
	pe := NewProximityEngine(mustBuild(t, chainEvents()))

	steps := pe.Trace("B", "C")
	require.Len(t, steps, 3)
	assert.Equal(t, AnchorStep{Version: 0, Anchor: 1, Reachable: true}, steps[0])
	assert.Equal(t, AnchorStep{Version: 1, Anchor: 1, Reachable: true}, steps[1])
	assert.False(t, steps[2].Reachable)
	assert.True(t, math.IsInf(steps[2].Delay(), 1))
}

func TestBuildStaticMatrix(t *testing.T) {
	g := mustBuild(t, chainEvents())
	actors := []string{"A", "B", "C"}
	inf := math.Inf(1)
	want := [][]float64{
		{0, 0, 1},
		{inf, 0, 0.5},
		{inf, inf, 0},
	}

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			var pairs atomic.Int64
			dist, err := BuildStaticMatrix(context.Background(), g, actors,
				WithWorkers(workers),
				WithPairObserver(func() { pairs.Add(1) }))
			require.NoError(t, err)

			r, c := dist.Dims()
			require.Equal(t, 3, r)
			require.Equal(t, 3, c)
			for i := range want {
				for j := range want[i] {
					assert.Equal(t, want[i][j], dist.At(i, j), "entry (%d,%d)", i, j)
				}
			}
			assert.Equal(t, int64(9), pairs.Load())
		})
	}
}

func TestBuildStaticMatrix_Errors(t *testing.T) {
	g := mustBuild(t, chainEvents())

	_, err := BuildStaticMatrix(context.Background(), g, nil)
	require.ErrorIs(t, err, ErrNoActors)

	_, err = BuildStaticMatrix(context.Background(), g, []string{"A", "B"}, WithStrictActors())
	require.ErrorIs(t, err, ErrUnknownActor)

	// non-strict conversion ignores undeclared actors
	dist, err := BuildStaticMatrix(context.Background(), g, []string{"A", "C"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, dist.At(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = BuildStaticMatrix(ctx, g, []string{"A", "B", "C"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestActorsOf(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, ActorsOf(chainEvents()))
	assert.Empty(t, ActorsOf(nil))
}

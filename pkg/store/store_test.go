package store

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/temporal-community-service/pkg/modularity"
	"github.com/gilchrisn/temporal-community-service/pkg/partition"
	"github.com/gilchrisn/temporal-community-service/pkg/temporal"
)

// Verify both backends implement Store at compile time.
var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "tgcd.db"), "run-1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Store{"file": fs, "sqlite": db}
}

func samplePartition() partition.Partition {
	events := []temporal.Event{
		{Source: "A", Destination: "B", Timestamp: 0},
		{Source: "B", Destination: "C", Timestamp: 1},
		{Source: "A", Destination: "B", Timestamp: 5},
	}
	return partition.Partition{Number: 7, Start: 0, End: 10, Events: events, Actors: []string{"A", "B", "C"}}
}

func TestPartitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := samplePartition()
			require.NoError(t, s.SavePartition(ctx, p))
			require.NoError(t, s.SavePartition(ctx, partition.Partition{Number: 2, Start: 10, End: 20}))

			got, err := s.LoadPartition(ctx, 7)
			require.NoError(t, err)
			assert.Equal(t, p.Events, got.Events)
			assert.Equal(t, p.Actors, got.Actors)

			actors, err := s.LoadActors(ctx, 2)
			require.NoError(t, err)
			assert.Empty(t, actors)

			numbers, err := s.Partitions(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int{2, 7}, numbers)

			_, err = s.LoadActors(ctx, 99)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.LoadPartition(ctx, 99)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPartitionKeepsUnusualLabels(t *testing.T) {
	ctx := context.Background()
	p := partition.Partition{
		Number: 1,
		Events: []temporal.Event{
			{Source: "#golang", Destination: "bob", Timestamp: 1},
			{Source: "bob", Destination: "%x", Timestamp: 2},
			{Source: "ann lee", Destination: "a,b", Timestamp: 3},
		},
		Actors: []string{"#golang", "%x", "a,b", "ann lee", "bob"},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SavePartition(ctx, p))

			got, err := s.LoadPartition(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, p.Events, got.Events)
			assert.Equal(t, p.Actors, got.Actors)
		})
	}
}

func TestMatrixRoundTrip(t *testing.T) {
	ctx := context.Background()
	inf := math.Inf(1)
	m := mat.NewDense(3, 3, []float64{
		0, 0, 1,
		inf, 0, 0.5,
		inf, inf, 0,
	})

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveMatrix(ctx, 1, m))
			got, err := s.LoadMatrix(ctx, 1)
			require.NoError(t, err)
			assert.True(t, mat.Equal(m, got))

			require.NoError(t, s.SaveMatrix(ctx, 2, &mat.Dense{}))
			empty, err := s.LoadMatrix(ctx, 2)
			require.NoError(t, err)
			assert.True(t, empty.IsEmpty())

			_, err = s.LoadMatrix(ctx, 3)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := modularity.NewSplit(
		modularity.NewSplit(modularity.Leaf("a"), modularity.Leaf("b", "c")),
		modularity.Leaf("d"),
	)
	detected := &modularity.Result{Status: modularity.StatusDetected, Hierarchy: h, Modularity: 0.4, Splits: 2, TotalWeight: 3}
	empty := &modularity.Result{Status: modularity.StatusNoEdges}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveResult(ctx, 1, detected))
			require.NoError(t, s.SaveResult(ctx, 2, empty))

			got, err := s.LoadResult(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, modularity.StatusDetected, got.Status)
			assert.Equal(t, 0.4, got.Modularity)
			assert.Equal(t, 2, got.Hierarchy.Depth())
			assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, got.Communities())

			got, err = s.LoadResult(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, modularity.StatusNoEdges, got.Status)
			assert.Empty(t, got.Communities())

			_, err = s.LoadResult(ctx, 3)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestModularitiesAndReset(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.LoadModularities(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			q := map[int]float64{1: 0.25, 2: 0, 3: -0.5}
			require.NoError(t, s.SaveModularities(ctx, q))
			got, err := s.LoadModularities(ctx)
			require.NoError(t, err)
			assert.Equal(t, q, got)

			require.NoError(t, s.SavePartition(ctx, samplePartition()))
			require.NoError(t, s.Reset(ctx))

			numbers, err := s.Partitions(ctx)
			require.NoError(t, err)
			assert.Empty(t, numbers)
			_, err = s.LoadModularities(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSQLiteRunID(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tgcd.db"), "run-42")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveResult(ctx, 1, &modularity.Result{Status: modularity.StatusNoEdges}))

	var runID, status string
	err = s.db.QueryRow("SELECT run_id, status FROM results WHERE part = 1").Scan(&runID, &status)
	require.NoError(t, err)
	assert.Equal(t, "run-42", runID)
	assert.Equal(t, "no_edges", status)
}

func TestSQLiteMemoryStoresAreIsolated(t *testing.T) {
	ctx := context.Background()

	first, err := OpenSQLite(":memory:", "run-a")
	require.NoError(t, err)
	defer first.Close()
	second, err := OpenSQLite(":memory:", "run-b")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.SavePartition(ctx, samplePartition()))
	require.NoError(t, second.Reset(ctx))

	numbers, err := first.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, numbers)

	numbers, err = second.Partitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, numbers)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("file", filepath.Join(dir, "files"), "", "")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite", "", filepath.Join(dir, "tgcd.db"), "run")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("postgres", "", "", "")
	assert.Error(t, err)
}

func TestMatrixText(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{0, math.Inf(1), 0.25, 0})

	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, m))
	assert.Equal(t, "0 +Inf\n0.25 0\n", buf.String())

	got, err := ReadMatrix(&buf)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, got))

	_, err = ReadMatrix(bytes.NewBufferString("0 1\n2\n"))
	assert.Error(t, err)
	_, err = ReadMatrix(bytes.NewBufferString("0 x\n"))
	assert.Error(t, err)
}

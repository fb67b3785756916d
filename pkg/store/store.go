// Package store persists partitions, distance matrices and detection results
// between the stages of a run.
package store

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/temporal-community-service/pkg/modularity"
	"github.com/gilchrisn/temporal-community-service/pkg/partition"
)

// ErrNotFound is returned when a partition has no stored artefact of the requested kind
var ErrNotFound = errors.New("not found")

// Store is implemented by the file and SQLite backends
type Store interface {
	SavePartition(ctx context.Context, p partition.Partition) error
	LoadPartition(ctx context.Context, number int) (partition.Partition, error)
	LoadActors(ctx context.Context, number int) ([]string, error)
	Partitions(ctx context.Context) ([]int, error)

	SaveMatrix(ctx context.Context, number int, m *mat.Dense) error
	LoadMatrix(ctx context.Context, number int) (*mat.Dense, error)

	SaveResult(ctx context.Context, number int, r *modularity.Result) error
	LoadResult(ctx context.Context, number int) (*modularity.Result, error)

	SaveModularities(ctx context.Context, q map[int]float64) error
	LoadModularities(ctx context.Context) (map[int]float64, error)

	// Reset removes everything stored
	Reset(ctx context.Context) error
	Close() error
}

// Open returns the backend named by driver ("file" or "sqlite").
// runID tags SQLite rows and is ignored by the file backend.
func Open(driver, dir, dsn, runID string) (Store, error) {
	switch driver {
	case "file", "":
		return NewFileStore(dir)
	case "sqlite":
		return OpenSQLite(dsn, runID)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

package temporal

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// StaticOption configures BuildStaticMatrix
type StaticOption func(*staticConfig)

type staticConfig struct {
	workers  int
	strict   bool
	observer func()
	logger   zerolog.Logger
}

// WithWorkers bounds the number of concurrent row computations
func WithWorkers(n int) StaticOption {
	return func(c *staticConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithStrictActors rejects graphs containing actors outside the declared list
func WithStrictActors() StaticOption {
	return func(c *staticConfig) {
		c.strict = true
	}
}

// WithPairObserver registers a callback invoked once per computed pair.
// It is called from worker goroutines and must be safe for concurrent use.
func WithPairObserver(fn func()) StaticOption {
	return func(c *staticConfig) {
		c.observer = fn
	}
}

// WithStaticLogger sets the logger used for progress output
func WithStaticLogger(logger zerolog.Logger) StaticOption {
	return func(c *staticConfig) {
		c.logger = logger
	}
}

// BuildStaticMatrix converts g into a dense distance matrix over actors.
// Entry (i, j) is the average temporal proximity from actors[i] to actors[j];
// unreachable pairs are +Inf and the diagonal is zero.
func BuildStaticMatrix(ctx context.Context, g *Graph, actors []string, opts ...StaticOption) (*mat.Dense, error) {
	cfg := staticConfig{
		workers: runtime.NumCPU(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := len(actors)
	if n == 0 {
		return nil, ErrNoActors
	}

	if cfg.strict {
		declared := make(map[string]bool, n)
		for _, a := range actors {
			declared[a] = true
		}
		for _, a := range g.Actors() {
			if !declared[a] {
				return nil, fmt.Errorf("actor %q: %w", a, ErrUnknownActor)
			}
		}
	}

	start := time.Now()
	engine := NewProximityEngine(g)

	// Version indices are shared by every worker; build them before fanning out.
	g.PrimeVersions(actors)

	dist := mat.NewDense(n, n, nil)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.workers)

	for i := range actors {
		eg.Go(func() error {
			for j := range actors {
				if err := ctx.Err(); err != nil {
					return err
				}
				dist.Set(i, j, engine.AverageProximity(actors[i], actors[j]))
				if cfg.observer != nil {
					cfg.observer()
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("static conversion interrupted: %w", err)
	}

	cfg.logger.Debug().
		Int("actors", n).
		Int("pairs", n*n).
		Int("versions", g.NumVersions()).
		Dur("elapsed", time.Since(start)).
		Msg("Static matrix built")

	return dist, nil
}

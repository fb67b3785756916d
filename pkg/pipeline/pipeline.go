// Package pipeline runs split, convert and detect over a partitioned interaction log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/temporal-community-service/pkg/config"
	"github.com/gilchrisn/temporal-community-service/pkg/louvain"
	"github.com/gilchrisn/temporal-community-service/pkg/metrics"
	"github.com/gilchrisn/temporal-community-service/pkg/modularity"
	"github.com/gilchrisn/temporal-community-service/pkg/partition"
	"github.com/gilchrisn/temporal-community-service/pkg/store"
	"github.com/gilchrisn/temporal-community-service/pkg/temporal"
	"github.com/gilchrisn/temporal-community-service/pkg/utils"
)

// Pipeline orchestrates the stages of a run. Partitions are processed one at a time.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	metrics *metrics.Registry
	tracker *utils.SplitTracker
	logger  zerolog.Logger
	runID   string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMetrics records stage metrics into r
func WithMetrics(r *metrics.Registry) Option {
	return func(p *Pipeline) {
		p.metrics = r
	}
}

// WithSplitTracker logs every accepted bisection to t
func WithSplitTracker(t *utils.SplitTracker) Option {
	return func(p *Pipeline) {
		p.tracker = t
	}
}

// WithLogger sets the pipeline logger
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// New creates a pipeline over st
func New(cfg *config.Config, st store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		store:  st,
		logger: zerolog.Nop(),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("run_id", p.runID).Logger()
	return p
}

// RunID returns the identifier attached to this pipeline's logs and rows
func (p *Pipeline) RunID() string {
	return p.runID
}

// PartitionReport summarises the outcome of one partition
type PartitionReport struct {
	Number             int               `json:"number"`
	Actors             int               `json:"actors"`
	Status             modularity.Status `json:"status"`
	Modularity         float64           `json:"modularity"`
	Communities        int               `json:"communities"`
	Splits             int               `json:"splits"`
	BaselineModularity *float64          `json:"baseline_modularity,omitempty"`
	RuntimeMS          int64             `json:"runtime_ms"`
}

// Report summarises a full run
type Report struct {
	RunID        string            `json:"run_id"`
	Stats        partition.Stats   `json:"stats"`
	Partitions   []PartitionReport `json:"partitions"`
	Modularities map[int]float64   `json:"modularities"`
	RuntimeMS    int64             `json:"runtime_ms"`
}

// Window returns the split window from configuration. With auto_window the
// bounds cover every event.
func (p *Pipeline) Window(events []temporal.Event) partition.Window {
	if p.cfg.AutoWindow() {
		return partition.WindowFor(events, p.cfg.SplitWindow())
	}
	return partition.Window{
		Start:  p.cfg.SplitStart(),
		Finish: p.cfg.SplitFinish(),
		Size:   p.cfg.SplitWindow(),
	}
}

// Split clears the store and saves the partitions of events
func (p *Pipeline) Split(ctx context.Context, events []temporal.Event) ([]partition.Partition, error) {
	w := p.Window(events)
	parts, err := partition.Split(events, w)
	if err != nil {
		return nil, err
	}

	if err := p.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset store: %w", err)
	}
	for _, part := range parts {
		if err := p.store.SavePartition(ctx, part); err != nil {
			return nil, fmt.Errorf("failed to save partition %d: %w", part.Number, err)
		}
	}

	stats := partition.Summarize(parts)
	p.logger.Info().
		Int64("start", w.Start).
		Int64("finish", w.Finish).
		Int64("window", w.Size).
		Int("events", len(events)).
		Int("partitions", stats.Parts).
		Int("shortest", stats.Shortest).
		Int("longest", stats.Longest).
		Float64("average_length", stats.AverageLength).
		Msg("Split interaction log")

	return parts, nil
}

// Convert builds the distance matrix of a stored partition and saves it.
// A partition without actors yields an empty matrix.
func (p *Pipeline) Convert(ctx context.Context, number int) (*mat.Dense, error) {
	start := time.Now()
	logger := p.logger.With().Int("partition", number).Logger()

	part, err := p.store.LoadPartition(ctx, number)
	if err != nil {
		return nil, err
	}

	dist := &mat.Dense{}
	if len(part.Actors) > 0 {
		events := append([]temporal.Event(nil), part.Events...)
		temporal.SortEvents(events)

		var buildOpts []temporal.BuildOption
		if maxTime := p.cfg.MaxTime(); maxTime > 0 {
			buildOpts = append(buildOpts, temporal.WithMaxTime(maxTime))
		}
		g, err := temporal.Build(events, buildOpts...)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", number, err)
		}

		staticOpts := []temporal.StaticOption{
			temporal.WithWorkers(p.cfg.NumWorkers()),
			temporal.WithStaticLogger(logger),
		}
		if p.cfg.StrictActors() {
			staticOpts = append(staticOpts, temporal.WithStrictActors())
		}
		if p.metrics != nil {
			p.metrics.TemporalVersions.Set(float64(g.NumVersions()))
			staticOpts = append(staticOpts, temporal.WithPairObserver(p.metrics.PairsComputed.Inc))
		}

		dist, err = temporal.BuildStaticMatrix(ctx, g, part.Actors, staticOpts...)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", number, err)
		}
		logger.Debug().
			Int("actors", len(part.Actors)).
			Int("versions", g.NumVersions()).
			Int("edges", g.NumEdges()).
			Msg("Built distance matrix")
	}

	if err := p.store.SaveMatrix(ctx, number, dist); err != nil {
		return nil, err
	}
	p.observe("convert", start)
	return dist, nil
}

// Detect runs community detection on the stored matrix of a partition and
// saves the result. The baseline modularity is nil unless the Louvain
// baseline is enabled and the graph has edges.
func (p *Pipeline) Detect(ctx context.Context, number int) (*modularity.Result, *float64, error) {
	start := time.Now()
	logger := p.logger.With().Int("partition", number).Logger()

	actors, err := p.store.LoadActors(ctx, number)
	if err != nil {
		return nil, nil, err
	}
	dist, err := p.store.LoadMatrix(ctx, number)
	if err != nil {
		return nil, nil, err
	}

	result := &modularity.Result{Status: modularity.StatusNoEdges}
	if !dist.IsEmpty() {
		opts := []modularity.Option{
			modularity.WithEpsilon(p.cfg.Epsilon()),
			modularity.WithLogger(logger),
		}
		if p.tracker != nil {
			p.tracker.SetPartition(number)
			opts = append(opts, modularity.WithSplitTracker(p.tracker))
		}
		result, err = modularity.NewDetector(opts...).DetectDistances(ctx, dist, actors)
		if err != nil {
			return nil, nil, fmt.Errorf("partition %d: %w", number, err)
		}
	}

	if err := p.store.SaveResult(ctx, number, result); err != nil {
		return nil, nil, err
	}

	var baseline *float64
	if p.cfg.BaselineLouvain() && result.Status != modularity.StatusNoEdges {
		q, err := p.baseline(ctx, dist, actors, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("partition %d baseline: %w", number, err)
		}
		baseline = &q
	}

	if p.metrics != nil {
		p.metrics.PartitionsTotal.WithLabelValues(string(result.Status)).Inc()
		p.metrics.SplitsAccepted.Add(float64(result.Splits))
		p.metrics.LastModularity.Set(result.Modularity)
	}
	p.observe("detect", start)

	logger.Info().
		Str("status", string(result.Status)).
		Int("communities", len(result.Communities())).
		Float64("modularity", result.Modularity).
		Msg("Partition processed")

	return result, baseline, nil
}

// baseline runs Louvain on the symmetrised similarity graph
func (p *Pipeline) baseline(ctx context.Context, dist *mat.Dense, actors []string, logger zerolog.Logger) (float64, error) {
	g, err := louvain.FromSimilarity(modularity.Similarity(dist))
	if err != nil {
		return 0, err
	}

	cfg := louvain.DefaultConfig()
	cfg.MaxIterations = p.cfg.BaselineMaxIterations()
	cfg.RandomSeed = p.cfg.BaselineRandomSeed()

	res, err := louvain.Run(ctx, g, cfg, logger)
	if err != nil {
		return 0, err
	}
	if p.metrics != nil {
		p.metrics.BaselineModularity.Set(res.Modularity)
	}
	logger.Debug().
		Int("communities", len(res.Groups(actors))).
		Float64("modularity", res.Modularity).
		Msg("Louvain baseline")
	return res.Modularity, nil
}

// Run splits events and processes every partition in order. Degenerate
// partitions are recorded with their status; only errors stop the run.
func (p *Pipeline) Run(ctx context.Context, events []temporal.Event) (*Report, error) {
	start := time.Now()

	parts, err := p.Split(ctx, events)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:        p.runID,
		Stats:        partition.Summarize(parts),
		Partitions:   make([]PartitionReport, 0, len(parts)),
		Modularities: make(map[int]float64, len(parts)),
	}

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted before partition %d: %w", part.Number, err)
		}

		pr, err := p.process(ctx, part)
		if err != nil {
			return nil, err
		}
		report.Partitions = append(report.Partitions, pr)
		report.Modularities[part.Number] = pr.Modularity
	}

	if err := p.store.SaveModularities(ctx, report.Modularities); err != nil {
		return nil, fmt.Errorf("failed to save modularities: %w", err)
	}

	report.RuntimeMS = time.Since(start).Milliseconds()
	p.logger.Info().
		Int("partitions", len(report.Partitions)).
		Int64("runtime_ms", report.RuntimeMS).
		Msg("Run completed")
	return report, nil
}

func (p *Pipeline) process(ctx context.Context, part partition.Partition) (PartitionReport, error) {
	start := time.Now()

	if _, err := p.Convert(ctx, part.Number); err != nil {
		return PartitionReport{}, err
	}
	result, baseline, err := p.Detect(ctx, part.Number)
	if err != nil {
		return PartitionReport{}, err
	}

	return PartitionReport{
		Number:             part.Number,
		Actors:             len(part.Actors),
		Status:             result.Status,
		Modularity:         result.Modularity,
		Communities:        len(result.Communities()),
		Splits:             result.Splits,
		BaselineModularity: baseline,
		RuntimeMS:          time.Since(start).Milliseconds(),
	}, nil
}

// Modularities collects the stored results of every partition, keyed by number
func (p *Pipeline) Modularities(ctx context.Context) (map[int]float64, error) {
	numbers, err := p.store.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	q := make(map[int]float64, len(numbers))
	for _, n := range numbers {
		r, err := p.store.LoadResult(ctx, n)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		q[n] = r.Modularity
	}
	return q, nil
}

func (p *Pipeline) observe(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.PartitionDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

package modularity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// DefaultEpsilon is the smallest sub-split gain treated as an improvement
const DefaultEpsilon = 1e-10

// Status describes the outcome of detection on one graph
type Status string

const (
	// StatusDetected means at least the top-level split improved modularity
	StatusDetected Status = "detected"
	// StatusNoEdges means the graph has zero total weight
	StatusNoEdges Status = "no_edges"
	// StatusNoCommunityStructure means the top-level split did not improve modularity
	StatusNoCommunityStructure Status = "no_community_structure"
)

// Result is the community structure found in one graph
type Result struct {
	Status      Status     `json:"status"`
	Hierarchy   *Hierarchy `json:"communities"`
	Modularity  float64    `json:"modularity"`
	Splits      int        `json:"splits"`
	TotalWeight float64    `json:"total_weight"`
	RuntimeMS   int64      `json:"runtime_ms"`
}

// Communities returns the flat partition of the hierarchy
func (r *Result) Communities() [][]string {
	return Flatten(r.Hierarchy)
}

// SplitTracker receives every accepted bisection
type SplitTracker interface {
	LogSplit(depth, size, left, right int, gain, modularity float64)
}

// Option configures a Detector
type Option func(*Detector)

// WithEpsilon sets the minimum gain for accepting a sub-split
func WithEpsilon(eps float64) Option {
	return func(d *Detector) {
		if eps >= 0 {
			d.epsilon = eps
		}
	}
}

// WithLogger sets the detector's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithSplitTracker records accepted splits to tracker
func WithSplitTracker(tracker SplitTracker) Option {
	return func(d *Detector) {
		d.tracker = tracker
	}
}

// Detector runs recursive spectral modularity maximisation
type Detector struct {
	epsilon float64
	logger  zerolog.Logger
	tracker SplitTracker
}

// NewDetector creates a detector with the given options
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		epsilon: DefaultEpsilon,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectDistances converts a distance matrix to similarities and runs Detect
func (d *Detector) DetectDistances(ctx context.Context, dist mat.Matrix, labels []string) (*Result, error) {
	return d.Detect(ctx, Similarity(dist), labels)
}

// Detect finds the community hierarchy of the similarity matrix a, whose rows
// and columns are named by labels. Graphs without edges or without a
// beneficial top-level split yield an empty hierarchy and a non-error status.
func (d *Detector) Detect(ctx context.Context, a mat.Matrix, labels []string) (*Result, error) {
	start := time.Now()

	n, c := a.Dims()
	if n != c {
		return nil, ErrNotSquare
	}
	if len(labels) != n {
		return nil, fmt.Errorf("%d labels for %d nodes: %w", len(labels), n, ErrDimensionMismatch)
	}
	if n == 0 {
		return &Result{Status: StatusNoEdges}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, m := NewMatrix(a)
	if m == 0 {
		d.logger.Info().Int("nodes", n).Msg("There are no edges, skipping")
		return &Result{Status: StatusNoEdges, RuntimeMS: time.Since(start).Milliseconds()}, nil
	}

	top, err := Bisect(b, m)
	if err != nil {
		return nil, fmt.Errorf("top-level bisection failed: %w", err)
	}
	if top.Gain <= 0 || !top.Divides() {
		d.logger.Info().
			Int("nodes", n).
			Float64("gain", top.Gain).
			Msg("No community structure detected")
		return &Result{
			Status:      StatusNoCommunityStructure,
			Modularity:  top.Gain,
			TotalWeight: m,
			RuntimeMS:   time.Since(start).Milliseconds(),
		}, nil
	}

	s := &search{
		detector: d,
		b:        b,
		m:        m,
		labels:   labels,
		splits:   1,
	}
	d.track(0, n, top, top.Gain)

	q := top.Gain
	left, q, err := s.refine(ctx, top.Community1, 1, q)
	if err != nil {
		return nil, err
	}
	right, q, err := s.refine(ctx, top.Community2, 1, q)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Status:      StatusDetected,
		Hierarchy:   NewSplit(left, right),
		Modularity:  q,
		Splits:      s.splits,
		TotalWeight: m,
		RuntimeMS:   time.Since(start).Milliseconds(),
	}

	d.logger.Info().
		Int("nodes", n).
		Int("splits", result.Splits).
		Int("communities", len(result.Communities())).
		Float64("modularity", result.Modularity).
		Int64("runtime_ms", result.RuntimeMS).
		Msg("Community detection completed")

	return result, nil
}

func (d *Detector) track(depth, size int, split Split, q float64) {
	if d.tracker != nil {
		d.tracker.LogSplit(depth, size, len(split.Community1), len(split.Community2), split.Gain, q)
	}
}

// search holds the scope shared by one recursive detection
type search struct {
	detector *Detector
	b        *mat.Dense
	m        float64
	labels   []string
	splits   int
}

// refine bisects the community idx (indices into b) until no split gains more
// than epsilon. q is the running modularity, returned with the accepted gains added.
func (s *search) refine(ctx context.Context, idx []int, depth int, q float64) (*Hierarchy, float64, error) {
	leaf := Leaf(s.labelsOf(idx)...)
	if len(idx) < 2 {
		return leaf, q, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, q, err
	}

	split, err := Bisect(Restrict(s.b, idx), s.m)
	if err != nil {
		return nil, q, fmt.Errorf("bisection at depth %d failed: %w", depth, err)
	}
	if split.Gain <= s.detector.epsilon || !split.Divides() {
		return leaf, q, nil
	}

	q += split.Gain
	s.splits++
	s.detector.track(depth, len(idx), split, q)
	s.detector.logger.Debug().
		Int("depth", depth).
		Int("size", len(idx)).
		Float64("gain", split.Gain).
		Float64("modularity", q).
		Msg("Accepted split")

	left, q, err := s.refine(ctx, pick(idx, split.Community1), depth+1, q)
	if err != nil {
		return nil, q, err
	}
	right, q, err := s.refine(ctx, pick(idx, split.Community2), depth+1, q)
	if err != nil {
		return nil, q, err
	}
	return NewSplit(left, right), q, nil
}

func (s *search) labelsOf(idx []int) []string {
	labels := make([]string, len(idx))
	for i, k := range idx {
		labels[i] = s.labels[k]
	}
	return labels
}

// pick maps local positions back to global indices
func pick(idx, local []int) []int {
	global := make([]int, len(local))
	for i, k := range local {
		global[i] = idx[k]
	}
	return global
}

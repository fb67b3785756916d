package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the pipeline
type Registry struct {
	PartitionsTotal    *prometheus.CounterVec
	PartitionDuration  *prometheus.HistogramVec
	PairsComputed      prometheus.Counter
	TemporalVersions   prometheus.Gauge
	SplitsAccepted     prometheus.Counter
	LastModularity     prometheus.Gauge
	BaselineModularity prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a registry with every pipeline metric registered
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.PartitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "tgcd_partitions_total",
			Help: "Partitions processed, by outcome status",
		},
		[]string{"status"},
	)

	r.PartitionDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tgcd_partition_duration_seconds",
			Help:    "Time spent per partition stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"stage"},
	)

	r.PairsComputed = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "tgcd_proximity_pairs_total",
			Help: "Actor pairs whose average temporal proximity was computed",
		},
	)

	r.TemporalVersions = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "tgcd_temporal_versions",
			Help: "Number of versions in the last built time-expanded graph",
		},
	)

	r.SplitsAccepted = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "tgcd_splits_accepted_total",
			Help: "Community bisections accepted",
		},
	)

	r.LastModularity = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "tgcd_last_modularity",
			Help: "Global modularity of the last processed partition",
		},
	)

	r.BaselineModularity = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "tgcd_baseline_modularity",
			Help: "Louvain baseline modularity of the last processed partition",
		},
	)

	return r
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns the HTTP handler serving the registry
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// NewRouter creates a router exposing /metrics and /healthz
func (r *Registry) NewRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", r.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return router
}

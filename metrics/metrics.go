package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	stageLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grounding_stage_latency_ms",
		Help:    "Latency of pipeline stages in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 300, 500, 800, 1200, 2000},
	}, []string{"stage"})

	stageCandidates = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grounding_stage_candidates",
		Help:    "Number of candidates leaving a pipeline stage",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 30, 60, 100, 200},
	}, []string{"stage"})

	anchorsInjected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grounding_anchors_injected_total",
		Help: "Statutory anchor documents forced into candidate pools",
	})

	preselections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grounding_bm25_preselections_total",
		Help: "Pools large enough to trigger BM25 preselection",
	})

	stageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grounding_stage_failures_total",
		Help: "Clause retrievals aborted, by failing stage",
	}, []string{"stage"})

	resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grounding_resolution_total",
		Help: "Evidence packs by resolution label",
	}, []string{"resolution"})

	groundedness = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grounding_groundedness",
		Help:    "Groundedness score distribution",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
	})
)

// Register adds the collectors to the default prometheus registry. It is
// idempotent and also happens on first use.
func Register() { ensureRegistered() }

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// ObserveStage records latency and output size of a pipeline stage.
func ObserveStage(stage string, start time.Time, results int) {
	ensureRegistered()
	stageLatency.WithLabelValues(stage).Observe(float64(time.Since(start).Milliseconds()))
	if results >= 0 {
		stageCandidates.WithLabelValues(stage).Observe(float64(results))
	}
}

// AddAnchors counts injected anchor documents.
func AddAnchors(n int) {
	ensureRegistered()
	anchorsInjected.Add(float64(n))
}

// IncPreselect records a triggered BM25 preselection.
func IncPreselect() {
	ensureRegistered()
	preselections.Inc()
}

// IncFailure records a clause aborted at stage.
func IncFailure(stage string) {
	ensureRegistered()
	stageFailures.WithLabelValues(stage).Inc()
}

// ObserveOutcome records the resolution and groundedness of a finished pack.
func ObserveOutcome(resolution string, score float64) {
	ensureRegistered()
	resolutions.WithLabelValues(resolution).Inc()
	if score >= 0 {
		groundedness.Observe(score)
	}
}

// Collectors exposes all collectors for external registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		stageLatency, stageCandidates, anchorsInjected, preselections, stageFailures, resolutions, groundedness,
	}
}

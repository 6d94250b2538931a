package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the depot's request-facing counters and histograms,
// grounded on pkg/modelagent/metrics.go's promauto.With(registerer)
// registration pattern.
type Metrics struct {
	DownloadsStarted   *prometheus.CounterVec
	DownloadsCompleted *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	EmbeddingDuration  *prometheus.HistogramVec
	ModelsLoaded       prometheus.Gauge
}

// NewMetrics registers the depot's metrics against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		DownloadsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "download",
			Name:      "started_total",
			Help:      "Number of downloads started, labeled by model type.",
		}, []string{"type"}),
		DownloadsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "download",
			Name:      "completed_total",
			Help:      "Number of downloads completed, labeled by terminal status.",
		}, []string{"status"}),
		GenerationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "depot",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Generation request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"finish_reason"}),
		EmbeddingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "depot",
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Embedding request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),
		ModelsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "depot",
			Subsystem: "adapter",
			Name:      "models_loaded",
			Help:      "Number of models currently in the Loaded runtime state.",
		}),
	}
}

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "etl"

// Metrics are the pipeline's Prometheus collectors. They are registered on a
// caller-provided registry so a one-shot run can dump them to a textfile.
type Metrics struct {
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	inputFiles    *prometheus.CounterVec
	rowsWritten   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by outcome.",
			},
			[]string{"status"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"stage"},
		),
		inputFiles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "input_files_total",
				Help:      "Reading files seen during extraction, by validity.",
			},
			[]string{"status"},
		),
		rowsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_written_total",
				Help:      "Rows written per sink and table.",
			},
			[]string{"sink", "table"},
		),
	}
}

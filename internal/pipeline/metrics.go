package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rowsLoaded    prometheus.Counter

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers the pipeline metrics with the default registry.
// Calling it more than once is a no-op. Until it runs, recording is skipped.
func InitMetrics() {
	metricsOnce.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsload_pipeline_runs_total",
				Help: "Total number of pipeline runs by final status",
			},
			[]string{"status"},
		)

		stageDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dsload_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"stage"},
		)

		rowsLoaded = promauto.NewCounter(prometheus.CounterOpts{
			Name: "dsload_rows_loaded_total",
			Help: "Total number of rows appended to warehouse tables",
		})

		metricsRegistered = true
	})
}

// IsMetricsRegistered reports whether InitMetrics has run
func IsMetricsRegistered() bool {
	return metricsRegistered
}

func recordStage(stage State, seconds float64) {
	if !metricsRegistered {
		return
	}
	stageDuration.WithLabelValues(string(stage)).Observe(seconds)
}

func recordRun(status State, rows int64) {
	if !metricsRegistered {
		return
	}
	runsTotal.WithLabelValues(string(status)).Inc()
	if rows > 0 {
		rowsLoaded.Add(float64(rows))
	}
}

// WriteTextfile writes the default registry in the node exporter textfile
// format, for batch runs that are not scraped directly
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

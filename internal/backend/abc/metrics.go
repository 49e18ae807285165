package abc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/aigrace/internal/model"
)

var (
	activeProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aigrace_abc_active_processes",
			Help: "Number of ABC processes currently running.",
		},
	)

	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigrace_abc_invocation_seconds",
			Help:    "Wall-clock duration of ABC invocations from start to reap, in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"label"},
	)

	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigrace_abc_invocations_total",
			Help: "Total number of ABC invocations by label and final status.",
		},
		[]string{"label", "status"},
	)
)

func init() {
	prometheus.MustRegister(activeProcesses)
	prometheus.MustRegister(invocationDuration)
	prometheus.MustRegister(invocationsTotal)

	// Pre-initialize engine label combinations so they appear in /metrics
	// with value 0 from startup, rather than only after first observation.
	for _, e := range model.AllEngines {
		invocationsTotal.WithLabelValues(e.String(), statusCompleted)
		invocationsTotal.WithLabelValues(e.String(), statusKilled)
		invocationsTotal.WithLabelValues(e.String(), statusLaunchFailed)
	}
}

package runner

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigrace_runs_total",
			Help: "Total number of finished runs by final status and verdict.",
		},
		[]string{"status", "verdict"},
	)

	runsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aigrace_runs_in_flight",
		Help: "Number of runs currently executing.",
	})
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runsInFlight)
}

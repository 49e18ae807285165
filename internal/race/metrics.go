package race

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/verdict"
)

var (
	engineResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigrace_engine_results_total",
			Help: "Total number of engine worker results by engine and verdict.",
		},
		[]string{"engine", "verdict"},
	)

	raceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigrace_race_duration_seconds",
			Help:    "Race duration from launch to last worker reaped, in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"verdict"},
	)

	raceWinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigrace_race_wins_total",
			Help: "Total number of races won, by winning engine.",
		},
		[]string{"engine"},
	)
)

func init() {
	prometheus.MustRegister(engineResultsTotal)
	prometheus.MustRegister(raceDuration)
	prometheus.MustRegister(raceWinsTotal)

	for _, e := range model.AllEngines {
		raceWinsTotal.WithLabelValues(e.String())
		for _, v := range verdict.All {
			engineResultsTotal.WithLabelValues(e.String(), string(v))
		}
	}
}

package pipeline

import "github.com/prometheus/client_golang/prometheus"

var transformsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aigrace_transforms_total",
		Help: "Total number of transform stages by stage name and outcome.",
	},
	[]string{"stage", "outcome"},
)

func init() {
	prometheus.MustRegister(transformsTotal)
}

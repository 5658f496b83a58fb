package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPlanMetrics() {
	r.PlanLoadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "posh_plan_loads_total",
			Help: "Total number of plan document loads",
		},
		[]string{"status"}, // success, error
	)

	r.PlanLoadDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "posh_plan_load_duration_seconds",
			Help:    "Plan document load duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	r.PlanElements = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "posh_plan_elements",
			Help: "Number of elements in the published behavior graph",
		},
		[]string{"category"},
	)

	r.PlanSynthesizedActions = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "posh_plan_synthesized_actions",
			Help: "Actions created implicitly for unmatched trigger names in the published graph",
		},
	)

	r.PlanGeneration = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "posh_plan_generation",
			Help: "Generation number of the published behavior graph",
		},
	)
}

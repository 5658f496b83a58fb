package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTelemetryMetrics() {
	r.SessionsActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "posh_telemetry_sessions_active",
			Help: "Number of live telemetry sessions",
		},
	)

	r.SessionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "posh_telemetry_sessions_total",
			Help: "Total number of finished telemetry sessions",
		},
		[]string{"outcome"}, // bye, eof, stopped, fault
	)

	r.ScriptLinesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "posh_telemetry_script_lines_total",
			Help: "Command script lines processed by the dispatcher",
		},
		[]string{"kind"}, // forwarded, directive, skipped, include
	)

	r.DirectiveErrorsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "posh_telemetry_directive_errors_total",
			Help: "Malformed directive lines skipped by the dispatcher",
		},
	)

	r.LinesDecodedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "posh_telemetry_lines_total",
			Help: "Inbound status lines by decode path",
		},
		[]string{"kind"}, // diagnostic, releaser, lifecycle, other
	)

	r.DecodeErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "posh_telemetry_decode_errors_total",
			Help: "Inbound status lines whose numeric fields could not be decoded",
		},
		[]string{"kind"},
	)

	r.ElementsMarkedDirty = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "posh_telemetry_elements_marked_dirty_total",
			Help: "Behavior-graph elements marked for refresh by telemetry",
		},
		[]string{"category"},
	)

	r.NotificationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "posh_notify_events_total",
			Help: "Dirty-element notifications by delivery result",
		},
		[]string{"result"}, // published, dropped, error
	)
}

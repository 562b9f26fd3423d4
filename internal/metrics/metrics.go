// Package metrics exposes Prometheus collectors for the chat pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Source labels.
const (
	SourceWorkspace  = "workspace"
	SourceDocuments  = "documents"
	SourceCompletion = "completion"
)

// Recorder owns the pipeline collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	turns          *prometheus.CounterVec
	sourceRequests *prometheus.CounterVec
	sourceLatency  *prometheus.HistogramVec
	routeDecisions *prometheus.CounterVec
	sessions       prometheus.Gauge
}

// New creates a Recorder and registers it with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shodobot_turns_total",
			Help: "Processed chat turns by outcome (ok/apology)",
		}, []string{"outcome"}),
		sourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shodobot_source_requests_total",
			Help: "Calls to knowledge sources and the completion service by outcome",
		}, []string{"source", "outcome"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shodobot_source_latency_ms",
			Help:    "Latency of outbound calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
		}, []string{"source"}),
		routeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shodobot_route_decisions_total",
			Help: "Intent router decisions",
		}, []string{"route"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shodobot_sessions",
			Help: "Number of live conversation sessions",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.Collectors()...)
	}
	return r
}

// Collectors lists every collector for registration with a custom registry.
func (r *Recorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.turns, r.sourceRequests, r.sourceLatency, r.routeDecisions, r.sessions}
}

// IncTurn counts a finished turn.
func (r *Recorder) IncTurn(outcome string) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(outcome).Inc()
}

// ObserveSource records one outbound call.
func (r *Recorder) ObserveSource(source string, start time.Time, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.sourceRequests.WithLabelValues(source, outcome).Inc()
	r.sourceLatency.WithLabelValues(source).Observe(float64(time.Since(start).Milliseconds()))
}

// IncRoute records a router decision label.
func (r *Recorder) IncRoute(route string) {
	if r == nil {
		return
	}
	r.routeDecisions.WithLabelValues(route).Inc()
}

// SetSessions reports the number of live sessions.
func (r *Recorder) SetSessions(n int) {
	if r == nil {
		return
	}
	r.sessions.Set(float64(n))
}

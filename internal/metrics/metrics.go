// Package metrics exposes run and channel counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds every lanebot collector on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	eventsPublished *prometheus.CounterVec
	observers       prometheus.Gauge
	observerDrops   *prometheus.CounterVec
	relayDelivered  prometheus.Counter
	relayDropped    prometheus.Counter
	cycles          *prometheus.CounterVec
	scanResults     *prometheus.HistogramVec
	runState        *prometheus.GaugeVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lanebot_events_published_total",
				Help: "Run events broadcast to observers, by event type",
			},
			[]string{"type"},
		),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanebot_observers",
			Help: "Currently connected observers",
		}),
		observerDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lanebot_observer_drops_total",
				Help: "Observers disconnected by the server, by reason",
			},
			[]string{"reason"},
		),
		relayDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanebot_relay_messages_total",
			Help: "Relay messages accepted from observers",
		}),
		relayDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanebot_relay_dropped_total",
			Help: "Relay messages dropped by the per-observer rate limit",
		}),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lanebot_cycles_total",
				Help: "Completed or aborted run cycles, by outcome",
			},
			[]string{"outcome"},
		),
		scanResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lanebot_scan_result",
				Help:    "Scan results (mm for strafe, degrees for tilt)",
				Buckets: prometheus.LinearBuckets(-600, 50, 25),
			},
			[]string{"scan"},
		),
		runState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lanebot_run_state",
				Help: "1 for the active run state, 0 otherwise",
			},
			[]string{"state"},
		),
	}
	r.registry.MustRegister(
		r.eventsPublished,
		r.observers,
		r.observerDrops,
		r.relayDelivered,
		r.relayDropped,
		r.cycles,
		r.scanResults,
		r.runState,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// The methods below accept a nil receiver so callers can run without metrics.

func (r *Recorder) EventPublished(eventType string) {
	if r != nil {
		r.eventsPublished.WithLabelValues(eventType).Inc()
	}
}

func (r *Recorder) ObserverConnected() {
	if r != nil {
		r.observers.Inc()
	}
}

func (r *Recorder) ObserverDisconnected() {
	if r != nil {
		r.observers.Dec()
	}
}

func (r *Recorder) ObserverDropped(reason string) {
	if r != nil {
		r.observerDrops.WithLabelValues(reason).Inc()
	}
}

func (r *Recorder) RelayDelivered() {
	if r != nil {
		r.relayDelivered.Inc()
	}
}

func (r *Recorder) RelayDropped() {
	if r != nil {
		r.relayDropped.Inc()
	}
}

func (r *Recorder) CycleFinished(outcome string) {
	if r != nil {
		r.cycles.WithLabelValues(outcome).Inc()
	}
}

func (r *Recorder) ScanResult(scan string, value float64) {
	if r != nil {
		r.scanResults.WithLabelValues(scan).Observe(value)
	}
}

// StateChanged marks state as the only active run state.
func (r *Recorder) StateChanged(from, to string) {
	if r == nil {
		return
	}
	if from != "" {
		r.runState.WithLabelValues(from).Set(0)
	}
	r.runState.WithLabelValues(to).Set(1)
}

// Package metrics exposes Prometheus counters/histograms for the router's
// core concerns: routing cache effectiveness, queue submissions and
// overflow, correlator waiters, and event-bus reconnects.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups all router instrumentation behind one registerable type.
type Metrics struct {
	routingCacheHits   prometheus.Counter
	routingCacheMisses prometheus.Counter

	queueSubmissions *prometheus.CounterVec
	queueOverflows   prometheus.Counter

	correlatorWaitersActive prometheus.Gauge
	correlatorResolved      *prometheus.CounterVec

	eventBusReconnects prometheus.Counter
	eventBusState       *prometheus.GaugeVec

	forwardLatency *prometheus.HistogramVec
}

// New builds and registers router metrics against reg. If reg is nil, the
// default Prometheus registerer is used.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		routingCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ce_router",
			Subsystem: "routing",
			Name:      "cache_hits_total",
			Help:      "Routing resolver cache hits.",
		}),
		routingCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ce_router",
			Subsystem: "routing",
			Name:      "cache_misses_total",
			Help:      "Routing resolver cache misses.",
		}),
		queueSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ce_router",
			Subsystem: "queue",
			Name:      "submissions_total",
			Help:      "Queue submissions by outcome.",
		}, []string{"outcome"}),
		queueOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ce_router",
			Subsystem: "queue",
			Name:      "overflow_total",
			Help:      "Queue messages routed through S3 overflow.",
		}),
		correlatorWaitersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ce_router",
			Subsystem: "correlator",
			Name:      "waiters_active",
			Help:      "In-flight correlator waiters.",
		}),
		correlatorResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ce_router",
			Subsystem: "correlator",
			Name:      "resolved_total",
			Help:      "Correlator waiter resolutions by outcome.",
		}, []string{"outcome"}),
		eventBusReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ce_router",
			Subsystem: "eventbus",
			Name:      "reconnects_total",
			Help:      "Event-bus reconnect attempts.",
		}),
		eventBusState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ce_router",
			Subsystem: "eventbus",
			Name:      "state",
			Help:      "Event-bus connection state (1 = current state).",
		}, []string{"state"}),
		forwardLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ce_router",
			Subsystem: "forwarder",
			Name:      "latency_seconds",
			Help:      "Direct HTTP forward latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.routingCacheHits,
		m.routingCacheMisses,
		m.queueSubmissions,
		m.queueOverflows,
		m.correlatorWaitersActive,
		m.correlatorResolved,
		m.eventBusReconnects,
		m.eventBusState,
		m.forwardLatency,
	)
	return m
}

func (m *Metrics) RoutingCacheHit() {
	if m == nil {
		return
	}
	m.routingCacheHits.Inc()
}

func (m *Metrics) RoutingCacheMiss() {
	if m == nil {
		return
	}
	m.routingCacheMisses.Inc()
}

func (m *Metrics) QueueSubmission(outcome string) {
	if m == nil {
		return
	}
	m.queueSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueueOverflow() {
	if m == nil {
		return
	}
	m.queueOverflows.Inc()
}

func (m *Metrics) WaitersActive(n int) {
	if m == nil {
		return
	}
	m.correlatorWaitersActive.Set(float64(n))
}

func (m *Metrics) CorrelatorResolved(outcome string) {
	if m == nil {
		return
	}
	m.correlatorResolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventBusReconnect() {
	if m == nil {
		return
	}
	m.eventBusReconnects.Inc()
}

func (m *Metrics) EventBusState(state string) {
	if m == nil {
		return
	}
	for _, s := range []string{"disconnected", "connecting", "open", "closing", "closed"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.eventBusState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ForwardLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.forwardLatency.WithLabelValues(status).Observe(seconds)
}

// Package metrics exports dispatcher activity as Prometheus metrics.
// A Collector is both a dispatcher Observer and Recorder; it owns its
// registry so several dispatchers can coexist in one process.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blockberries/facetroute/dispatcher"
	"github.com/blockberries/facetroute/types"
)

var (
	_ dispatcher.Observer = (*Collector)(nil)
	_ dispatcher.Recorder = (*Collector)(nil)
)

// Collector provides dispatcher metrics collection.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	opsTotal   *prometheus.CounterVec
	opLatency  *prometheus.HistogramVec
	eventTotal *prometheus.CounterVec

	activeEpoch  prometheus.Gauge
	pendingEpoch prometheus.Gauge
	frozen       prometheus.Gauge

	liveOnce sync.Once
}

// NewCollector creates a collector registering under namespace
// ("facetroute" when empty).
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "facetroute"
	}
	c := &Collector{namespace: namespace, registry: prometheus.NewRegistry()}

	c.opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "operations_total",
			Help:      "Governance operations by outcome (ok, error kind, or error)",
		},
		[]string{"op", "outcome"},
	)
	c.opLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "operation_duration_seconds",
			Help:      "Time taken by governance operations, including persistence",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
		},
		[]string{"op"},
	)
	c.eventTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "events_total",
			Help:      "Notifications emitted by kind",
		},
		[]string{"kind"},
	)
	c.activeEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "active_epoch",
		Help:      "Epoch of the active routing version",
	})
	c.pendingEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "pending_epoch",
		Help:      "Epoch of the pending root, 0 when none is pending",
	})
	c.frozen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "frozen",
		Help:      "1 once the dispatcher is frozen",
	})

	c.registry.MustRegister(
		c.opsTotal,
		c.opLatency,
		c.eventTotal,
		c.activeEpoch,
		c.pendingEpoch,
		c.frozen,
	)
	return c
}

// ObserveOp implements dispatcher.Recorder.
func (c *Collector) ObserveOp(op, outcome string, elapsed time.Duration) {
	c.opsTotal.WithLabelValues(op, outcome).Inc()
	c.opLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// OnEvent implements dispatcher.Observer.
func (c *Collector) OnEvent(ev types.Event) {
	c.eventTotal.WithLabelValues(ev.Kind.String()).Inc()
	switch ev.Kind {
	case types.EventCommitted:
		c.pendingEpoch.Set(float64(ev.Epoch))
	case types.EventVersionChanged:
		c.activeEpoch.Set(float64(ev.Epoch))
		c.pendingEpoch.Set(0)
	case types.EventFrozen:
		c.frozen.Set(1)
	}
}

// Sync sets the state gauges from st, typically once after a dispatcher
// has been restored from a store.
func (c *Collector) Sync(st types.State) {
	c.activeEpoch.Set(float64(st.ActiveEpoch))
	if st.HasPending() {
		c.pendingEpoch.Set(float64(st.PendingEpoch))
	} else {
		c.pendingEpoch.Set(0)
	}
	if st.Frozen {
		c.frozen.Set(1)
	} else {
		c.frozen.Set(0)
	}
}

// TrackLiveRoutes exports the live route count read from fn at scrape
// time. Only the first call has an effect.
func (c *Collector) TrackLiveRoutes(fn func() int) {
	c.liveOnce.Do(func() {
		c.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: c.namespace,
				Subsystem: "dispatcher",
				Name:      "live_routes",
				Help:      "Routes currently resolvable",
			},
			func() float64 { return float64(fn()) },
		))
	})
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Package observability provides Prometheus metrics and OpenTelemetry
// tracing instruments for the dispatcher.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the metric instruments, registered against the supplied
// Prometheus registerer.
type Metrics struct {
	EventsTotal       prometheus.Counter
	DeliveriesTotal   *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	DLQSize           prometheus.Gauge
	PendingDeliveries prometheus.Gauge
}

// NewMetrics creates and registers the dispatcher's metric instruments.
// Pass prometheus.DefaultRegisterer, or a private registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hookline_events_total",
			Help: "Total number of events accepted for fan-out.",
		}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Total delivery attempts by outcome status.",
		}, []string{"status"}),
		DeliveryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hookline_delivery_latency_seconds",
			Help:    "Latency of webhook delivery attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		DLQSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hookline_dlq_size",
			Help: "Number of entries pushed to the dead letter queue.",
		}),
		PendingDeliveries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hookline_pending_deliveries",
			Help: "Number of deliveries awaiting an attempt.",
		}),
	}
}

// RecordDelivery records a delivery attempt with the given outcome status
// and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

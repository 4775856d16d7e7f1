// Package metrics exposes POS counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "tagpos"

// Metrics is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	ordersTotal      *prometheus.CounterVec
	paymentsTotal    *prometheus.CounterVec
	receiptsTotal    *prometheus.CounterVec
	returnsTotal     prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDurationSecs *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Gateway order creation attempts by outcome.",
		}, []string{"outcome"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Finalized payments by transaction status.",
		}, []string{"status"}),
		receiptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Receipt deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		returnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_total",
			Help:      "Line items returned.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		httpDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	registry.MustRegister(
		m.ordersTotal,
		m.paymentsTotal,
		m.receiptsTotal,
		m.returnsTotal,
		m.httpRequests,
		m.httpDurationSecs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) OrderRequested(outcome string) {
	m.ordersTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PaymentFinalized(status string) {
	m.paymentsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ReceiptDelivered(channel string, success bool) {
	outcome := "failed"
	if success {
		outcome = "sent"
	}
	m.receiptsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ItemReturned() {
	m.returnsTotal.Inc()
}

func (m *Metrics) ObserveHTTP(method string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDurationSecs.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}

// Package metrics holds the Prometheus instruments for vending, payments,
// notifications and gateway calls. Every method is safe on a nil *Metrics so
// callers can run without instrumentation.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultTimeout   = "timeout"
	ResultPartial   = "aggregate_failed"
)

type Config struct {
	ServiceName string
	Environment string
}

type Metrics struct {
	registry                *prometheus.Registry
	vends                   *prometheus.CounterVec
	vendDuration            prometheus.Histogram
	payments                *prometheus.CounterVec
	notifications           *prometheus.CounterVec
	aggregateUpdateFailures prometheus.Counter
	gatewayRequests         *prometheus.CounterVec
	tokenCollisions         prometheus.Counter
	dispatchQueueRejections prometheus.Counter
}

// New builds the instruments on a private registry, which also carries the Go and process collectors.
func New(cfg Config) *Metrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "smartwater"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		vends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "smartwater_vends_total",
			Help:        "Vend attempts by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		vendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "smartwater_vend_duration_seconds",
			Help:        "End to end vend latency including notification.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "smartwater_payments_total",
			Help:        "Payment confirmations by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "smartwater_notifications_total",
			Help:        "SMS notifications by provider and outcome.",
			ConstLabels: constLabels,
		}, []string{"provider", "result"}),
		aggregateUpdateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "smartwater_aggregate_update_failures_total",
			Help:        "Vends persisted whose meter aggregate could not be updated.",
			ConstLabels: constLabels,
		}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "smartwater_gateway_requests_total",
			Help:        "Payment gateway calls by operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"operation", "result"}),
		tokenCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "smartwater_token_collisions_total",
			Help:        "Generated tokens rejected because they already existed.",
			ConstLabels: constLabels,
		}),
		dispatchQueueRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "smartwater_vend_queue_rejections_total",
			Help:        "Vend jobs refused because the dispatch queue was full.",
			ConstLabels: constLabels,
		}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.vends,
		m.vendDuration,
		m.payments,
		m.notifications,
		m.aggregateUpdateFailures,
		m.gatewayRequests,
		m.tokenCollisions,
		m.dispatchQueueRejections,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveVend(result string, started time.Time) {
	if m == nil {
		return
	}
	m.vends.WithLabelValues(result).Inc()
	m.vendDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) RecordPayment(result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordNotification(provider string, ok bool) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	m.notifications.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) RecordAggregateUpdateFailure() {
	if m == nil {
		return
	}
	m.aggregateUpdateFailures.Inc()
}

func (m *Metrics) RecordGatewayRequest(operation, result string) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) RecordTokenCollision() {
	if m == nil {
		return
	}
	m.tokenCollisions.Inc()
}

func (m *Metrics) RecordQueueRejection() {
	if m == nil {
		return
	}
	m.dispatchQueueRejections.Inc()
}

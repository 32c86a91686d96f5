// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and every collector registered on it.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthAttempts *prometheus.CounterVec

	OrderTransitions *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
	EventsDropped    prometheus.Counter
	Subscribers      prometheus.Gauge
}

// New creates the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_auth_attempts_total",
				Help: "Sign-in attempts by subject type and outcome",
			},
			[]string{"subject", "outcome"},
		),

		OrderTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_order_transitions_total",
				Help: "Order status changes by target status",
			},
			[]string{"status"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_events_published_total",
				Help: "Lifecycle events published by type",
			},
			[]string{"type"},
		),

		EventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fleet_events_dropped_total",
				Help: "Events not delivered to a realtime subscriber because its buffer was full",
			},
		),

		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_realtime_subscribers",
				Help: "Connected realtime subscribers",
			},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttempts,
		m.OrderTransitions,
		m.EventsPublished,
		m.EventsDropped,
		m.Subscribers,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and durations labelled with the matched
// chi route pattern, so ids in paths do not explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordAuthAttempt counts a sign-in attempt.
func (m *Metrics) RecordAuthAttempt(subject string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.AuthAttempts.WithLabelValues(subject, outcome).Inc()
}

// OrderTransitioned counts an order entering status.
func (m *Metrics) OrderTransitioned(status string) {
	m.OrderTransitions.WithLabelValues(status).Inc()
}

// EventPublished counts a published event.
func (m *Metrics) EventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// EventDropped counts an event a subscriber missed.
func (m *Metrics) EventDropped() {
	m.EventsDropped.Inc()
}

// SubscribersChanged moves the subscriber gauge by delta.
func (m *Metrics) SubscribersChanged(delta int) {
	m.Subscribers.Add(float64(delta))
}

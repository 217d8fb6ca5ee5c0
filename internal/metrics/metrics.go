// Package metrics exposes Prometheus counters for the portal.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the portal's collectors on one registry.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	signups         *prometheus.CounterVec
	slotChanges     *prometheus.CounterVec
	cancellations   prometheus.Counter
	notifications   *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpRequestTime *prometheus.HistogramVec
}

// Option configures a Manager.
type Option func(*Manager)

func WithNamespace(ns string) Option { return func(m *Manager) { m.namespace = ns } }

func WithRegistry(r *prometheus.Registry) Option { return func(m *Manager) { m.registry = r } }

func NewManager(opts ...Option) *Manager {
	m := &Manager{namespace: "portal"}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	auto := promauto.With(m.registry)

	m.signups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "meeting_signups_total",
		Help: "Signup attempts by result (created, full, duplicate, started, invalid).",
	}, []string{"result"})
	m.slotChanges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "meeting_slot_changes_total",
		Help: "Meeting slot mutations by action.",
	}, []string{"action"})
	m.cancellations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "meeting_cancellation_notices_total",
		Help: "Cancellation notices queued for signups of deleted slots.",
	})
	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "notifications_written_total",
		Help: "Notification records written by the consumer, by event.",
	}, []string{"event"})
	m.evaluations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "evaluation_upserts_total",
		Help: "Evaluation upserts by result.",
	}, []string{"result"})
	m.rateLimited = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "rate_limited_total",
		Help: "Requests rejected by the token bucket, by route.",
	}, []string{"route"})
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status_code"})
	m.httpRequestTime = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Name: "http_request_duration_seconds",
		Help:    "HTTP request latency by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	return m
}

func (m *Manager) Registry() *prometheus.Registry { return m.registry }

func (m *Manager) SignupResult(result string)     { m.signups.WithLabelValues(result).Inc() }
func (m *Manager) SlotChanged(action string)      { m.slotChanges.WithLabelValues(action).Inc() }
func (m *Manager) CancellationNotices(n int)      { m.cancellations.Add(float64(n)) }
func (m *Manager) NotificationWritten(ev string)  { m.notifications.WithLabelValues(ev).Inc() }
func (m *Manager) EvaluationUpsert(result string) { m.evaluations.WithLabelValues(result).Inc() }
func (m *Manager) RateLimited(route string)       { m.rateLimited.WithLabelValues(route).Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records one request count and latency sample per request.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.httpRequestTime.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

var global = NewManager()

// Default returns the process-wide manager.
func Default() *Manager { return global }

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery failure reasons recorded by Metrics.DeliveryFailed
const (
	DeliveryFull   = "full"
	DeliveryClosed = "closed"
)

// Metrics holds the prometheus collectors of the hub and the outbox client.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec

	sessActive *prometheus.GaugeVec
	sessOpened *prometheus.CounterVec
	sessClosed *prometheus.CounterVec
	sessDur    *prometheus.HistogramVec

	eventsPub    *prometheus.CounterVec
	deliveryFail *prometheus.CounterVec
	busErrors    *prometheus.CounterVec

	outboxPending  prometheus.Gauge
	outboxReplayed *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{registry: r, namespace: ns}

	m.httpReqCnt = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	m.httpDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	m.httpInfl = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(m.httpReqCnt, m.httpDur, m.httpInfl)

	m.sessActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Subsystem: "stream", Name: "sessions_active"}, []string{"scope"})
	m.sessOpened = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "stream", Name: "sessions_opened_total"}, []string{"scope"})
	m.sessClosed = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "stream", Name: "sessions_closed_total"}, []string{"reason"})
	m.sessDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "stream", Name: "session_duration_seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 300},
	}, []string{"reason"})
	r.MustRegister(m.sessActive, m.sessOpened, m.sessClosed, m.sessDur)

	m.eventsPub = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "events_published_total"}, []string{"type", "target"})
	m.deliveryFail = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "delivery_failures_total"}, []string{"reason"})
	m.busErrors = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "bus", Name: "errors_total"}, []string{"backend", "op"})
	r.MustRegister(m.eventsPub, m.deliveryFail, m.busErrors)

	m.outboxPending = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Subsystem: "outbox", Name: "pending_entries"})
	m.outboxReplayed = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "outbox", Name: "replayed_total"}, []string{"result"})
	r.MustRegister(m.outboxPending, m.outboxReplayed)

	return m
}

// SessionOpened records a stream session entering the registry under scope
func (m *Metrics) SessionOpened(scope string) {
	if m == nil {
		return
	}
	m.sessOpened.WithLabelValues(scope).Inc()
	m.sessActive.WithLabelValues(scope).Inc()
}

// SessionClosed records a finished stream session
func (m *Metrics) SessionClosed(scope, reason string, since time.Time) {
	if m == nil {
		return
	}
	m.sessActive.WithLabelValues(scope).Dec()
	m.sessClosed.WithLabelValues(reason).Inc()
	m.sessDur.WithLabelValues(reason).Observe(time.Since(since).Seconds())
}

func (m *Metrics) EventPublished(eventType, target string) {
	if m == nil {
		return
	}
	m.eventsPub.WithLabelValues(eventType, target).Inc()
}

func (m *Metrics) DeliveryFailed(reason string) {
	if m == nil {
		return
	}
	m.deliveryFail.WithLabelValues(reason).Inc()
}

func (m *Metrics) BusError(backend, op string) {
	if m == nil {
		return
	}
	m.busErrors.WithLabelValues(backend, op).Inc()
}

func (m *Metrics) OutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}

func (m *Metrics) OutboxReplayed(result string) {
	if m == nil {
		return
	}
	m.outboxReplayed.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = routeFromURL(c.Request.URL.Path)
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := httpStatus(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// routeFromURL collapses unmatched paths so 404 scans do not explode label cardinality
func routeFromURL(path string) string {
	if strings.HasPrefix(path, "/api/") {
		return "/api/*"
	}
	return "unmatched"
}

func httpStatus(code int) string { return strconv.Itoa(code) }

package observability

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace    = "notify_engine"
	unknownLabel = "unknown"
	unmatched    = "unmatched"
	metricsPath  = "/metrics"
)

// Metrics owns a private registry so tests and multiple roles never collide
// on the global one. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	rateLimitDecisions    *prometheus.CounterVec
	rateLimitFailOpen     *prometheus.CounterVec
	retryOutcomesTotal    *prometheus.CounterVec
	channelSendDuration   *prometheus.HistogramVec
	digestsTotal          *prometheus.CounterVec
	dispatchOutcomesTotal *prometheus.CounterVec
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal:   counter("http_requests_total", "HTTP requests by method, route and status.", "method", "path", "status"),
		httpRequestDuration: histogram("http_request_duration_seconds", "HTTP request latency by method and route.", prometheus.DefBuckets, "method", "path"),

		rateLimitDecisions: counter("rate_limit_decisions_total", "Trailing-log limiter decisions by profile and result.", "profile", "result"),
		rateLimitFailOpen:  counter("rate_limit_fail_open_total", "Requests admitted while the rate limit log store was unavailable.", "profile"),

		retryOutcomesTotal:    counter("retry_outcomes_total", "Retry record outcomes by channel.", "channel", "outcome"),
		channelSendDuration:   histogram("channel_send_duration_seconds", "Channel sender latency by channel.", prometheus.ExponentialBuckets(0.01, 2, 12), "channel"),
		digestsTotal:          counter("digests_total", "Digest results by period.", "period", "result"),
		dispatchOutcomesTotal: counter("dispatch_outcomes_total", "Per-channel intake outcome, delivered or queued.", "channel", "outcome"),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.rateLimitDecisions,
		m.rateLimitFailOpen,
		m.retryOutcomesTotal,
		m.channelSendDuration,
		m.digestsTotal,
		m.dispatchOutcomesTotal,
	)
	return m
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// HTTPMiddleware records one sample per request, labelled by the matched
// route template rather than the raw URL to keep cardinality bounded.
func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := routeTemplate(c)
		if route != metricsPath {
			m.observeRequest(c.Method(), route, responseStatus(c, err), time.Since(start))
		}
		return err
	}
}

func (m *Metrics) IncRateLimitDecision(profile string, allowed bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if allowed {
		result = "allowed"
	}
	m.rateLimitDecisions.WithLabelValues(label(profile), result).Inc()
}

func (m *Metrics) IncRateLimitFailOpen(profile string) {
	if m != nil {
		m.rateLimitFailOpen.WithLabelValues(label(profile)).Inc()
	}
}

func (m *Metrics) IncRetryOutcome(channel, outcome string) {
	if m != nil {
		m.retryOutcomesTotal.WithLabelValues(label(channel), label(outcome)).Inc()
	}
}

func (m *Metrics) ObserveChannelSendDuration(channel string, d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.channelSendDuration.WithLabelValues(label(channel)).Observe(d.Seconds())
}

func (m *Metrics) IncDigest(period, result string) {
	if m != nil {
		m.digestsTotal.WithLabelValues(label(period), label(result)).Inc()
	}
}

func (m *Metrics) IncDispatchOutcome(channel, outcome string) {
	if m != nil {
		m.dispatchOutcomesTotal.WithLabelValues(label(channel), label(outcome)).Inc()
	}
}

func (m *Metrics) observeRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = strings.ToUpper(unknownLabel)
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil {
		if p := strings.TrimSpace(route.Path); p != "" {
			return p
		}
	}
	return unmatched
}

// responseStatus predicts the status the error handler will write, since the
// middleware runs before it.
func responseStatus(c *fiber.Ctx, err error) int {
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe.Code
		}
		return fiber.StatusInternalServerError
	}
	if status := c.Response().StatusCode(); status != 0 {
		return status
	}
	return fiber.StatusOK
}

func label(value string) string {
	if v := strings.ToLower(strings.TrimSpace(value)); v != "" {
		return v
	}
	return unknownLabel
}

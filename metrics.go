package content

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the counters the platform exports. All methods are safe
// on a nil receiver so instrumentation stays optional.
type Metrics struct {
	logins           *prometheus.CounterVec
	guardRejections  *prometheus.CounterVec
	classifiedErrors *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewMetrics registers the platform collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "content",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		guardRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "content",
			Subsystem: "auth",
			Name:      "guard_rejections_total",
			Help:      "Requests rejected by auth guards, by stable code.",
		}, []string{"code"}),
		classifiedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "content",
			Subsystem: "http",
			Name:      "classified_errors_total",
			Help:      "Errors rendered by the classifier, by stable code.",
		}, []string{"code"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "content",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "content",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// LoginAttempt counts one login by outcome ("success", "failure",
// "throttled").
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// GuardRejected counts one guard rejection by stable code.
func (m *Metrics) GuardRejected(code string) {
	if m == nil {
		return
	}
	m.guardRejections.WithLabelValues(code).Inc()
}

// ErrorClassified counts one classified error by stable code.
func (m *Metrics) ErrorClassified(code string) {
	if m == nil {
		return
	}
	m.classifiedErrors.WithLabelValues(code).Inc()
}

// HTTPRequest records one completed request.
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide Prometheus metrics: HTTP traffic, account
// activity and the audit outbox relay. Module metrics live with their module.
type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec
	UsersCreated        *prometheus.CounterVec
	LoginFailures       prometheus.Counter
	OutboxPublished     prometheus.Counter
	OutboxFailures      prometheus.Counter
	OutboxLag           prometheus.Gauge
}

// New creates and registers all process metrics on reg. Passing
// prometheus.DefaultRegisterer matches promauto's package-level functions;
// tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route pattern and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
		UsersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_users_created_total",
			Help: "Total number of user accounts created by role",
		}, []string{"role"}),
		LoginFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_login_failures_total",
			Help: "Total number of failed login attempts",
		}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_audit_outbox_published_total",
			Help: "Audit outbox entries delivered to Kafka",
		}),
		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_audit_outbox_failures_total",
			Help: "Audit outbox relay batches that failed to publish",
		}),
		OutboxLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loan_audit_outbox_pending",
			Help: "Unpublished audit outbox entries seen by the last relay poll",
		}),
	}
}

// ObserveRequest satisfies the request middleware's latency observer.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// IncrementUsersCreated increments the users created counter for role.
func (m *Metrics) IncrementUsersCreated(role string) {
	if m != nil {
		m.UsersCreated.WithLabelValues(role).Inc()
	}
}

// IncrementLoginFailures records one rejected login.
func (m *Metrics) IncrementLoginFailures() {
	if m != nil {
		m.LoginFailures.Inc()
	}
}

// ObserveOutboxBatch records one relay poll: how many entries were pending
// and how many were published.
func (m *Metrics) ObserveOutboxBatch(pending, published int) {
	if m == nil {
		return
	}
	m.OutboxLag.Set(float64(pending))
	m.OutboxPublished.Add(float64(published))
}

// IncrementOutboxFailures records a failed relay batch.
func (m *Metrics) IncrementOutboxFailures() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}

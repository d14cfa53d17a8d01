package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the credential protocol instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Issuances        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	SealFailures     prometheus.Counter
	DegradedIssuance prometheus.Counter
	Verifications    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

// NewMetrics registers all instruments against reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Issuances: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issuances_total",
			Help:      "Issuance runs by final stage and outcome",
		}, []string{"stage", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "issuance_stage_duration_seconds",
			Help:      "Duration of each issuance stage",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"stage"}),
		SealFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seal_failures_total",
			Help:      "Shares that could not be sealed for a custodian",
		}),
		DegradedIssuance: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_issuances_total",
			Help:      "Issuances committed with reduced recoverability or missing records",
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification lookups by key kind and result",
		}, []string{"kind", "result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IssuanceFinished(stage, outcome string) {
	if m == nil {
		return
	}
	m.Issuances.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) SealFailed() {
	if m == nil {
		return
	}
	m.SealFailures.Inc()
}

func (m *Metrics) Degraded() {
	if m == nil {
		return
	}
	m.DegradedIssuance.Inc()
}

func (m *Metrics) Verified(kind, result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, statusLabel(code)).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

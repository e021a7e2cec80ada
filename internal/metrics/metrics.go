// Package metrics содержит счётчики Prometheus для аутентификации, квот и вызовов AI-сервиса.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Исходы операций аутентификации.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeLocked  = "locked"
	OutcomeExpired = "expired"
	OutcomeInvalid = "invalid"
)

// Metrics — набор метрик шлюза на собственном реестре.
type Metrics struct {
	registry *prometheus.Registry

	AuthAttempts     *prometheus.CounterVec
	QuotaRejections  *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	BreakerState     prometheus.Gauge
	UsageTokens      *prometheus.CounterVec
}

// New регистрирует метрики в новом реестре.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "editor",
			Name:      "auth_attempts_total",
			Help:      "Authentication operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		QuotaRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "editor",
			Name:      "quota_rejections_total",
			Help:      "Requests rejected by the quota enforcer by window.",
		}, []string{"window"}),
		UpstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "editor",
			Name:      "upstream_requests_total",
			Help:      "Calls to the AI provider by outcome.",
		}, []string{"outcome"}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "editor",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		UsageTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "editor",
			Name:      "usage_tokens_total",
			Help:      "Tokens recorded in the usage ledger by direction.",
		}, []string{"direction"}),
	}
}

// Handler отдаёт метрики реестра в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AuthAttempt учитывает исход операции аутентификации. Безопасен для nil.
func (m *Metrics) AuthAttempt(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(operation, outcome).Inc()
}

// QuotaRejected учитывает отказ по квоте. Безопасен для nil.
func (m *Metrics) QuotaRejected(window string) {
	if m == nil {
		return
	}
	m.QuotaRejections.WithLabelValues(window).Inc()
}

// UpstreamRequest учитывает вызов внешнего сервиса. Безопасен для nil.
func (m *Metrics) UpstreamRequest(outcome string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(outcome).Inc()
}

// SetBreakerState публикует состояние автомата (0, 1 или 2). Безопасен для nil.
func (m *Metrics) SetBreakerState(v float64) {
	if m == nil {
		return
	}
	m.BreakerState.Set(v)
}

// TokensRecorded учитывает записанный расход. Безопасен для nil.
func (m *Metrics) TokensRecorded(input, output int64) {
	if m == nil {
		return
	}
	m.UsageTokens.WithLabelValues("input").Add(float64(input))
	m.UsageTokens.WithLabelValues("output").Add(float64(output))
}

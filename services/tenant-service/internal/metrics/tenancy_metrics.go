package metrics

import (
	"time"

	"TradeDeskPlatform/pkg/metrics"
	"TradeDeskPlatform/services/tenant-service/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// TenancyMetrics метрики изоляции и провижининга тенантов
type TenancyMetrics struct {
	sessionsActive  prometheus.Gauge
	sessionDuration *prometheus.HistogramVec
	resetFailures   prometheus.Counter

	provisionTotal    *prometheus.CounterVec
	provisionDuration prometheus.Histogram
	quotaRejections   *prometheus.CounterVec
	tenantsByPlan     *prometheus.GaugeVec
}

// NewTenancyMetrics регистрирует метрики в reg
func NewTenancyMetrics(serviceName string, reg prometheus.Registerer) *TenancyMetrics {
	ns := metrics.Namespace(serviceName)

	m := &TenancyMetrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "tenancy",
			Name:      "sessions_active",
			Help:      "Number of connections currently pinned to a tenant schema",
		}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "tenancy",
			Name:      "session_duration_seconds",
			Help:      "Duration of tenant-scoped sessions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		resetFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "tenancy",
			Name:      "search_path_reset_failures_total",
			Help:      "Connections discarded because search_path could not be reset",
		}),
		provisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "provisioning",
			Name:      "tenants_total",
			Help:      "Tenant provisioning attempts by result",
		}, []string{"result"}),
		provisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "provisioning",
			Name:      "duration_seconds",
			Help:      "Duration of tenant schema provisioning in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "policy",
			Name:      "rejections_total",
			Help:      "Operations rejected by plan policy",
		}, []string{"reason"}),
		tenantsByPlan: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "directory",
			Name:      "tenants",
			Help:      "Registered tenants by subscription tier and status",
		}, []string{"tier", "status"}),
	}

	m.sessionsActive = metrics.MustRegister(reg, m.sessionsActive)
	m.sessionDuration = metrics.MustRegister(reg, m.sessionDuration)
	m.resetFailures = metrics.MustRegister(reg, m.resetFailures)
	m.provisionTotal = metrics.MustRegister(reg, m.provisionTotal)
	m.provisionDuration = metrics.MustRegister(reg, m.provisionDuration)
	m.quotaRejections = metrics.MustRegister(reg, m.quotaRejections)
	m.tenantsByPlan = metrics.MustRegister(reg, m.tenantsByPlan)

	return m
}

// SessionStarted соединение закреплено за схемой тенанта
func (m *TenancyMetrics) SessionStarted() {
	m.sessionsActive.Inc()
}

// SessionFinished сессия завершена с исходом outcome
func (m *TenancyMetrics) SessionFinished(outcome string, duration time.Duration) {
	m.sessionsActive.Dec()
	m.sessionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ResetFailed соединение выброшено из пула
func (m *TenancyMetrics) ResetFailed() {
	m.resetFailures.Inc()
}

// ProvisionFinished результат провижининга: created, slug_taken, failed
func (m *TenancyMetrics) ProvisionFinished(result string, duration time.Duration) {
	m.provisionTotal.WithLabelValues(result).Inc()
	m.provisionDuration.Observe(duration.Seconds())
}

// PolicyRejected операция отклонена: trial_expired, quota_exceeded, feature_unavailable
func (m *TenancyMetrics) PolicyRejected(reason string) {
	m.quotaRejections.WithLabelValues(reason).Inc()
}

// SetPlanCounts заменяет значения gauge по тарифам целиком
func (m *TenancyMetrics) SetPlanCounts(counts []domain.PlanCount) {
	m.tenantsByPlan.Reset()
	for _, c := range counts {
		m.tenantsByPlan.WithLabelValues(string(c.Tier), string(c.Status)).Set(float64(c.Count))
	}
}

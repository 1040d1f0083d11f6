// Package metrics содержит prometheus-метрики обхода подписок и отправки писем.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Значения меток result.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Sweep метрики обхода подписок.
type Sweep struct {
	Runs          *prometheus.CounterVec
	Duration      prometheus.Histogram
	Expired       prometheus.Counter
	Notifications *prometheus.CounterVec
}

// NewSweep создает метрики и регистрирует их в reg. Если reg равен nil,
// метрики не регистрируются (удобно для тестов).
func NewSweep(reg prometheus.Registerer) *Sweep {
	m := &Sweep{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Number of subscription sweep runs by result.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of subscription sweep runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Number of subscriptions moved to expired status.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification attempts by template and result.",
		}, []string{"template", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Duration, m.Expired, m.Notifications)
	}
	return m
}

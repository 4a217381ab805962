package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	UpdatesTotal      *prometheus.CounterVec
	FeatureRuns       *prometheus.CounterVec
	FeatureLatency    *prometheus.HistogramVec
	CreditsCharged    prometheus.Counter
	CreditsGranted    prometheus.Counter
	PaymentsTotal     *prometheus.CounterVec
	ReconcileAttempts *prometheus.CounterVec
	Errors            *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			UpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_total",
				Help:      "Total incoming Telegram updates by kind.",
			}, []string{"kind"}),
			FeatureRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feature_runs_total",
				Help:      "Total feature executions by feature and outcome.",
			}, []string{"feature", "outcome"}),
			FeatureLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "feature_duration_seconds",
				Help:      "Latency distribution for feature executions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"feature"}),
			CreditsCharged: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credits_charged_total",
				Help:      "Total credits deducted for metered features.",
			}),
			CreditsGranted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credits_granted_total",
				Help:      "Total credits granted through purchases and promos.",
			}),
			PaymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total payment transactions by provider and terminal status.",
			}, []string{"provider", "status"}),
			ReconcileAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_attempts_total",
				Help:      "Total reconciliation attempts by outcome.",
			}, []string{"outcome"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.UpdatesTotal,
			metricsInstance.FeatureRuns,
			metricsInstance.FeatureLatency,
			metricsInstance.CreditsCharged,
			metricsInstance.CreditsGranted,
			metricsInstance.PaymentsTotal,
			metricsInstance.ReconcileAttempts,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}

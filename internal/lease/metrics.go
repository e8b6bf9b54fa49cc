package lease

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/edvin/kubelease/internal/model"
)

var (
	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kubelease_reconcile_total",
		Help: "Total reconciliation passes against the provider",
	}, []string{"result"})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kubelease_reconcile_duration_seconds",
		Help:    "Duration of each reconciliation pass",
		Buckets: prometheus.DefBuckets,
	})

	clustersByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kubelease_clusters",
		Help: "Clusters in the registry by lifecycle status",
	}, []string{"status"})

	lastReconcile = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kubelease_last_reconcile_timestamp_seconds",
		Help: "Unix time of the last successful reconciliation pass",
	})

	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kubelease_provider_failures_total",
		Help: "Failed provider calls by operation",
	}, []string{"op"})

	admissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kubelease_admission_total",
		Help: "Deploy requests by admission outcome",
	}, []string{"outcome"})

	teardownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kubelease_teardowns_total",
		Help: "Teardowns issued, by trigger",
	}, []string{"trigger"})
)

func recordStatusCounts(counts map[model.Status]int) {
	for status, n := range counts {
		clustersByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

package services

import "github.com/prometheus/client_golang/prometheus"

var (
	documentsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "documents_ingested_total",
		Help: "Total number of new documents created from the object store.",
	})
	documentsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "documents_skipped_total",
		Help: "Total number of listed objects whose content was already known.",
	})
	ingestionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_failures_total",
		Help: "Total number of objects that could not be ingested, by stage.",
	}, []string{"stage"})
	analysisFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_failures_total",
		Help: "Total number of failed oddpub analyses.",
	})
	documentsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "documents_swept_total",
		Help: "Total number of documents removed because their object disappeared.",
	})
	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconcile_run_duration_seconds",
		Help:    "Duration of reconciliation runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(documentsIngested, documentsSkipped, ingestionFailures, analysisFailures, documentsSwept, runDuration)
}

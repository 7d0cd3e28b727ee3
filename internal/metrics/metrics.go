package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "recsys"

	resultLabel = "result"
	statusLabel = "status"
)

var submissionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prediction_submissions_total",
		Help:      "number of prediction submissions by result",
	},
	[]string{resultLabel},
)

var predictionsProcessedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_processed_total",
		Help:      "number of tasks handled by the worker by outcome",
	},
	[]string{statusLabel},
)

var outboxPublishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_publish_total",
		Help:      "number of outbox publish attempts by result",
	},
	[]string{resultLabel},
)

var predictionDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prediction_duration_seconds",
		Help:      "time spent computing similar items for one prediction",
		Buckets:   prometheus.DefBuckets,
	},
)

func IncreaseSubmissionsMetric(result string) {
	submissionsTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseProcessedMetric(status string) {
	predictionsProcessedMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseOutboxMetric(result string) {
	outboxPublishedMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func ObservePredictionDuration(d time.Duration) {
	predictionDurationMetric.Observe(d.Seconds())
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(submissionsTotalMetric)
	prometheus.MustRegister(predictionsProcessedMetric)
	prometheus.MustRegister(outboxPublishedMetric)
	prometheus.MustRegister(predictionDurationMetric)
}

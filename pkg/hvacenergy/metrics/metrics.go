package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "hvac"
	subsystem = "consumption"
)

var (
	// DroppedTokens counts telemetry tokens skipped during payload parsing.
	DroppedTokens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dropped_tokens_total",
			Help:      "Telemetry tokens dropped for failing numeric parse or non-positive duration",
		},
	)

	// DiscardedHourBuckets counts hour buckets falling outside the 24h day.
	// A non-zero value indicates device-days whose payload encodes more than
	// 24 hours of measurement.
	DiscardedHourBuckets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "discarded_hour_buckets_total",
			Help:      "Hour buckets beyond hour 23 discarded during distribution",
		},
	)

	// RecordsProduced counts consumption records surviving validity filtering
	RecordsProduced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_total",
			Help:      "Consumption records produced after validity filtering, by method",
		},
		[]string{"method"},
	)

	// ShadowedIndirect counts indirect records dropped because a direct record
	// already covered the same device-hour.
	ShadowedIndirect = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "shadowed_indirect_records_total",
			Help:      "Indirect records discarded in favor of direct data for the same device-hour",
		},
	)

	// QueryRetries counts retried external queries by source
	QueryRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "query_retries_total",
			Help:      "External query attempts that failed and were retried, by source",
		},
		[]string{"source"},
	)

	// QueryDuration tracks external query latency by source
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "query_duration_seconds",
			Help:      "Latency of external queries, by source",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"source"},
	)
)

func init() {
	// Register metrics with Prometheus
	prometheus.MustRegister(DroppedTokens)
	prometheus.MustRegister(DiscardedHourBuckets)
	prometheus.MustRegister(RecordsProduced)
	prometheus.MustRegister(ShadowedIndirect)
	prometheus.MustRegister(QueryRetries)
	prometheus.MustRegister(QueryDuration)
}

package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomePublished = "published"
	outcomeFailed    = "failed"
)

var (
	publishedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hickory",
			Subsystem: "kafka_producer",
			Name:      "messages_total",
			Help:      "Kafka messages handed to the writer, by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hickory",
			Subsystem: "kafka_producer",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatRequests counts chat exchanges by terminal outcome.
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_chat_requests_total",
		Help: "Chat requests by outcome (ok, invalid, inference_error).",
	}, []string{"outcome"})

	// QuotaRejections counts requests refused at the quota ceiling.
	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_quota_rejections_total",
		Help: "Requests rejected because the client quota was exhausted.",
	})

	// InferenceDuration observes backend generation latency.
	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatrelay_inference_duration_seconds",
		Help:    "Latency of text-generation backend calls.",
		Buckets: prometheus.DefBuckets,
	})
)

// Package metrics holds the Prometheus instruments exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "live",
		Name:      "events_applied_total",
		Help:      "Inbound events applied to pages, by kind and result.",
	}, []string{"kind", "result"})

	ImagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "live",
		Name:      "images_skipped_total",
		Help:      "Attachments dropped because they could not be processed.",
	})

	DeltasPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "live",
		Name:      "deltas_published_total",
		Help:      "Deltas handed to the update bus, by bus.",
	}, []string{"bus"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "live",
		Name:      "subscribers",
		Help:      "Viewer connections currently subscribed on this process.",
	})

	SlowConsumersClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "live",
		Name:      "slow_consumers_closed_total",
		Help:      "Viewer connections closed because their send buffer was full.",
	})

	LongPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "live",
		Name:      "long_polls_total",
		Help:      "Completed long-poll rounds, by outcome.",
	}, []string{"outcome"})

	AdapterRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "live",
		Name:      "adapter_requests_total",
		Help:      "Inbound webhook requests, by adapter and status code.",
	}, []string{"adapter", "code"})
)

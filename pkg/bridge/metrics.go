// Copyright 2024-2026 Aiku AI

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanbridge_messages_forwarded_total",
			Help: "Source messages successfully delivered to the destination",
		},
		[]string{"route"},
	)

	metricDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanbridge_messages_dropped_total",
			Help: "Routed events dropped by filter policy",
		},
		[]string{"route"},
	)

	metricDeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanbridge_delivery_failures_total",
			Help: "Destination-side delivery failures by kind",
		},
		[]string{"route", "kind"},
	)

	metricEdits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanbridge_edits_total",
			Help: "Destination messages edited after a source edit",
		},
		[]string{"route"},
	)

	metricDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanbridge_deletes_total",
			Help: "Destination messages deleted after a source delete",
		},
		[]string{"route"},
	)

	metricReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanbridge_recovered_messages_total",
			Help: "Messages replayed by the recovery loop",
		},
		[]string{"route"},
	)

	metricOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chanbridge_online",
			Help: "1 when the connectivity probe succeeds, 0 otherwise",
		},
	)
)

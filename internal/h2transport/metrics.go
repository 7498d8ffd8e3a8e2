package h2transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instrument connection/stream lifecycle events: streams opened and
// closed, active counts, and GOAWAY reasons. flowControlBlockedTotal is
// registered but nothing in this package increments it.
var (
	streamsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "celeris_h2_streams_opened_total",
			Help: "Total number of HTTP/2 streams opened by peers.",
		},
	)

	streamsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "celeris_h2_streams_closed_total",
			Help: "Total number of HTTP/2 streams closed, labeled by how they closed.",
		},
		[]string{"reason"},
	)

	streamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "celeris_h2_streams_active",
			Help: "Current number of open HTTP/2 streams across all connections.",
		},
	)

	goAwaySentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "celeris_h2_goaway_sent_total",
			Help: "Total number of GOAWAY frames sent, labeled by error code.",
		},
		[]string{"code"},
	)

	flowControlBlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "celeris_h2_flow_control_blocked_total",
			Help: "Total number of times a send was blocked on an exhausted flow-control window.",
		},
		[]string{"scope"}, // "connection" or "stream"
	)

	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "celeris_h2_connections_active",
			Help: "Current number of open HTTP/2 connections.",
		},
	)
)

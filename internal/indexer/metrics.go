package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_indexed_blocks_total",
			Help: "Blocks fully processed per stream",
		},
		[]string{"stream"},
	)

	messagesIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_indexed_messages_total",
			Help: "Messages persisted per stream",
		},
		[]string{"stream"},
	)

	gatewayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_gateway_errors_total",
			Help: "Gateway fetch errors per stream and kind",
		},
		[]string{"stream", "kind"},
	)

	snapshotCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_snapshot_cycles_total",
			Help: "Oracle snapshot cycles per ticker and outcome",
		},
		[]string{"ticker", "status"},
	)

	tipGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atlas_network_tip_height",
			Help: "Last observed network tip height",
		},
	)
)

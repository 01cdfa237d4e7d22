package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_push_events_total",
			Help: "Cart push events received by transport and outcome",
		},
		[]string{"transport", "result"},
	)

	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_push_reconnects_total",
			Help: "Push connections re-established after a failure",
		},
		[]string{"transport"},
	)
)

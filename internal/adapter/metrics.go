package adapter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var itemsDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cartsync_adapter_items_dropped_total",
		Help: "Cart items left out of a normalized cart, by reason",
	},
	[]string{"reason"},
)

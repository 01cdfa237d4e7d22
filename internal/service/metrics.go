package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_mutations_total",
			Help: "Cart mutations sent to the backend by operation and result",
		},
		[]string{"op", "result"},
	)

	rollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_rollbacks_total",
			Help: "Optimistic updates reverted after a backend failure",
		},
		[]string{"op"},
	)

	staleResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartsync_stale_responses_total",
			Help: "Backend responses discarded because a newer update superseded them",
		},
	)

	resyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartsync_resyncs_total",
			Help: "Recovery fetches triggered by failed mutations",
		},
		[]string{"op"},
	)
)

func observeMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	mutationsTotal.WithLabelValues(op, result).Inc()
}

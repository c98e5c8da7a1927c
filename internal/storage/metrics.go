package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bakery_store_operations_total",
		Help: "Data store operations by collection, operation and result.",
	},
	[]string{"collection", "op", "result"},
)

func observe(collection, op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case isNotFound(err):
		result = "not_found"
	default:
		result = "error"
	}
	storeOperations.WithLabelValues(collection, op, result).Inc()
}

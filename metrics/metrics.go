// Package metrics exposes the engine's Prometheus instrumentation. promauto
// registers everything on the default registry at init time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts completed engine operations by kind
	// (create, read, update, delete, find, join, ...).
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashdb_operations_total",
			Help: "Total number of completed engine operations",
		},
		[]string{"op"},
	)

	// Saves counts snapshot writes of the backing file.
	Saves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stashdb_snapshot_saves_total",
			Help: "Total number of backing-file snapshot writes",
		},
	)

	// Transactions counts finished transactions by outcome
	// (commit, rollback, conflict).
	Transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stashdb_transactions_total",
			Help: "Total number of finished transactions by outcome",
		},
		[]string{"outcome"},
	)

	// Keys tracks the current number of live keys in the store.
	Keys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stashdb_keys_total",
			Help: "Current number of keys in the store",
		},
	)
)

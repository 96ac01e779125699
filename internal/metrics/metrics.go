// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Toggles counts completion toggles.
	// Labels: result (added, removed, already_present, error)
	Toggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streakforge",
		Name:      "toggles_total",
		Help:      "Completion toggles by outcome",
	}, []string{"result"})

	// SyncDuration measures synchronizer operations end to end.
	// Labels: operation (toggle, add_habit, delete_habit, rename_habit, reorder_habits, recompute)
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streakforge",
		Name:      "sync_duration_seconds",
		Help:      "Synchronizer operation latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})

	// AggregateConflicts counts compare-and-set retries on habit aggregates.
	AggregateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streakforge",
		Name:      "aggregate_conflicts_total",
		Help:      "Habit aggregate writes retried after a version conflict",
	})

	// WSClients is the number of connected websocket clients.
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streakforge",
		Name:      "ws_clients",
		Help:      "Connected websocket clients",
	})

	// Notifications counts reminder and push deliveries.
	// Labels: result (sent, expired, failed, skipped)
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streakforge",
		Name:      "notifications_total",
		Help:      "Push notification deliveries by outcome",
	}, []string{"result"})
)

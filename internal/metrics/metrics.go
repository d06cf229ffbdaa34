// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "keyward"

var (
	// CheckRequests counts check batches by entry mode ("self", "app" or "cli").
	CheckRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "check_requests_total",
		Help:      "Total number of authorization check batches.",
	}, []string{"mode"})

	// CheckItems counts evaluated check items by outcome.
	CheckItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "check_items_total",
		Help:      "Total number of evaluated check items.",
	}, []string{"result"})

	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "check_duration_seconds",
		Help:      "Latency of authorization check batches.",
		Buckets:   prometheus.DefBuckets,
	})

	// CheckCache counts snapshot cache lookups per action id.
	CheckCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "check_cache_total",
		Help:      "Snapshot cache lookups by result.",
	}, []string{"result"})

	// PermissionTransitions counts state machine mutations.
	PermissionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "permission_transitions_total",
		Help:      "Permission record mutations by operation.",
	}, []string{"operation"})

	// Logins counts password logins by outcome.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Password logins by result.",
	}, []string{"result"})

	// SnapshotWrites counts rows written by the snapshot sync routines.
	SnapshotWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_writes_total",
		Help:      "Snapshot rows written by operation.",
	}, []string{"operation"})
)

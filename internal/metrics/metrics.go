// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests received.",
		},
		[]string{"method", "path", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "code"},
	)

	// QuotaReservations counts reserve attempts by outcome (granted, denied).
	QuotaReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_quota_reservations_total",
			Help: "Monthly quota reservations by entity type, resource and outcome.",
		},
		[]string{"entity_type", "resource", "outcome"},
	)

	QuotaReleases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_quota_releases_total",
			Help: "Reservations given back after a failed consuming action.",
		},
		[]string{"entity_type", "resource"},
	)

	SlotBookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "availability_slot_bookings_total",
			Help: "Sub-slot carve and booking attempts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// GeneratedSlots counts template occurrences by outcome (created, skipped).
	GeneratedSlots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "availability_generated_slots_total",
			Help: "Parent slots produced from recurring templates by outcome.",
		},
		[]string{"outcome"},
	)

	SubscriptionsActivated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Subscriptions created, labelled by the plan tier.",
		},
		[]string{"tier"},
	)

	SubscriptionsSuperseded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_superseded_total",
			Help: "Active subscriptions cancelled because a newer one replaced them.",
		},
		[]string{"reason"},
	)

	SubscriptionJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_subscription_jobs_total",
			Help: "Outbox subscription jobs processed by outcome (completed, retried, failed).",
		},
		[]string{"outcome"},
	)

	WorkerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_worker_runs_total",
			Help: "Periodic worker runs by worker and outcome.",
		},
		[]string{"worker", "outcome"},
	)
)

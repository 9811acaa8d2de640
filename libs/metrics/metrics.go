// Package metrics holds the Prometheus collectors shared by the services.
// They register with the default registry served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apptbook_bookings_total",
		Help: "Booking attempts by outcome (created, replayed, conflict, invalid, transient, error).",
	}, []string{"outcome"})

	AvailabilityQueries = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apptbook_availability_query_seconds",
		Help:    "Time spent computing availability.",
		Buckets: prometheus.DefBuckets,
	}, []string{"staff_mode"})

	RemindersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apptbook_reminders_total",
		Help: "Reminder dispatch outcomes per window kind (sent, failed, skipped).",
	}, []string{"kind", "outcome"})

	ReminderRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apptbook_reminder_runs_total",
		Help: "Reminder runs by result (completed, lease_held, error).",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apptbook_http_request_duration_seconds",
		Help:    "HTTP request latency by method, path and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apptbook_outbox_published_total",
		Help: "Outbox events written to Kafka.",
	})
)

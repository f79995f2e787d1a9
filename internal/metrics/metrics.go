package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_engine_bookings_total",
			Help: "Booking attempts by outcome (created, slot_unavailable, invalid_window, doctor_not_bookable, error)",
		},
		[]string{"outcome"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_engine_status_transitions_total",
			Help: "Applied status transitions by target status",
		},
		[]string{"to"},
	)

	TransitionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_engine_status_transition_failures_total",
			Help: "Rejected status transitions by reason (unauthorized, invalid_transition, not_found, error)",
		},
		[]string{"reason"},
	)

	SlotResolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appointment_engine_slot_resolution_duration_seconds",
			Help:    "Time spent resolving a doctor's slots for one day",
			Buckets: prometheus.DefBuckets,
		},
	)

	LockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appointment_engine_schedule_lock_contention_total",
			Help: "Mutating operations that failed to acquire the per doctor per day lock",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_engine_http_requests_total",
			Help: "Handled HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appointment_engine_http_request_duration_seconds",
			Help:    "HTTP request handling time by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

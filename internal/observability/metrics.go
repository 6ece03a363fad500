package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "bookings_requested_total", Help: "Booking requests accepted into pending_driver"})
	BookingsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "bookings_confirmed_total", Help: "Bookings confirmed by drivers"})
	BookingsRejectedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "bookings_rejected_total", Help: "Bookings rejected by drivers"})
	BookingsCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "bookings_cancelled_total", Help: "Bookings cancelled, by actor"},
		[]string{"actor"},
	)
	SeatConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "seat_cas_conflicts_total", Help: "Seat counter compare-and-set conflicts"})

	PaymentOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "payment_ops_total", Help: "Payment gateway operations by op and outcome"},
		[]string{"op", "outcome"},
	)
	EventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "events_emitted_total", Help: "Lifecycle events emitted by type"},
		[]string{"type"},
	)
	WishMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "wish_matches_total", Help: "Wishes matched against posted rides"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

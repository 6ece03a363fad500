package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/carpool/internal/observability"
)

type Type string

const (
	BookingRequested            Type = "booking.requested"
	BookingConfirmed            Type = "booking.confirmed"
	BookingRejected             Type = "booking.rejected"
	BookingCancelledByPassenger Type = "booking.cancelled_by_passenger"
	BookingCancelledByDriver    Type = "booking.cancelled_by_driver"
	BookingCompleted            Type = "booking.completed"
	RidePosted                  Type = "ride.posted"
	RideCancelled               Type = "ride.cancelled"
	RideCompleted               Type = "ride.completed"
	WishMatched                 Type = "wish.matched"
	WishDriverSuggested         Type = "wish.driver_suggested"
)

// Event is one lifecycle fact for the notification pipeline. The transition
// that produced it is already persisted by the time it is emitted; consumers
// see at-least-once delivery and must be idempotent.
type Event struct {
	Type      Type      `json:"type"`
	RideID    string    `json:"ride_id,omitempty"`
	BookingID string    `json:"booking_id,omitempty"`
	WishID    string    `json:"wish_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`   // who to notify
	DriverID  string    `json:"driver_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`    // refund or total, minor units
	At        time.Time `json:"at"`
}

// Emitter delivers events to the external sink, fire-and-forget from the
// orchestrator's point of view.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// LogEmitter is the fallback sink when no broker is configured: events land
// in the structured log instead of disappearing.
type LogEmitter struct {
	Logger *slog.Logger
}

func (l *LogEmitter) Emit(ctx context.Context, e Event) error {
	observability.EventsEmittedTotal.WithLabelValues(string(e.Type)).Inc()
	l.Logger.Info("event",
		"type", e.Type, "ride_id", e.RideID, "booking_id", e.BookingID,
		"wish_id", e.WishID, "user_id", e.UserID, "amount", e.Amount)
	return nil
}

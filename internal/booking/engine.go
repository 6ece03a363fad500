package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool/internal/compat"
	"github.com/example/carpool/internal/events"
	"github.com/example/carpool/internal/inventory"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/payments"
	"github.com/example/carpool/internal/pricing"
	"github.com/example/carpool/internal/storage"
)

var (
	// ErrNotOwner means the acting user does not own the booking or ride.
	ErrNotOwner = errors.New("booking: not owner")
	// ErrStaleBookingState means the booking or ride changed under the
	// caller: the guarded re-read no longer matches the transition's
	// source state. The racing action that won already applied its effect.
	ErrStaleBookingState = errors.New("booking: stale state")
	// ErrIncompatibleRide means the compatibility gate rejected the party.
	ErrIncompatibleRide = errors.New("booking: party incompatible with ride")
	// ErrInvalidSeats means a non-positive seat count or price was supplied.
	ErrInvalidSeats = errors.New("booking: invalid seat count")
	// ErrInvalidRide means a ride failed validation at publication.
	ErrInvalidRide = errors.New("booking: invalid ride")
	// ErrNotYetDeparted means completion was attempted before departure.
	ErrNotYetDeparted = errors.New("booking: ride has not departed yet")
)

// WishFulfiller marks a passenger's open wishes fulfilled once a real
// booking lands on a matching ride. Implemented by the wish service.
type WishFulfiller interface {
	FulfilForBooking(ctx context.Context, passengerID string, ride *models.Ride)
}

// Settings are the policy constants frozen into each booking as it settles.
type Settings struct {
	CommissionBps int
	RefundCutoff  time.Duration
	RefundRateBps int
}

func DefaultSettings() Settings {
	return Settings{
		CommissionBps: pricing.DefaultCommissionBps,
		RefundCutoff:  pricing.DefaultRefundCutoff,
		RefundRateBps: pricing.DefaultRefundRateBps,
	}
}

// Engine drives the booking lifecycle: request, driver decision,
// cancellation and completion. Every transition re-reads current state,
// applies the payment effect, then commits through a status-guarded update;
// the update is the serialization point, so of two racing actors exactly one
// wins and the other sees ErrStaleBookingState.
type Engine struct {
	store    storage.Store
	inv      *inventory.Manager
	pay      *payments.Orchestrator
	gate     compat.Policy
	emitter  events.Emitter
	wishes   WishFulfiller
	settings Settings
	logger   *slog.Logger
	nowFn    func() time.Time
}

func NewEngine(store storage.Store, inv *inventory.Manager, pay *payments.Orchestrator, gate compat.Policy, emitter events.Emitter, settings Settings, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		inv:      inv,
		pay:      pay,
		gate:     gate,
		emitter:  emitter,
		settings: settings,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// SetWishFulfiller wires the wish service in after construction; the wish
// service itself depends on the store and gate, so this avoids a cycle.
func (e *Engine) SetWishFulfiller(w WishFulfiller) { e.wishes = w }

// PublishRide validates and persists a new ride, open for booking.
func (e *Engine) PublishRide(ctx context.Context, r *models.Ride) (*models.Ride, error) {
	if r.SeatsTotal < 1 || r.PricePerSeat < 0 {
		return nil, fmt.Errorf("%w: seats_total=%d price=%d", ErrInvalidSeats, r.SeatsTotal, r.PricePerSeat)
	}
	if !r.DepartureAt.After(e.nowFn()) {
		return nil, fmt.Errorf("%w: departure must be in the future", ErrInvalidRide)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.SeatsAvailable = r.SeatsTotal
	r.Status = models.RideUpcoming
	r.Version = 0
	r.CreatedAt = e.nowFn()
	r.UpdatedAt = r.CreatedAt
	if err := e.store.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	e.emit(ctx, events.Event{Type: events.RidePosted, RideID: r.ID, DriverID: r.DriverID})
	return r, nil
}

// GrowSeats lets the owning driver change total capacity.
func (e *Engine) GrowSeats(ctx context.Context, rideID, driverID string, delta int) error {
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.DriverID != driverID {
		return ErrNotOwner
	}
	return e.inv.Grow(ctx, rideID, delta)
}

// RequestBooking is the entry transition: gate, reserve, authorize, persist
// as pending_driver. Any failure after a partial step unwinds it, so a
// failed request leaves neither seats held nor a payment artifact.
func (e *Engine) RequestBooking(ctx context.Context, rideID, passengerID string, seats int, thirdParty *models.Party) (*models.Booking, error) {
	if seats < 1 {
		return nil, ErrInvalidSeats
	}
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideUpcoming || !ride.DepartureAt.After(e.nowFn()) {
		return nil, inventory.ErrRideClosed
	}
	party, err := e.resolveParty(ctx, passengerID, thirdParty)
	if err != nil {
		return nil, err
	}
	driver, err := e.store.GetProfile(ctx, ride.DriverID)
	if err != nil {
		return nil, fmt.Errorf("driver profile %s: %w", ride.DriverID, err)
	}
	if !e.gate.Allows(party, *driver, ride.Occupants) {
		return nil, ErrIncompatibleRide
	}

	if err := e.inv.Reserve(ctx, rideID, seats); err != nil {
		return nil, err
	}

	bookingID := uuid.NewString()
	total := int64(seats) * ride.PricePerSeat
	handle, err := e.pay.Authorize(ctx, total, bookingID)
	if err != nil {
		if rerr := e.inv.Release(ctx, rideID, seats); rerr != nil {
			e.logger.Error("release after declined authorization failed", "ride_id", rideID, "error", rerr)
		}
		return nil, err
	}

	b := &models.Booking{
		ID:          bookingID,
		RideID:      rideID,
		PassengerID: passengerID,
		Party:       party,
		Seats:       seats,
		TotalPaid:   total,
		PaymentRef:  string(handle),
		Status:      models.BookingPendingDriver,
		CreatedAt:   e.nowFn(),
		UpdatedAt:   e.nowFn(),
	}
	if err := e.store.CreateBooking(ctx, b); err != nil {
		if verr := e.pay.Void(ctx, handle); verr != nil {
			e.logger.Error("void after store failure failed", "booking_id", bookingID, "error", verr)
		}
		if rerr := e.inv.Release(ctx, rideID, seats); rerr != nil {
			e.logger.Error("release after store failure failed", "ride_id", rideID, "error", rerr)
		}
		return nil, err
	}

	observability.BookingsRequestedTotal.Inc()
	e.emit(ctx, events.Event{Type: events.BookingRequested, RideID: rideID, BookingID: b.ID, UserID: ride.DriverID, Amount: total})
	if e.wishes != nil {
		e.wishes.FulfilForBooking(ctx, passengerID, ride)
	}
	return b, nil
}

// Accept captures the payment hold and confirms the booking, freezing the
// commission split at today's rate. The capture happens before the status
// commit: a booking is never confirmed on unreachable money, and the
// gateway's idempotency keys make a lost-race duplicate capture harmless.
func (e *Engine) Accept(ctx context.Context, bookingID, driverID string) error {
	b, ride, err := e.loadForDriver(ctx, bookingID, driverID)
	if err != nil {
		return err
	}
	if b.Status != models.BookingPendingDriver || ride.Status != models.RideUpcoming {
		return ErrStaleBookingState
	}

	if err := e.pay.Capture(ctx, payments.Handle(b.PaymentRef)); err != nil {
		return err
	}

	b.CommissionAmount, b.DriverPayout = pricing.CommissionSplit(b.TotalPaid, e.settings.CommissionBps)
	b.Status = models.BookingConfirmed
	if err := e.store.UpdateBooking(ctx, b, models.BookingPendingDriver); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			e.logger.Warn("accept lost transition race after capture", "booking_id", bookingID)
			return ErrStaleBookingState
		}
		return err
	}

	observability.BookingsConfirmedTotal.Inc()
	e.emit(ctx, events.Event{Type: events.BookingConfirmed, RideID: b.RideID, BookingID: b.ID, UserID: b.PassengerID, Amount: b.TotalPaid})
	return nil
}

// Reject voids the hold and returns the seats. The seats come back only
// after the status commit wins, so a retried reject never releases twice.
func (e *Engine) Reject(ctx context.Context, bookingID, driverID string) error {
	b, _, err := e.loadForDriver(ctx, bookingID, driverID)
	if err != nil {
		return err
	}
	if b.Status != models.BookingPendingDriver {
		return ErrStaleBookingState
	}

	if err := e.pay.Void(ctx, payments.Handle(b.PaymentRef)); err != nil {
		return err
	}

	b.Status = models.BookingRejected
	if err := e.store.UpdateBooking(ctx, b, models.BookingPendingDriver); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return ErrStaleBookingState
		}
		return err
	}
	if err := e.inv.Release(ctx, b.RideID, b.Seats); err != nil {
		e.logger.Error("seat release after reject failed", "booking_id", b.ID, "error", err)
	}

	observability.BookingsRejectedTotal.Inc()
	e.emit(ctx, events.Event{Type: events.BookingRejected, RideID: b.RideID, BookingID: b.ID, UserID: b.PassengerID})
	return nil
}

// CancelAsPassenger refunds per the cancellation policy and frees the seats.
// Returns the refunded amount.
func (e *Engine) CancelAsPassenger(ctx context.Context, bookingID, passengerID string) (int64, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	if b.PassengerID != passengerID {
		return 0, ErrNotOwner
	}
	ride, err := e.store.GetRide(ctx, b.RideID)
	if err != nil {
		return 0, err
	}
	if b.Status != models.BookingConfirmed || ride.Status != models.RideUpcoming {
		return 0, ErrStaleBookingState
	}

	refund := pricing.PassengerCancellationRefund(b.TotalPaid, ride.DepartureAt, e.nowFn(), e.settings.RefundCutoff, e.settings.RefundRateBps)
	if err := e.pay.Refund(ctx, payments.Handle(b.PaymentRef), refund); err != nil {
		return 0, err
	}

	b.Status = models.BookingCancelledByPassenger
	if err := e.store.UpdateBooking(ctx, b, models.BookingConfirmed); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return 0, ErrStaleBookingState
		}
		return 0, err
	}
	if err := e.inv.Release(ctx, b.RideID, b.Seats); err != nil {
		e.logger.Error("seat release after passenger cancel failed", "booking_id", b.ID, "error", err)
	}

	observability.BookingsCancelledTotal.WithLabelValues("passenger").Inc()
	e.emit(ctx, events.Event{Type: events.BookingCancelledByPassenger, RideID: b.RideID, BookingID: b.ID, UserID: ride.DriverID, Amount: refund})
	return refund, nil
}

// CancelRideAsDriver cancels the whole ride and fans the cancellation out to
// every live booking. Confirmed bookings are refunded in full; pending ones
// have their holds voided. Each booking is an independent obligation:
// failures are collected, not rolled back, and a retried call resumes where
// the last one failed because already-transitioned bookings are skipped.
// Returns the number of confirmed bookings cancelled by this call.
func (e *Engine) CancelRideAsDriver(ctx context.Context, rideID, driverID string) (int, error) {
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		return 0, err
	}
	if ride.DriverID != driverID {
		return 0, ErrNotOwner
	}
	if ride.Status == models.RideCompleted {
		return 0, ErrStaleBookingState
	}
	if ride.Status == models.RideUpcoming {
		if err := e.transitionRide(ctx, rideID, models.RideUpcoming, models.RideCancelled); err != nil {
			return 0, err
		}
		e.emit(ctx, events.Event{Type: events.RideCancelled, RideID: rideID, DriverID: driverID})
	}

	live, err := e.store.ListBookingsByRide(ctx, rideID, models.BookingPendingDriver, models.BookingConfirmed)
	if err != nil {
		return 0, err
	}
	var cancelled int
	var errs []error
	for _, b := range live {
		switch b.Status {
		case models.BookingConfirmed:
			if err := e.cancelConfirmedByDriver(ctx, b); err != nil {
				errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
				continue
			}
			cancelled++
		case models.BookingPendingDriver:
			if err := e.rejectPendingOnCancel(ctx, b); err != nil {
				errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
			}
		}
	}
	return cancelled, errors.Join(errs...)
}

func (e *Engine) cancelConfirmedByDriver(ctx context.Context, b *models.Booking) error {
	refund := pricing.DriverCancellationRefund(b.TotalPaid)
	if err := e.pay.Refund(ctx, payments.Handle(b.PaymentRef), refund); err != nil {
		return err
	}
	b.Status = models.BookingCancelledByDriver
	if err := e.store.UpdateBooking(ctx, b, models.BookingConfirmed); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// another fan-out pass already moved it
			return nil
		}
		return err
	}
	if err := e.inv.Release(ctx, b.RideID, b.Seats); err != nil {
		e.logger.Error("seat release after driver cancel failed", "booking_id", b.ID, "error", err)
	}
	observability.BookingsCancelledTotal.WithLabelValues("driver").Inc()
	e.emit(ctx, events.Event{Type: events.BookingCancelledByDriver, RideID: b.RideID, BookingID: b.ID, UserID: b.PassengerID, Amount: refund})
	return nil
}

func (e *Engine) rejectPendingOnCancel(ctx context.Context, b *models.Booking) error {
	if err := e.pay.Void(ctx, payments.Handle(b.PaymentRef)); err != nil {
		return err
	}
	b.Status = models.BookingRejected
	if err := e.store.UpdateBooking(ctx, b, models.BookingPendingDriver); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil
		}
		return err
	}
	if err := e.inv.Release(ctx, b.RideID, b.Seats); err != nil {
		e.logger.Error("seat release after ride cancel failed", "booking_id", b.ID, "error", err)
	}
	observability.BookingsRejectedTotal.Inc()
	e.emit(ctx, events.Event{Type: events.BookingRejected, RideID: b.RideID, BookingID: b.ID, UserID: b.PassengerID})
	return nil
}

// CompleteRide marks a departed ride complete and fans completion out to
// every confirmed booking. Funds were captured at acceptance, so the
// per-booking transition has no payment effect.
func (e *Engine) CompleteRide(ctx context.Context, rideID, driverID string) error {
	ride, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.DriverID != driverID {
		return ErrNotOwner
	}
	if ride.Status == models.RideCancelled {
		return ErrStaleBookingState
	}
	if e.nowFn().Before(ride.DepartureAt) {
		return ErrNotYetDeparted
	}
	if ride.Status == models.RideUpcoming {
		if err := e.transitionRide(ctx, rideID, models.RideUpcoming, models.RideCompleted); err != nil {
			return err
		}
		e.emit(ctx, events.Event{Type: events.RideCompleted, RideID: rideID, DriverID: driverID})
	}

	confirmed, err := e.store.ListBookingsByRide(ctx, rideID, models.BookingConfirmed)
	if err != nil {
		return err
	}
	var errs []error
	for _, b := range confirmed {
		b.Status = models.BookingCompleted
		if err := e.store.UpdateBooking(ctx, b, models.BookingConfirmed); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
			continue
		}
		e.emit(ctx, events.Event{Type: events.BookingCompleted, RideID: rideID, BookingID: b.ID, UserID: b.PassengerID})
	}
	return errors.Join(errs...)
}

// transitionRide moves the ride status with a version-guarded update,
// retrying version conflicts as long as the source status still holds.
func (e *Engine) transitionRide(ctx context.Context, rideID string, from, to models.RideStatus) error {
	for attempt := 0; attempt < 5; attempt++ {
		ride, err := e.store.GetRide(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.Status != from {
			if ride.Status == to {
				return nil
			}
			return ErrStaleBookingState
		}
		ride.Status = to
		err = e.store.UpdateRide(ctx, ride, ride.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return ErrStaleBookingState
}

func (e *Engine) loadForDriver(ctx context.Context, bookingID, driverID string) (*models.Booking, *models.Ride, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	ride, err := e.store.GetRide(ctx, b.RideID)
	if err != nil {
		return nil, nil, err
	}
	if ride.DriverID != driverID {
		return nil, nil, ErrNotOwner
	}
	return b, ride, nil
}

// resolveParty validates the tagged party variant at the boundary: either
// the passenger themselves (attributes from their profile) or an explicit
// third-party descriptor with its own required fields.
func (e *Engine) resolveParty(ctx context.Context, passengerID string, third *models.Party) (models.Party, error) {
	if third == nil {
		p, err := e.store.GetProfile(ctx, passengerID)
		if err != nil {
			return models.Party{}, fmt.Errorf("passenger profile %s: %w", passengerID, err)
		}
		return models.Party{Kind: models.PartySelf, Gender: p.Gender, Travel: p.Travel}, nil
	}
	if third.Gender != models.GenderMale && third.Gender != models.GenderFemale {
		return models.Party{}, fmt.Errorf("third party: gender required")
	}
	if third.Name == "" || third.Age <= 0 {
		return models.Party{}, fmt.Errorf("third party: name and age required")
	}
	out := *third
	out.Kind = models.PartyThirdParty
	if out.Travel == "" {
		out.Travel = models.TravelSolo
	}
	return out, nil
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	ev.At = e.nowFn()
	if err := e.emitter.Emit(ctx, ev); err != nil {
		e.logger.Error("event emit failed", "type", ev.Type, "booking_id", ev.BookingID, "error", err)
	}
}

package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/storage"
)

var (
	// ErrSeatsUnavailable means the ride cannot satisfy the requested seats,
	// either outright or after the retry budget was spent on conflicts.
	ErrSeatsUnavailable = errors.New("inventory: seats unavailable")
	// ErrInvalidDelta means a capacity change would cut below committed seats.
	ErrInvalidDelta = errors.New("inventory: invalid capacity delta")
	// ErrRideClosed means the ride is no longer taking inventory operations.
	ErrRideClosed = errors.New("inventory: ride not upcoming")
)

// Manager owns every mutation of a ride's seat counters. All writes go
// through the store's versioned compare-and-set; a lost race is retried up
// to MaxRetries times before surfacing to the caller.
type Manager struct {
	store      storage.Store
	maxRetries int
	logger     *slog.Logger
}

func NewManager(store storage.Store, maxRetries int, logger *slog.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Manager{store: store, maxRetries: maxRetries, logger: logger}
}

// Reserve takes seats off a ride's availability. It fails with
// ErrSeatsUnavailable when fewer seats remain than requested, and with
// ErrRideClosed when the ride has been cancelled or completed underneath us.
func (m *Manager) Reserve(ctx context.Context, rideID string, seats int) error {
	if seats < 1 {
		return fmt.Errorf("%w: requested %d", ErrSeatsUnavailable, seats)
	}
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		ride, err := m.store.GetRide(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.Status != models.RideUpcoming {
			return ErrRideClosed
		}
		if ride.SeatsAvailable < seats {
			return ErrSeatsUnavailable
		}
		ride.SeatsAvailable -= seats
		err = m.store.UpdateRide(ctx, ride, ride.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		observability.SeatConflictsTotal.Inc()
		m.logger.Debug("seat reserve conflict, retrying", "ride_id", rideID, "attempt", attempt+1)
	}
	return ErrSeatsUnavailable
}

// Release returns seats to a ride. Idempotence per booking is guaranteed by
// the booking status transition, not here: only the actor that wins a
// booking's status change calls Release, exactly once. By the time Release
// runs the booking transition has committed and the seats are owed back to
// the pool, so version conflicts are retried until the update lands or the
// context is cancelled; bailing out after a fixed budget would strand the
// seats with no caller able to re-release them. The count is clamped at
// SeatsTotal to keep the availability invariant even if the ride shrank.
func (m *Manager) Release(ctx context.Context, rideID string, seats int) error {
	if seats < 1 {
		return nil
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("release ride %s interrupted after %d attempts: %w", rideID, attempt, err)
		}
		ride, err := m.store.GetRide(ctx, rideID)
		if err != nil {
			return err
		}
		ride.SeatsAvailable += seats
		if ride.SeatsAvailable > ride.SeatsTotal {
			ride.SeatsAvailable = ride.SeatsTotal
		}
		err = m.store.UpdateRide(ctx, ride, ride.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		observability.SeatConflictsTotal.Inc()
		if attempt+1 >= m.maxRetries {
			m.logger.Warn("seat release still conflicting", "ride_id", rideID, "attempt", attempt+1)
		}
	}
}

// Grow changes total capacity by delta (positive or negative). The new total
// may never fall below seats already committed to bookings.
func (m *Manager) Grow(ctx context.Context, rideID string, delta int) error {
	if delta == 0 {
		return fmt.Errorf("%w: zero", ErrInvalidDelta)
	}
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		ride, err := m.store.GetRide(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.Status != models.RideUpcoming {
			return ErrRideClosed
		}
		committed := ride.SeatsTotal - ride.SeatsAvailable
		newTotal := ride.SeatsTotal + delta
		if newTotal < committed || newTotal < 1 {
			return fmt.Errorf("%w: total %d below committed %d", ErrInvalidDelta, newTotal, committed)
		}
		ride.SeatsTotal = newTotal
		ride.SeatsAvailable = newTotal - committed
		err = m.store.UpdateRide(ctx, ride, ride.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		observability.SeatConflictsTotal.Inc()
	}
	return storage.ErrConflict
}

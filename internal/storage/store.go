package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/carpool/internal/models"
)

var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict means a compare-and-set update lost: the row's version or
	// status no longer matches what the caller read.
	ErrConflict = errors.New("storage: conflict")
)

// Store is the transactional record store for rides, bookings and wishes.
// Updates that guard critical sections take the expected version/status and
// return ErrConflict when the row has moved on; callers decide whether to
// retry or surface a stale-state error.
type Store interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	// UpdateRide commits r only if the stored version still equals
	// expectedVersion, bumping r.Version on success.
	UpdateRide(ctx context.Context, r *models.Ride, expectedVersion int64) error
	ListUpcomingByRoute(ctx context.Context, from, to string, date time.Time) ([]*models.Ride, error)

	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	// UpdateBooking commits b only if the stored status still equals
	// expectedStatus. This is the serialization point for booking
	// transitions: of two racing actors, exactly one update succeeds.
	UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus) error
	ListBookingsByRide(ctx context.Context, rideID string, statuses ...models.BookingStatus) ([]*models.Booking, error)

	CreateWish(ctx context.Context, w *models.RideWish) error
	GetWish(ctx context.Context, id string) (*models.RideWish, error)
	UpdateWish(ctx context.Context, w *models.RideWish, expectedStatus models.WishStatus) error
	ListActiveWishes(ctx context.Context, from, to string, date time.Time) ([]*models.RideWish, error)
	ListActiveWishesByUser(ctx context.Context, userID string) ([]*models.RideWish, error)

	// GetProfile reads identity data owned by the account system.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

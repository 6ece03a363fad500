package wish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool/internal/compat"
	"github.com/example/carpool/internal/events"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/storage"
)

// Service matches standing ride wishes against newly posted rides and
// suggests nearby drivers for fresh wishes. Both directions are pure
// queries: no seats move until a real booking does.
type Service struct {
	store   storage.Store
	gate    compat.Policy
	emitter events.Emitter
	roster  Roster
	radiusM float64
	logger  *slog.Logger
	nowFn   func() time.Time
}

func NewService(store storage.Store, gate compat.Policy, emitter events.Emitter, roster Roster, radiusM float64, logger *slog.Logger) *Service {
	if radiusM <= 0 {
		radiusM = 25000
	}
	return &Service{
		store:   store,
		gate:    gate,
		emitter: emitter,
		roster:  roster,
		radiusM: radiusM,
		logger:  logger,
		nowFn:   time.Now,
	}
}

// Create validates and stores a wish, then looks for local drivers to nudge.
func (s *Service) Create(ctx context.Context, w *models.RideWish) (*models.RideWish, []models.DriverCandidate, error) {
	if w.Seats < 1 {
		return nil, nil, fmt.Errorf("wish: seat count must be positive")
	}
	if w.Date.Before(s.nowFn().Truncate(24 * time.Hour)) {
		return nil, nil, fmt.Errorf("wish: date already passed")
	}
	if w.Party.Kind == "" {
		w.Party.Kind = models.PartySelf
	}
	if w.Party.Kind == models.PartySelf {
		p, err := s.store.GetProfile(ctx, w.UserID)
		if err != nil {
			return nil, nil, fmt.Errorf("wisher profile %s: %w", w.UserID, err)
		}
		w.Party.Gender = p.Gender
		w.Party.Travel = p.Travel
	} else {
		// a third-party wish without a gender could never clear the gate
		if w.Party.Gender != models.GenderMale && w.Party.Gender != models.GenderFemale {
			return nil, nil, fmt.Errorf("wish: third party gender required")
		}
		if w.Party.Travel == "" {
			w.Party.Travel = models.TravelSolo
		}
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Status = models.WishActive
	w.CreatedAt = s.nowFn()
	if err := s.store.CreateWish(ctx, w); err != nil {
		return nil, nil, err
	}
	candidates, err := s.OnWishCreated(ctx, w)
	if err != nil {
		s.logger.Warn("driver suggestion lookup failed", "wish_id", w.ID, "error", err)
	}
	return w, candidates, nil
}

// OnRidePosted returns the active, unexpired wishes whose route and date the
// ride satisfies and whose party clears the compatibility gate. Each match
// is announced to the wisher; the wish stays Active until they actually book.
func (s *Service) OnRidePosted(ctx context.Context, ride *models.Ride) ([]*models.RideWish, error) {
	driver, err := s.store.GetProfile(ctx, ride.DriverID)
	if err != nil {
		return nil, fmt.Errorf("driver profile %s: %w", ride.DriverID, err)
	}
	wishes, err := s.store.ListActiveWishes(ctx, ride.From.Name, ride.To.Name, ride.DepartureAt)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	var matched []*models.RideWish
	for _, w := range wishes {
		if w.Expired(now) {
			continue
		}
		if w.Seats > ride.SeatsAvailable {
			continue
		}
		if !s.gate.Allows(w.Party, *driver, ride.Occupants) {
			continue
		}
		matched = append(matched, w)
		observability.WishMatchesTotal.Inc()
		s.emit(ctx, events.Event{Type: events.WishMatched, RideID: ride.ID, WishID: w.ID, UserID: w.UserID})
	}
	return matched, nil
}

// OnWishCreated returns approved drivers local to the wish's departure area
// who do not already have a matching ride posted, so they can be nudged to
// publish one.
func (s *Service) OnWishCreated(ctx context.Context, w *models.RideWish) ([]models.DriverCandidate, error) {
	nearby, err := s.roster.Nearby(ctx, w.From.Lat, w.From.Lon, s.radiusM, 50)
	if err != nil {
		return nil, err
	}
	if len(nearby) == 0 {
		return nil, nil
	}
	rides, err := s.store.ListUpcomingByRoute(ctx, w.From.Name, w.To.Name, w.Date)
	if err != nil {
		return nil, err
	}
	hasRide := make(map[string]bool, len(rides))
	for _, r := range rides {
		hasRide[r.DriverID] = true
	}
	var out []models.DriverCandidate
	for _, c := range nearby {
		if hasRide[c.DriverID] {
			continue
		}
		out = append(out, c)
		s.emit(ctx, events.Event{Type: events.WishDriverSuggested, WishID: w.ID, UserID: c.DriverID})
	}
	return out, nil
}

// FulfilForBooking marks the passenger's active wishes matching the booked
// ride Fulfilled. Called by the booking engine once a booking lands; a wish
// fulfilled by a concurrent booking is skipped quietly.
func (s *Service) FulfilForBooking(ctx context.Context, passengerID string, ride *models.Ride) {
	wishes, err := s.store.ListActiveWishesByUser(ctx, passengerID)
	if err != nil {
		s.logger.Warn("wish lookup for fulfilment failed", "user_id", passengerID, "error", err)
		return
	}
	for _, w := range wishes {
		if !strings.EqualFold(w.From.Name, ride.From.Name) || !strings.EqualFold(w.To.Name, ride.To.Name) {
			continue
		}
		if !sameDay(w.Date, ride.DepartureAt) {
			continue
		}
		w.Status = models.WishFulfilled
		if err := s.store.UpdateWish(ctx, w, models.WishActive); err != nil && !errors.Is(err, storage.ErrConflict) {
			s.logger.Warn("wish fulfilment update failed", "wish_id", w.ID, "error", err)
		}
	}
}

func (s *Service) emit(ctx context.Context, ev events.Event) {
	ev.At = s.nowFn()
	if err := s.emitter.Emit(ctx, ev); err != nil {
		s.logger.Error("event emit failed", "type", ev.Type, "wish_id", ev.WishID, "error", err)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

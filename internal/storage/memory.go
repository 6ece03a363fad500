package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/example/carpool/internal/models"
)

// MemoryStore keeps everything in maps behind one mutex. It honours the same
// version/status compare-and-set contract as the Postgres store, which makes
// it usable both for local runs and for concurrency tests.
type MemoryStore struct {
	mu       sync.RWMutex
	rides    map[string]*models.Ride
	bookings map[string]*models.Booking
	wishes   map[string]*models.RideWish
	profiles map[string]*models.Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[string]*models.Ride),
		bookings: make(map[string]*models.Booking),
		wishes:   make(map[string]*models.RideWish),
		profiles: make(map[string]*models.Profile),
	}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRide(ctx context.Context, r *models.Ride, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	cp := *r
	cp.Version = expectedVersion + 1
	cp.UpdatedAt = time.Now()
	m.rides[r.ID] = &cp
	r.Version = cp.Version
	return nil
}

func (m *MemoryStore) ListUpcomingByRoute(ctx context.Context, from, to string, date time.Time) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Ride
	for _, r := range m.rides {
		if r.Status != models.RideUpcoming {
			continue
		}
		if !strings.EqualFold(r.From.Name, from) || !strings.EqualFold(r.To.Name, to) {
			continue
		}
		if !sameDay(r.DepartureAt, date) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expectedStatus {
		return ErrConflict
	}
	cp := *b
	cp.UpdatedAt = time.Now()
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) ListBookingsByRide(ctx context.Context, rideID string, statuses ...models.BookingStatus) ([]*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Booking
	for _, b := range m.bookings {
		if b.RideID != rideID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, b.Status) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CreateWish(ctx context.Context, w *models.RideWish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.wishes[w.ID] = &cp
	return nil
}

func (m *MemoryStore) GetWish(ctx context.Context, id string) (*models.RideWish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wishes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) UpdateWish(ctx context.Context, w *models.RideWish, expectedStatus models.WishStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.wishes[w.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expectedStatus {
		return ErrConflict
	}
	cp := *w
	m.wishes[w.ID] = &cp
	return nil
}

func (m *MemoryStore) ListActiveWishes(ctx context.Context, from, to string, date time.Time) ([]*models.RideWish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RideWish
	for _, w := range m.wishes {
		if w.Status != models.WishActive {
			continue
		}
		if !strings.EqualFold(w.From.Name, from) || !strings.EqualFold(w.To.Name, to) {
			continue
		}
		if !sameDay(w.Date, date) {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) ListActiveWishesByUser(ctx context.Context, userID string) ([]*models.RideWish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RideWish
	for _, w := range m.wishes {
		if w.Status != models.WishActive || w.UserID != userID {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// SeedProfile installs identity data for local runs and tests; in production
// profiles come from the account system's tables.
func (m *MemoryStore) SeedProfile(p *models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.UserID] = &cp
}

func containsStatus(in []models.BookingStatus, s models.BookingStatus) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/carpool/internal/compat"
	"github.com/example/carpool/internal/events"
	"github.com/example/carpool/internal/inventory"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/payments"
	"github.com/example/carpool/internal/storage"
)

// fakeGateway records payment operations. Handles are deterministic per
// booking ref, and repeated captures of the same handle are counted so tests
// can assert no double charge happened.
type fakeGateway struct {
	mu       sync.Mutex
	decline  bool
	captures map[payments.Handle]int
	voids    map[payments.Handle]int
	refunds  map[payments.Handle][]int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		captures: make(map[payments.Handle]int),
		voids:    make(map[payments.Handle]int),
		refunds:  make(map[payments.Handle][]int64),
	}
}

func (f *fakeGateway) Authorize(ctx context.Context, amount int64, currency, ref string) (payments.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decline {
		return "", errors.New("card_declined")
	}
	return payments.Handle("pi_" + ref), nil
}

func (f *fakeGateway) Capture(ctx context.Context, h payments.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures[h]++
	return nil
}

func (f *fakeGateway) Void(ctx context.Context, h payments.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voids[h]++
	return nil
}

func (f *fakeGateway) Refund(ctx context.Context, h payments.Handle, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds[h] = append(f.refunds[h], amount)
	return nil
}

func (f *fakeGateway) captureCount(h payments.Handle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures[h]
}

func (f *fakeGateway) refundsFor(h payments.Handle) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.refunds[h]...)
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakeEmitter) Emit(ctx context.Context, e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEmitter) typesSeen() map[events.Type]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[events.Type]int)
	for _, e := range f.events {
		out[e.Type]++
	}
	return out
}

type fixture struct {
	engine  *Engine
	store   *storage.MemoryStore
	gateway *fakeGateway
	emitter *fakeEmitter
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	gw := newFakeGateway()
	em := &fakeEmitter{}
	inv := inventory.NewManager(store, 50, logger)
	pay := payments.NewOrchestrator(gw, "gbp", 3, time.Millisecond, logger)
	e := NewEngine(store, inv, pay, compat.DefaultPolicy{}, em, DefaultSettings(), logger)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	e.nowFn = func() time.Time { return now }

	store.SeedProfile(&models.Profile{UserID: "driver1", Gender: models.GenderMale, Travel: models.TravelSolo})
	store.SeedProfile(&models.Profile{UserID: "pass1", Gender: models.GenderMale, Travel: models.TravelSolo})
	store.SeedProfile(&models.Profile{UserID: "pass2", Gender: models.GenderMale, Travel: models.TravelSolo})
	store.SeedProfile(&models.Profile{UserID: "pass3", Gender: models.GenderMale, Travel: models.TravelSolo})
	store.SeedProfile(&models.Profile{UserID: "solofem", Gender: models.GenderFemale, Travel: models.TravelSolo})

	return &fixture{engine: e, store: store, gateway: gw, emitter: em, now: now}
}

func (fx *fixture) publishRide(t *testing.T, seats int, price int64, departIn time.Duration) *models.Ride {
	t.Helper()
	r, err := fx.engine.PublishRide(context.Background(), &models.Ride{
		DriverID:     "driver1",
		From:         models.Location{Name: "Leeds", Lat: 53.8, Lon: -1.55},
		To:           models.Location{Name: "York", Lat: 53.96, Lon: -1.08},
		DepartureAt:  fx.now.Add(departIn),
		SeatsTotal:   seats,
		PricePerSeat: price,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// checkSeatInvariant asserts seats_available == seats_total minus seats held
// by confirmed and completed bookings.
func (fx *fixture) checkSeatInvariant(t *testing.T, rideID string) {
	t.Helper()
	ctx := context.Background()
	ride, err := fx.store.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	held, err := fx.store.ListBookingsByRide(ctx, rideID, models.BookingConfirmed, models.BookingCompleted)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0
	for _, b := range held {
		sum += b.Seats
	}
	// pending bookings also hold seats until the driver decides
	pending, err := fx.store.ListBookingsByRide(ctx, rideID, models.BookingPendingDriver)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range pending {
		sum += b.Seats
	}
	if ride.SeatsAvailable != ride.SeatsTotal-sum {
		t.Fatalf("seat invariant broken: available=%d total=%d held=%d", ride.SeatsAvailable, ride.SeatsTotal, sum)
	}
}

// The end-to-end settlement scenario: book 2 of 4 seats at £20, driver
// accepts (25% commission), passenger cancels 60h out (75% refund).
func TestBookingSettlementScenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 2000, 60*time.Hour)

	b, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.BookingPendingDriver || b.TotalPaid != 4000 {
		t.Fatalf("got status=%s total=%d", b.Status, b.TotalPaid)
	}
	r, _ := fx.store.GetRide(ctx, ride.ID)
	if r.SeatsAvailable != 2 {
		t.Fatalf("expected 2 seats left, got %d", r.SeatsAvailable)
	}
	fx.checkSeatInvariant(t, ride.ID)

	if err := fx.engine.Accept(ctx, b.ID, "driver1"); err != nil {
		t.Fatal(err)
	}
	got, _ := fx.store.GetBooking(ctx, b.ID)
	if got.Status != models.BookingConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}
	if got.CommissionAmount != 1000 || got.DriverPayout != 3000 {
		t.Fatalf("expected 1000/3000 split, got %d/%d", got.CommissionAmount, got.DriverPayout)
	}
	if got.CommissionAmount+got.DriverPayout != got.TotalPaid {
		t.Fatal("split does not sum to total")
	}
	if n := fx.gateway.captureCount(payments.Handle(b.PaymentRef)); n != 1 {
		t.Fatalf("expected exactly one capture, got %d", n)
	}

	refund, err := fx.engine.CancelAsPassenger(ctx, b.ID, "pass1")
	if err != nil {
		t.Fatal(err)
	}
	if refund != 3000 {
		t.Fatalf("expected £30 refund, got %d", refund)
	}
	if rs := fx.gateway.refundsFor(payments.Handle(b.PaymentRef)); len(rs) != 1 || rs[0] != 3000 {
		t.Fatalf("gateway refunds: %v", rs)
	}
	got, _ = fx.store.GetBooking(ctx, b.ID)
	if got.Status != models.BookingCancelledByPassenger {
		t.Fatalf("expected cancelled_by_passenger, got %s", got.Status)
	}
	if got.TotalPaid != 4000 {
		t.Fatalf("total_paid must be immutable, got %d", got.TotalPaid)
	}
	r, _ = fx.store.GetRide(ctx, ride.ID)
	if r.SeatsAvailable != 4 {
		t.Fatalf("expected all seats back, got %d", r.SeatsAvailable)
	}
	fx.checkSeatInvariant(t, ride.ID)
}

// contendedStore injects a burst of version conflicts on ride updates,
// simulating another writer hammering the seat counter.
type contendedStore struct {
	*storage.MemoryStore
	mu        sync.Mutex
	conflicts int
}

func (s *contendedStore) UpdateRide(ctx context.Context, r *models.Ride, expectedVersion int64) error {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return storage.ErrConflict
	}
	s.mu.Unlock()
	return s.MemoryStore.UpdateRide(ctx, r, expectedVersion)
}

// A cancellation commits its status before the seats go back, so the release
// must land even under sustained contention: a retried cancel would hit the
// status guard and never re-release, leaving the seats stranded.
func TestCancelReleasesSeatsUnderContention(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := storage.NewMemoryStore()
	store := &contendedStore{MemoryStore: mem}
	gw := newFakeGateway()
	em := &fakeEmitter{}
	inv := inventory.NewManager(store, 3, logger)
	pay := payments.NewOrchestrator(gw, "gbp", 3, time.Millisecond, logger)
	e := NewEngine(store, inv, pay, compat.DefaultPolicy{}, em, DefaultSettings(), logger)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	e.nowFn = func() time.Time { return now }
	mem.SeedProfile(&models.Profile{UserID: "driver1", Gender: models.GenderMale, Travel: models.TravelSolo})
	mem.SeedProfile(&models.Profile{UserID: "pass1", Gender: models.GenderMale, Travel: models.TravelSolo})

	ctx := context.Background()
	ride, err := e.PublishRide(ctx, &models.Ride{
		DriverID:     "driver1",
		From:         models.Location{Name: "Leeds"},
		To:           models.Location{Name: "York"},
		DepartureAt:  now.Add(72 * time.Hour),
		SeatsTotal:   4,
		PricePerSeat: 2000,
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.RequestBooking(ctx, ride.ID, "pass1", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Accept(ctx, b.ID, "driver1"); err != nil {
		t.Fatal(err)
	}

	// more conflicts than the reserve retry budget allows
	store.mu.Lock()
	store.conflicts = 10
	store.mu.Unlock()

	refund, err := e.CancelAsPassenger(ctx, b.ID, "pass1")
	if err != nil {
		t.Fatal(err)
	}
	if refund != 3000 {
		t.Fatalf("expected 3000 refund, got %d", refund)
	}
	got, _ := mem.GetBooking(ctx, b.ID)
	if got.Status != models.BookingCancelledByPassenger {
		t.Fatalf("expected cancelled_by_passenger, got %s", got.Status)
	}
	r, _ := mem.GetRide(ctx, ride.ID)
	if r.SeatsAvailable != 4 {
		t.Fatalf("seats must come back despite contention, got %d of %d", r.SeatsAvailable, r.SeatsTotal)
	}
}

func TestAcceptTwiceIsStaleAndNeverDoubleCaptures(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 2000, 72*time.Hour)
	b, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.engine.Accept(ctx, b.ID, "driver1"); err != nil {
		t.Fatal(err)
	}
	if err := fx.engine.Accept(ctx, b.ID, "driver1"); !errors.Is(err, ErrStaleBookingState) {
		t.Fatalf("expected ErrStaleBookingState, got %v", err)
	}
	if n := fx.gateway.captureCount(payments.Handle(b.PaymentRef)); n != 1 {
		t.Fatalf("expected 1 capture, got %d", n)
	}
}

func TestRejectVoidsAndReleases(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 3, 1500, 72*time.Hour)
	b, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.engine.Reject(ctx, b.ID, "driver1"); err != nil {
		t.Fatal(err)
	}
	got, _ := fx.store.GetBooking(ctx, b.ID)
	if got.Status != models.BookingRejected {
		t.Fatalf("expected rejected, got %s", got.Status)
	}
	if fx.gateway.voids[payments.Handle(b.PaymentRef)] != 1 {
		t.Fatal("expected hold voided once")
	}
	r, _ := fx.store.GetRide(ctx, ride.ID)
	if r.SeatsAvailable != 3 {
		t.Fatalf("expected seats back, got %d", r.SeatsAvailable)
	}
	// a racing accept now fails
	if err := fx.engine.Accept(ctx, b.ID, "driver1"); !errors.Is(err, ErrStaleBookingState) {
		t.Fatalf("expected stale, got %v", err)
	}
}

func TestRequestBookingNotOwnerChecks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 3, 1500, 72*time.Hour)
	b, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.engine.Accept(ctx, b.ID, "stranger"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := fx.engine.CancelAsPassenger(ctx, b.ID, "pass2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestIncompatiblePartyCannotBook(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	// male driver, empty car: a solo woman fails the gate
	ride := fx.publishRide(t, 4, 2000, 72*time.Hour)
	_, err := fx.engine.RequestBooking(ctx, ride.ID, "solofem", 1, nil)
	if !errors.Is(err, ErrIncompatibleRide) {
		t.Fatalf("expected ErrIncompatibleRide, got %v", err)
	}
	r, _ := fx.store.GetRide(ctx, ride.ID)
	if r.SeatsAvailable != 4 {
		t.Fatal("gate rejection must not consume seats")
	}
}

func TestThirdPartyBookingUsesDescriptorForGate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 2000, 72*time.Hour)
	// solofem books for her brother: the third party's gender clears the gate
	third := &models.Party{Gender: models.GenderMale, Name: "Tom", Age: 30}
	b, err := fx.engine.RequestBooking(ctx, ride.ID, "solofem", 1, third)
	if err != nil {
		t.Fatal(err)
	}
	if b.Party.Kind != models.PartyThirdParty || b.Party.Name != "Tom" {
		t.Fatalf("party not tagged third_party: %+v", b.Party)
	}
	// missing descriptor fields are rejected at the boundary
	if _, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 1, &models.Party{Gender: models.GenderMale}); err == nil {
		t.Fatal("expected validation error for incomplete third party")
	}
}

func TestDeclinedAuthorizationLeavesNoArtifacts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 2000, 72*time.Hour)
	fx.gateway.decline = true
	_, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 2, nil)
	if !errors.Is(err, payments.ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	r, _ := fx.store.GetRide(ctx, ride.ID)
	if r.SeatsAvailable != 4 {
		t.Fatalf("seats must be restored after decline, got %d", r.SeatsAvailable)
	}
	bs, _ := fx.store.ListBookingsByRide(ctx, ride.ID)
	if len(bs) != 0 {
		t.Fatalf("no booking record should exist, got %d", len(bs))
	}
}

func TestConcurrentRequestsNeverOversell(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 3, 2000, 72*time.Hour)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.engine.RequestBooking(ctx, ride.ID, "pass1", 1, nil)
		}(i)
	}
	wg.Wait()

	var ok, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, inventory.ErrSeatsUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 3 || unavailable != 7 {
		t.Fatalf("expected 3 bookings and 7 rejections, got %d/%d", ok, unavailable)
	}
	r, _ := fx.store.GetRide(ctx, ride.ID)
	if r.SeatsAvailable != 0 {
		t.Fatalf("expected 0 seats, got %d", r.SeatsAvailable)
	}
	fx.checkSeatInvariant(t, ride.ID)
}

// Driver cancellation law: three confirmed £40 bookings, all refunded in
// full, none left confirmed.
func TestDriverCancelRideRefundsEveryone(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 4000, 72*time.Hour)

	var handles []payments.Handle
	for _, p := range []string{"pass1", "pass2", "pass3"} {
		b, err := fx.engine.RequestBooking(ctx, ride.ID, p, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := fx.engine.Accept(ctx, b.ID, "driver1"); err != nil {
			t.Fatal(err)
		}
		handles = append(handles, payments.Handle(b.PaymentRef))
	}

	n, err := fx.engine.CancelRideAsDriver(ctx, ride.ID, "driver1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 cancellations, got %d", n)
	}
	for _, h := range handles {
		rs := fx.gateway.refundsFor(h)
		if len(rs) != 1 || rs[0] != 4000 {
			t.Fatalf("handle %s: refunds %v", h, rs)
		}
	}
	confirmed, _ := fx.store.ListBookingsByRide(ctx, ride.ID, models.BookingConfirmed)
	if len(confirmed) != 0 {
		t.Fatalf("expected no confirmed bookings, got %d", len(confirmed))
	}
	r, _ := fx.store.GetRide(ctx, ride.ID)
	if r.Status != models.RideCancelled {
		t.Fatalf("expected ride cancelled, got %s", r.Status)
	}
	if r.SeatsAvailable != 4 {
		t.Fatalf("expected seats released, got %d", r.SeatsAvailable)
	}
	// retrying the cancellation is harmless
	n, err = fx.engine.CancelRideAsDriver(ctx, ride.ID, "driver1")
	if err != nil || n != 0 {
		t.Fatalf("retry: n=%d err=%v", n, err)
	}
}

func TestDriverCancelVoidsPendingHolds(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 2000, 72*time.Hour)
	b, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	rejectedBefore := testutil.ToFloat64(observability.BookingsRejectedTotal)
	if _, err := fx.engine.CancelRideAsDriver(ctx, ride.ID, "driver1"); err != nil {
		t.Fatal(err)
	}
	if d := testutil.ToFloat64(observability.BookingsRejectedTotal) - rejectedBefore; d != 1 {
		t.Fatalf("expected 1 rejection counted, got %v", d)
	}
	got, _ := fx.store.GetBooking(ctx, b.ID)
	if got.Status != models.BookingRejected {
		t.Fatalf("pending booking should be rejected on ride cancel, got %s", got.Status)
	}
	if fx.gateway.voids[payments.Handle(b.PaymentRef)] != 1 {
		t.Fatal("pending hold should be voided")
	}
	// the driver decision arriving late fails
	if err := fx.engine.Accept(ctx, b.ID, "driver1"); !errors.Is(err, ErrStaleBookingState) {
		t.Fatalf("expected stale, got %v", err)
	}
}

func TestCompleteRide(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 2000, 2*time.Hour)
	b, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.engine.Accept(ctx, b.ID, "driver1"); err != nil {
		t.Fatal(err)
	}

	if err := fx.engine.CompleteRide(ctx, ride.ID, "driver1"); !errors.Is(err, ErrNotYetDeparted) {
		t.Fatalf("expected ErrNotYetDeparted, got %v", err)
	}

	fx.engine.nowFn = func() time.Time { return fx.now.Add(3 * time.Hour) }
	if err := fx.engine.CompleteRide(ctx, ride.ID, "driver1"); err != nil {
		t.Fatal(err)
	}
	got, _ := fx.store.GetBooking(ctx, b.ID)
	if got.Status != models.BookingCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.TotalPaid != 2000 || got.CommissionAmount+got.DriverPayout != 2000 {
		t.Fatal("settlement fields changed on completion")
	}
	r, _ := fx.store.GetRide(ctx, ride.ID)
	if r.Status != models.RideCompleted {
		t.Fatalf("expected ride completed, got %s", r.Status)
	}
	// completed bookings keep their seats held
	fx.checkSeatInvariant(t, ride.ID)
	if n := fx.gateway.captureCount(payments.Handle(b.PaymentRef)); n != 1 {
		t.Fatalf("completion must not touch payment, captures=%d", n)
	}
}

func TestLateCancellationRefundsNothing(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 10000, 24*time.Hour)
	b, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.engine.Accept(ctx, b.ID, "driver1"); err != nil {
		t.Fatal(err)
	}
	refund, err := fx.engine.CancelAsPassenger(ctx, b.ID, "pass1")
	if err != nil {
		t.Fatal(err)
	}
	if refund != 0 {
		t.Fatalf("expected zero refund inside cutoff, got %d", refund)
	}
	if rs := fx.gateway.refundsFor(payments.Handle(b.PaymentRef)); len(rs) != 0 {
		t.Fatalf("zero refund must not reach the gateway: %v", rs)
	}
	got, _ := fx.store.GetBooking(ctx, b.ID)
	if got.Status != models.BookingCancelledByPassenger {
		t.Fatalf("state must still advance on zero refund, got %s", got.Status)
	}
}

func TestLifecycleEventsEmitted(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ride := fx.publishRide(t, 4, 2000, 72*time.Hour)
	b, err := fx.engine.RequestBooking(ctx, ride.ID, "pass1", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.engine.Accept(ctx, b.ID, "driver1"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.engine.CancelRideAsDriver(ctx, ride.ID, "driver1"); err != nil {
		t.Fatal(err)
	}
	seen := fx.emitter.typesSeen()
	for _, want := range []events.Type{events.RidePosted, events.BookingRequested, events.BookingConfirmed, events.RideCancelled, events.BookingCancelledByDriver} {
		if seen[want] == 0 {
			t.Errorf("missing event %s (seen: %v)", want, seen)
		}
	}
}

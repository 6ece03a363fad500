package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/carpool/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(
		id, driver_id, from_name, from_lat, from_lon, to_name, to_lat, to_lon,
		departure_at, seats_total, seats_available, price_per_seat, vehicle, luggage_policy,
		occ_males, occ_females, occ_couples, status, version, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		r.ID, r.DriverID, r.From.Name, r.From.Lat, r.From.Lon, r.To.Name, r.To.Lat, r.To.Lon,
		r.DepartureAt, r.SeatsTotal, r.SeatsAvailable, r.PricePerSeat, r.Vehicle, r.LuggagePolicy,
		r.Occupants.Males, r.Occupants.Females, r.Occupants.Couples, r.Status, r.Version, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, driver_id, from_name, from_lat, from_lon,
		to_name, to_lat, to_lon, departure_at, seats_total, seats_available, price_per_seat,
		vehicle, luggage_policy, occ_males, occ_females, occ_couples, status, version, created_at, updated_at
		FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

// UpdateRide is the optimistic write backing the seat-counter critical
// section: the WHERE clause only matches the version the caller read, so
// concurrent writers serialize through ErrConflict and retry.
func (p *PostgresStore) UpdateRide(ctx context.Context, r *models.Ride, expectedVersion int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET
		seats_total=$1, seats_available=$2, status=$3, departure_at=$4, vehicle=$5,
		luggage_policy=$6, occ_males=$7, occ_females=$8, occ_couples=$9,
		version=version+1, updated_at=$10
		WHERE id=$11 AND version=$12`,
		r.SeatsTotal, r.SeatsAvailable, r.Status, r.DepartureAt, r.Vehicle,
		r.LuggagePolicy, r.Occupants.Males, r.Occupants.Females, r.Occupants.Couples,
		time.Now(), r.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, gerr := p.GetRide(ctx, r.ID); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	r.Version = expectedVersion + 1
	return nil
}

func (p *PostgresStore) ListUpcomingByRoute(ctx context.Context, from, to string, date time.Time) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, driver_id, from_name, from_lat, from_lon,
		to_name, to_lat, to_lon, departure_at, seats_total, seats_available, price_per_seat,
		vehicle, luggage_policy, occ_males, occ_females, occ_couples, status, version, created_at, updated_at
		FROM rides WHERE status=$1 AND lower(from_name)=lower($2) AND lower(to_name)=lower($3)
		AND departure_at::date = $4::date`,
		models.RideUpcoming, from, to, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO bookings(
		id, ride_id, passenger_id, party_kind, party_gender, party_travel, party_name, party_age, party_needs,
		seats, total_paid, commission_amount, driver_payout, payment_ref, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		b.ID, b.RideID, b.PassengerID, b.Party.Kind, b.Party.Gender, b.Party.Travel,
		b.Party.Name, b.Party.Age, b.Party.Needs,
		b.Seats, b.TotalPaid, b.CommissionAmount, b.DriverPayout, b.PaymentRef, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, ride_id, passenger_id, party_kind, party_gender,
		party_travel, party_name, party_age, party_needs, seats, total_paid, commission_amount,
		driver_payout, payment_ref, status, created_at, updated_at
		FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

// UpdateBooking transitions a booking only from the status the caller last
// read. The losing side of a race gets ErrConflict and reports stale state.
func (p *PostgresStore) UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE bookings SET
		commission_amount=$1, driver_payout=$2, payment_ref=$3, status=$4, updated_at=$5
		WHERE id=$6 AND status=$7`,
		b.CommissionAmount, b.DriverPayout, b.PaymentRef, b.Status, time.Now(), b.ID, expectedStatus)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, gerr := p.GetBooking(ctx, b.ID); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (p *PostgresStore) ListBookingsByRide(ctx context.Context, rideID string, statuses ...models.BookingStatus) ([]*models.Booking, error) {
	q := `SELECT id, ride_id, passenger_id, party_kind, party_gender, party_travel, party_name,
		party_age, party_needs, seats, total_paid, commission_amount, driver_payout, payment_ref,
		status, created_at, updated_at FROM bookings WHERE ride_id=$1`
	args := []any{rideID}
	if len(statuses) > 0 {
		q += ` AND status = ANY($2)`
		ss := make([]string, len(statuses))
		for i, s := range statuses {
			ss[i] = string(s)
		}
		args = append(args, pq.Array(ss))
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateWish(ctx context.Context, w *models.RideWish) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO ride_wishes(
		id, user_id, from_name, from_lat, from_lon, to_name, to_lat, to_lon, wish_date, wish_time,
		seats, party_kind, party_gender, party_travel, party_age, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		w.ID, w.UserID, w.From.Name, w.From.Lat, w.From.Lon, w.To.Name, w.To.Lat, w.To.Lon,
		w.Date, w.Time, w.Seats, w.Party.Kind, w.Party.Gender, w.Party.Travel, w.Party.Age, w.Status, w.CreatedAt)
	return err
}

func (p *PostgresStore) GetWish(ctx context.Context, id string) (*models.RideWish, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, user_id, from_name, from_lat, from_lon, to_name,
		to_lat, to_lon, wish_date, wish_time, seats, party_kind, party_gender, party_travel,
		party_age, status, created_at FROM ride_wishes WHERE id=$1`, id)
	return scanWish(row)
}

func (p *PostgresStore) UpdateWish(ctx context.Context, w *models.RideWish, expectedStatus models.WishStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE ride_wishes SET status=$1 WHERE id=$2 AND status=$3`,
		w.Status, w.ID, expectedStatus)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, gerr := p.GetWish(ctx, w.ID); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (p *PostgresStore) ListActiveWishes(ctx context.Context, from, to string, date time.Time) ([]*models.RideWish, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, user_id, from_name, from_lat, from_lon, to_name,
		to_lat, to_lon, wish_date, wish_time, seats, party_kind, party_gender, party_travel,
		party_age, status, created_at FROM ride_wishes
		WHERE status=$1 AND lower(from_name)=lower($2) AND lower(to_name)=lower($3)
		AND wish_date::date = $4::date`,
		models.WishActive, from, to, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWishes(rows)
}

func (p *PostgresStore) ListActiveWishesByUser(ctx context.Context, userID string) ([]*models.RideWish, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, user_id, from_name, from_lat, from_lon, to_name,
		to_lat, to_lon, wish_date, wish_time, seats, party_kind, party_gender, party_travel,
		party_age, status, created_at FROM ride_wishes WHERE status=$1 AND user_id=$2`,
		models.WishActive, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWishes(rows)
}

func (p *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	row := p.db.QueryRowContext(ctx, `SELECT user_id, gender, travel_status, email, phone, rating
		FROM profiles WHERE user_id=$1`, userID)
	var pr models.Profile
	err := row.Scan(&pr.UserID, &pr.Gender, &pr.Travel, &pr.Email, &pr.Phone, &pr.Rating)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	err := row.Scan(&r.ID, &r.DriverID, &r.From.Name, &r.From.Lat, &r.From.Lon,
		&r.To.Name, &r.To.Lat, &r.To.Lon, &r.DepartureAt, &r.SeatsTotal, &r.SeatsAvailable,
		&r.PricePerSeat, &r.Vehicle, &r.LuggagePolicy, &r.Occupants.Males, &r.Occupants.Females,
		&r.Occupants.Couples, &r.Status, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.RideID, &b.PassengerID, &b.Party.Kind, &b.Party.Gender,
		&b.Party.Travel, &b.Party.Name, &b.Party.Age, &b.Party.Needs, &b.Seats, &b.TotalPaid,
		&b.CommissionAmount, &b.DriverPayout, &b.PaymentRef, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanWish(row rowScanner) (*models.RideWish, error) {
	var w models.RideWish
	err := row.Scan(&w.ID, &w.UserID, &w.From.Name, &w.From.Lat, &w.From.Lon, &w.To.Name,
		&w.To.Lat, &w.To.Lon, &w.Date, &w.Time, &w.Seats, &w.Party.Kind, &w.Party.Gender,
		&w.Party.Travel, &w.Party.Age, &w.Status, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func collectWishes(rows *sql.Rows) ([]*models.RideWish, error) {
	var out []*models.RideWish
	for rows.Next() {
		w, err := scanWish(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

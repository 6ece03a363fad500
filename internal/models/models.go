package models

import "time"

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type TravelStatus string

const (
	TravelSolo   TravelStatus = "solo"
	TravelCouple TravelStatus = "couple"
)

type RideStatus string

const (
	RideUpcoming  RideStatus = "upcoming"
	RideCompleted RideStatus = "completed"
	RideCancelled RideStatus = "cancelled"
)

type BookingStatus string

const (
	BookingPendingDriver        BookingStatus = "pending_driver"
	BookingConfirmed            BookingStatus = "confirmed"
	BookingRejected             BookingStatus = "rejected"
	BookingCancelledByPassenger BookingStatus = "cancelled_by_passenger"
	BookingCancelledByDriver    BookingStatus = "cancelled_by_driver"
	BookingCompleted            BookingStatus = "completed"
)

// Terminal reports whether no further transition may leave this status.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingRejected, BookingCancelledByPassenger, BookingCancelledByDriver, BookingCompleted:
		return true
	}
	return false
}

type WishStatus string

const (
	WishActive    WishStatus = "active"
	WishFulfilled WishStatus = "fulfilled"
)

// Location is a named point. Route matching compares names; the coordinates
// feed the driver locality index.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Occupants is the composition of travellers already in the vehicle,
// excluding the driver.
type Occupants struct {
	Males   int `json:"males"`
	Females int `json:"females"`
	Couples int `json:"couples"`
}

// Ride is a driver's published trip with finite seat inventory.
// SeatsAvailable and Status are mutated only through the inventory manager
// and the booking engine; Version backs their compare-and-set updates.
type Ride struct {
	ID             string     `json:"id"`
	DriverID       string     `json:"driver_id"`
	From           Location   `json:"from"`
	To             Location   `json:"to"`
	DepartureAt    time.Time  `json:"departure_at"`
	SeatsTotal     int        `json:"seats_total"`
	SeatsAvailable int        `json:"seats_available"`
	PricePerSeat   int64      `json:"price_per_seat"` // minor units
	Vehicle        string     `json:"vehicle"`
	LuggagePolicy  string     `json:"luggage_policy"`
	Occupants      Occupants  `json:"occupants"`
	Status         RideStatus `json:"status"`
	Version        int64      `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type PartyKind string

const (
	PartySelf       PartyKind = "self"
	PartyThirdParty PartyKind = "third_party"
)

// Party describes who will physically travel: the booking account holder, or
// a third party the holder books on behalf of. Third-party attributes are
// used for compatibility checks and disclosure only, never for accounts.
type Party struct {
	Kind   PartyKind    `json:"kind"`
	Gender Gender       `json:"gender"`
	Travel TravelStatus `json:"travel"`
	Name   string       `json:"name,omitempty"`  // third-party only
	Age    int          `json:"age,omitempty"`   // third-party only
	Needs  string       `json:"needs,omitempty"` // third-party only
}

// Booking ties a passenger to seats on a ride plus the payment hold that
// backs them. TotalPaid is fixed at request time; CommissionAmount and
// DriverPayout are frozen at acceptance and never recomputed.
type Booking struct {
	ID               string        `json:"id"`
	RideID           string        `json:"ride_id"`
	PassengerID      string        `json:"passenger_id"`
	Party            Party         `json:"party"`
	Seats            int           `json:"seats"`
	TotalPaid        int64         `json:"total_paid"` // minor units
	CommissionAmount int64         `json:"commission_amount"`
	DriverPayout     int64         `json:"driver_payout"`
	PaymentRef       string        `json:"payment_ref"`
	Status           BookingStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// RideWish is a standing passenger request for a route and date, matched
// against newly posted rides. Expiry is derived from Date, not stored.
type RideWish struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	From      Location   `json:"from"`
	To        Location   `json:"to"`
	Date      time.Time  `json:"date"`
	Time      string     `json:"time,omitempty"` // optional "15:04" preference
	Seats     int        `json:"seats"`
	Party     Party      `json:"party"`
	Status    WishStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the wish's desired date has passed.
func (w *RideWish) Expired(now time.Time) bool {
	return w.Date.Before(now.Truncate(24 * time.Hour))
}

// Profile is the slice of user data this core reads. It is owned by the
// identity system; we never write it here.
type Profile struct {
	UserID string       `json:"user_id"`
	Gender Gender       `json:"gender"`
	Travel TravelStatus `json:"travel"`
	Email  string       `json:"email"`
	Phone  string       `json:"phone"`
	Rating float64      `json:"rating"`
}

// DriverCandidate is a nearby approved driver proposed to a wish.
type DriverCandidate struct {
	DriverID  string  `json:"driver_id"`
	DistanceM float64 `json:"distance_m"`
}

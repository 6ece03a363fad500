package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/carpool/internal/booking"
	"github.com/example/carpool/internal/inventory"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/payments"
	"github.com/example/carpool/internal/storage"
)

type createRideRequest struct {
	DriverID      string           `json:"driver_id"`
	From          models.Location  `json:"from"`
	To            models.Location  `json:"to"`
	DepartureAt   time.Time        `json:"departure_at"`
	SeatsTotal    int              `json:"seats_total"`
	PricePerSeat  int64            `json:"price_per_seat"`
	Vehicle       string           `json:"vehicle"`
	LuggagePolicy string           `json:"luggage_policy"`
	Occupants     models.Occupants `json:"occupants"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride := &models.Ride{
		DriverID:      req.DriverID,
		From:          req.From,
		To:            req.To,
		DepartureAt:   req.DepartureAt,
		SeatsTotal:    req.SeatsTotal,
		PricePerSeat:  req.PricePerSeat,
		Vehicle:       req.Vehicle,
		LuggagePolicy: req.LuggagePolicy,
		Occupants:     req.Occupants,
	}
	ride, err := s.Engine.PublishRide(r.Context(), ride)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// notify standing wishes about the fresh ride
	if _, err := s.Wishes.OnRidePosted(r.Context(), ride); err != nil {
		s.logger.Warn("wish matching on ride post failed", "ride_id", ride.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Store.GetRide(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleGrowSeats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID string `json:"driver_id"`
		Delta    int    `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Engine.GrowSeats(r.Context(), mux.Vars(r)["id"], req.DriverID, req.Delta); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, err := s.Engine.CancelRideAsDriver(r.Context(), mux.Vars(r)["id"], req.DriverID)
	if err != nil && n == 0 {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"cancelled_booking_count": n}
	if err != nil {
		// partial fan-out failure: report what settled, the rest is retryable
		resp["partial_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Engine.CompleteRide(r.Context(), mux.Vars(r)["id"], req.DriverID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type requestBookingRequest struct {
	RideID      string        `json:"ride_id"`
	PassengerID string        `json:"passenger_id"`
	Seats       int           `json:"seats"`
	ThirdParty  *models.Party `json:"third_party,omitempty"`
}

func (s *Server) handleRequestBooking(w http.ResponseWriter, r *http.Request) {
	var req requestBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.Engine.RequestBooking(r.Context(), req.RideID, req.PassengerID, req.Seats, req.ThirdParty)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleAcceptBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Engine.Accept(r.Context(), mux.Vars(r)["id"], req.DriverID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRejectBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Engine.Reject(r.Context(), mux.Vars(r)["id"], req.DriverID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PassengerID string `json:"passenger_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	refund, err := s.Engine.CancelAsPassenger(r.Context(), mux.Vars(r)["id"], req.PassengerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refund_amount": refund})
}

type createWishRequest struct {
	UserID     string          `json:"user_id"`
	From       models.Location `json:"from"`
	To         models.Location `json:"to"`
	Date       time.Time       `json:"date"`
	Time       string          `json:"time,omitempty"`
	Seats      int             `json:"seats"`
	ThirdParty *models.Party   `json:"third_party,omitempty"`
}

func (s *Server) handleCreateWish(w http.ResponseWriter, r *http.Request) {
	var req createWishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wsh := &models.RideWish{
		UserID: req.UserID,
		From:   req.From,
		To:     req.To,
		Date:   req.Date,
		Time:   req.Time,
		Seats:  req.Seats,
	}
	if req.ThirdParty != nil {
		wsh.Party = *req.ThirdParty
		wsh.Party.Kind = models.PartyThirdParty
	}
	wsh, candidates, err := s.Wishes.Create(r.Context(), wsh)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"wish": wsh, "driver_candidates": candidates})
}

func (s *Server) handleRegisterDriverArea(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID string  `json:"driver_id"`
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Roster.Register(r.Context(), req.DriverID, req.Lat, req.Lon); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps domain errors to HTTP statuses so callers get the specific
// failure reason the booking flows promise.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, booking.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, booking.ErrStaleBookingState):
		status = http.StatusConflict
	case errors.Is(err, inventory.ErrSeatsUnavailable), errors.Is(err, inventory.ErrRideClosed):
		status = http.StatusConflict
	case errors.Is(err, booking.ErrIncompatibleRide):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrInvalidSeats), errors.Is(err, booking.ErrInvalidRide), errors.Is(err, inventory.ErrInvalidDelta):
		status = http.StatusBadRequest
	case errors.Is(err, booking.ErrNotYetDeparted):
		status = http.StatusConflict
	case errors.Is(err, payments.ErrDeclined):
		status = http.StatusPaymentRequired
	case errors.Is(err, payments.ErrCaptureFailed), errors.Is(err, payments.ErrVoidFailed), errors.Is(err, payments.ErrRefundFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

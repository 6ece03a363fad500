package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool/internal/booking"
	"github.com/example/carpool/internal/storage"
	"github.com/example/carpool/internal/wish"
)

// Server is the thin API layer over the booking engine and wish service.
// All business rules live below it; handlers only decode, dispatch and map
// errors to statuses.
type Server struct {
	Engine *booking.Engine
	Wishes *wish.Service
	Store  storage.Store
	Roster wish.Roster

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(engine *booking.Engine, wishes *wish.Service, store storage.Store, roster wish.Roster, logger *slog.Logger) *Server {
	s := &Server{
		Engine: engine,
		Wishes: wishes,
		Store:  store,
		Roster: roster,
		logger: logger,
		mux:    mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{id}/seats", s.handleGrowSeats).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/cancel", s.handleCancelRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/complete", s.handleCompleteRide).Methods("POST")

	s.mux.HandleFunc("/api/v1/bookings", s.handleRequestBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{id}/accept", s.handleAcceptBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{id}/reject", s.handleRejectBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{id}/cancel", s.handleCancelBooking).Methods("POST")

	s.mux.HandleFunc("/api/v1/wishes", s.handleCreateWish).Methods("POST")
	s.mux.HandleFunc("/internal/driver/areas", s.handleRegisterDriverArea).Methods("POST")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/carpool/internal/booking"
	"github.com/example/carpool/internal/compat"
	"github.com/example/carpool/internal/config"
	"github.com/example/carpool/internal/events"
	httpapi "github.com/example/carpool/internal/http"
	"github.com/example/carpool/internal/inventory"
	"github.com/example/carpool/internal/logging"
	"github.com/example/carpool/internal/payments"
	"github.com/example/carpool/internal/storage"
	"github.com/example/carpool/internal/wish"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("config error", "error", err)
		os.Exit(1)
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, logger)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var emitter events.Emitter
	if len(cfg.KafkaBrokers) > 0 {
		ke := events.NewKafkaEmitter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer ke.Close()
		emitter = ke
	} else {
		logger.Warn("KAFKA_BROKERS not set, events go to the log")
		emitter = &events.LogEmitter{Logger: logger}
	}

	var roster wish.Roster
	if cfg.RedisAddr != "" {
		rr := wish.NewRedisRoster(cfg.RedisAddr, cfg.RedisPassword, cfg.RosterKey)
		defer rr.Close()
		roster = rr
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory driver roster")
		roster = wish.NewMemoryRoster()
	}

	gate := compat.FromName(cfg.CompatPolicy)
	inv := inventory.NewManager(store, cfg.ReserveRetries, logger)
	pay := payments.NewOrchestrator(payments.NewStripeGateway(), cfg.Currency, cfg.PaymentAttempts, cfg.PaymentBackoff, logger)
	engine := booking.NewEngine(store, inv, pay, gate, emitter, booking.Settings{
		CommissionBps: cfg.CommissionBps,
		RefundCutoff:  cfg.RefundCutoff,
		RefundRateBps: cfg.RefundRateBps,
	}, logger)
	wishes := wish.NewService(store, gate, emitter, roster, cfg.WishRadiusM, logger)
	engine.SetWishFulfiller(wishes)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(engine, wishes, store, roster, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("carpool booking engine listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
	}
}

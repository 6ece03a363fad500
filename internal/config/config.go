package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the booking API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN string

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string
	RosterKey     string

	Currency        string
	CommissionBps   int
	RefundCutoff    time.Duration
	RefundRateBps   int
	CompatPolicy    string
	ReserveRetries  int
	PaymentAttempts int
	PaymentBackoff  time.Duration
	WishRadiusM     float64

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		KafkaTopic:      "booking-events",
		RosterKey:       "drivers_roster",
		Currency:        "gbp",
		CommissionBps:   2500,
		RefundCutoff:    48 * time.Hour,
		RefundRateBps:   7500,
		ReserveRetries:  3,
		PaymentAttempts: 3,
		PaymentBackoff:  200 * time.Millisecond,
		WishRadiusM:     25000,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RosterKey, "REDIS_ROSTER_KEY")

	setStringFromEnv(&cfg.Currency, "CURRENCY")
	setIntFromEnv(&cfg.CommissionBps, "COMMISSION_BPS", &errs)
	setDurationFromEnv(&cfg.RefundCutoff, "REFUND_CUTOFF", &errs)
	setIntFromEnv(&cfg.RefundRateBps, "REFUND_RATE_BPS", &errs)
	setStringFromEnv(&cfg.CompatPolicy, "COMPAT_POLICY")
	setIntFromEnv(&cfg.ReserveRetries, "RESERVE_RETRIES", &errs)
	setIntFromEnv(&cfg.PaymentAttempts, "PAYMENT_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.PaymentBackoff, "PAYMENT_BACKOFF", &errs)
	setFloatFromEnv(&cfg.WishRadiusM, "WISH_RADIUS_M", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.CommissionBps < 0 || cfg.CommissionBps > 10000 {
		errs = append(errs, fmt.Errorf("COMMISSION_BPS must be within [0,10000]"))
	}
	if cfg.RefundRateBps < 0 || cfg.RefundRateBps > 10000 {
		errs = append(errs, fmt.Errorf("REFUND_RATE_BPS must be within [0,10000]"))
	}
	if cfg.ReserveRetries <= 0 {
		errs = append(errs, fmt.Errorf("RESERVE_RETRIES must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/carpool/internal/observability"
)

var (
	// ErrDeclined means the hold could not be placed; the booking aborts.
	ErrDeclined = errors.New("payments: authorization declined")
	// ErrCaptureFailed, ErrVoidFailed and ErrRefundFailed mean the gateway
	// kept failing past the retry budget. The caller must retry later with
	// the same keys; these operations must eventually succeed.
	ErrCaptureFailed = errors.New("payments: capture failed")
	ErrVoidFailed    = errors.New("payments: void failed")
	ErrRefundFailed  = errors.New("payments: refund failed")
)

// Handle is the gateway's opaque reference to an authorized payment.
type Handle string

// Gateway is the external payment capability: place a hold, convert it to a
// charge, release it, or return captured funds. Implementations must be
// idempotent per bookingRef/handle so retries never double-charge.
type Gateway interface {
	Authorize(ctx context.Context, amount int64, currency, bookingRef string) (Handle, error)
	Capture(ctx context.Context, h Handle) error
	Void(ctx context.Context, h Handle) error
	Refund(ctx context.Context, h Handle, amount int64) error
}

// Orchestrator wraps the gateway with the retry discipline the booking
// engine relies on: a declined authorization fails fast, while capture,
// void and refund are money-moving obligations retried with backoff under
// the gateway's idempotency keys.
type Orchestrator struct {
	gateway  Gateway
	currency string
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

func NewOrchestrator(gateway Gateway, currency string, attempts int, backoff time.Duration, logger *slog.Logger) *Orchestrator {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Orchestrator{gateway: gateway, currency: currency, attempts: attempts, backoff: backoff, logger: logger}
}

// Authorize places a hold for the booking's full amount. It is called once
// per booking and never retried: a decline aborts the request before any
// booking record becomes active.
func (o *Orchestrator) Authorize(ctx context.Context, amount int64, bookingRef string) (Handle, error) {
	h, err := o.gateway.Authorize(ctx, amount, o.currency, bookingRef)
	if err != nil {
		observability.PaymentOpsTotal.WithLabelValues("authorize", "declined").Inc()
		return "", fmt.Errorf("%w: %v", ErrDeclined, err)
	}
	observability.PaymentOpsTotal.WithLabelValues("authorize", "ok").Inc()
	return h, nil
}

// Capture converts the hold into a charge. Called exactly once per booking,
// at driver acceptance.
func (o *Orchestrator) Capture(ctx context.Context, h Handle) error {
	err := o.withRetry(ctx, "capture", func() error { return o.gateway.Capture(ctx, h) })
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	return nil
}

// Void releases a hold that was never captured.
func (o *Orchestrator) Void(ctx context.Context, h Handle) error {
	err := o.withRetry(ctx, "void", func() error { return o.gateway.Void(ctx, h) })
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVoidFailed, err)
	}
	return nil
}

// Refund returns amount of the captured funds. A zero amount is a no-op that
// still lets the caller advance booking state; partial amounts are allowed.
func (o *Orchestrator) Refund(ctx context.Context, h Handle, amount int64) error {
	if amount == 0 {
		observability.PaymentOpsTotal.WithLabelValues("refund", "noop").Inc()
		return nil
	}
	err := o.withRetry(ctx, "refund", func() error { return o.gateway.Refund(ctx, h, amount) })
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	return nil
}

func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := o.backoff
	var err error
	for i := 0; i < o.attempts; i++ {
		if err = fn(); err == nil {
			observability.PaymentOpsTotal.WithLabelValues(op, "ok").Inc()
			return nil
		}
		observability.PaymentOpsTotal.WithLabelValues(op, "error").Inc()
		o.logger.Warn("payment op failed", "op", op, "attempt", i+1, "error", err)
		if i == o.attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

package payments

import (
	"context"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
)

// StripeGateway implements Gateway over stripe-go PaymentIntents with
// manual capture. Every call carries an idempotency key derived from the
// booking reference or intent ID, so identical retries collapse server-side.
type StripeGateway struct{}

// NewStripeGateway initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeGateway() *StripeGateway {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	return &StripeGateway{}
}

// Authorize creates a PaymentIntent with capture_method=manual to hold funds.
func (s *StripeGateway) Authorize(ctx context.Context, amount int64, currency, bookingRef string) (Handle, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	params.SetIdempotencyKey("authorize:" + bookingRef)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return Handle(pi.ID), nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeGateway) Capture(ctx context.Context, h Handle) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.SetIdempotencyKey("capture:" + string(h))
	_, err := paymentintent.Capture(string(h), params)
	return err
}

// Void releases the hold on a PaymentIntent.
func (s *StripeGateway) Void(ctx context.Context, h Handle) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.SetIdempotencyKey("void:" + string(h))
	_, err := paymentintent.Cancel(string(h), params)
	return err
}

// Refund returns part or all of a captured PaymentIntent.
func (s *StripeGateway) Refund(ctx context.Context, h Handle, amount int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(string(h)),
		Amount:        stripe.Int64(amount),
	}
	params.SetIdempotencyKey("refund:" + string(h))
	_, err := refund.New(params)
	return err
}

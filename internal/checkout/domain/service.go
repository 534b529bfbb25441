package domain

import (
	"context"
	"errors"
)

type Service interface {
	// CreateSession starts a subscription checkout. donation is in cents;
	// zero or less adds no donation line.
	CreateSession(ctx context.Context, donation int64) (string, error)
	// HandleWebhook records a completed checkout and queues provisioning.
	// A redelivered event queues provisioning again only while the record
	// is still pending.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	APIKeyForSession(ctx context.Context, sessionID string) (string, error)
	// Cancel cancels the subscription bought in sessionID.
	Cancel(ctx context.Context, sessionID string) error
	PublishableKey() string
}

var (
	ErrInvalidSession  = errors.New("invalid_session")
	ErrInvalidDonation = errors.New("invalid_donation")
	ErrNoSubscription  = errors.New("no_subscription")
	ErrNoEmail         = errors.New("no_email")
	ErrCheckoutFailed  = errors.New("checkout_failed")
)

// CheckoutError reports a payment provider refusal. Its message is the
// provider's own and is shown to the buyer unchanged.
type CheckoutError struct {
	Cause error
}

func (e *CheckoutError) Error() string { return e.Cause.Error() }

func (e *CheckoutError) Unwrap() []error { return []error{ErrCheckoutFailed, e.Cause} }

package payment

import (
	"context"
	"encoding/json"
	"errors"
)

const EventCheckoutSessionCompleted = "checkout.session.completed"

var (
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)

// CheckoutParams describes a subscription checkout. DonationAmount is in the
// smallest currency unit and zero adds no donation line.
type CheckoutParams struct {
	PriceID         string
	DonationProduct string
	DonationAmount  int64
	Currency        string
	SuccessURL      string
	CancelURL       string
}

type CheckoutSession struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerEmail     string `json:"customer_email"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Email returns the best email the session itself carries.
func (s CheckoutSession) Email() string {
	if s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Provider is the payment processor surface the checkout flow needs.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error)
	RetrieveCustomer(ctx context.Context, id string) (Customer, error)
	CancelSubscription(ctx context.Context, id string) error
	// ConstructEvent verifies the signature header when a webhook secret is
	// configured and decodes the event.
	ConstructEvent(payload []byte, signature string) (Event, error)
	PublishableKey() string
}

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/smallbiznis/streamgate/internal/providers/httpapi"
)

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StripeError carries the message Stripe returned for a failed request.
type StripeError struct {
	StatusCode int
	Message    string
}

func (e *StripeError) Error() string { return e.Message }

func (e *StripeError) Reason() string { return "provider_stripe" }

type Stripe struct {
	secretKey      string
	publishableKey string
	webhookSecret  string
	apiVersion     string
	api            *httpapi.Client
	now            func() time.Time
}

func NewStripe(cfg config.StripeConfig) *Stripe {
	api := httpapi.New("stripe", cfg.BaseURL)
	api.HTTP.Timeout = 12 * time.Second
	api.ErrorMessage = stripeErrorMessage
	return &Stripe{
		secretKey:      strings.TrimSpace(cfg.SecretKey),
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		webhookSecret:  strings.TrimSpace(cfg.WebhookSecret),
		apiVersion:     strings.TrimSpace(cfg.APIVersion),
		api:            api,
		now:            time.Now,
	}
}

func (s *Stripe) PublishableKey() string {
	return s.publishableKey
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error) {
	values := url.Values{}
	values.Set("mode", "subscription")
	values.Set("success_url", params.SuccessURL)
	values.Set("cancel_url", params.CancelURL)
	values.Set("payment_method_types[]", "card")
	values.Set("allow_promotion_codes", "true")
	values.Set("line_items[0][price]", params.PriceID)
	values.Set("line_items[0][quantity]", "1")

	if params.DonationAmount > 0 {
		currency := strings.ToLower(strings.TrimSpace(params.Currency))
		if currency == "" {
			currency = "usd"
		}
		values.Set("line_items[1][quantity]", "1")
		values.Set("line_items[1][price_data][product]", params.DonationProduct)
		values.Set("line_items[1][price_data][unit_amount]", strconv.FormatInt(params.DonationAmount, 10))
		values.Set("line_items[1][price_data][currency]", currency)
	}

	var session CheckoutSession
	if err := s.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, &session); err != nil {
		return CheckoutSession{}, err
	}
	if session.ID == "" {
		return CheckoutSession{}, errors.New("stripe_response_invalid")
	}
	return session, nil
}

func (s *Stripe) RetrieveCustomer(ctx context.Context, id string) (Customer, error) {
	if strings.TrimSpace(id) == "" {
		return Customer{}, ErrInvalidPayload
	}
	var customer Customer
	if err := s.doRequest(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(id), nil, &customer); err != nil {
		return Customer{}, err
	}
	return customer, nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidPayload
	}
	return s.doRequest(ctx, http.MethodDelete, "/v1/subscriptions/"+url.PathEscape(id), nil, nil)
}

func (s *Stripe) doRequest(ctx context.Context, method, path string, form url.Values, out any) error {
	if s.secretKey == "" {
		return ErrInvalidConfig
	}
	var header http.Header
	if s.apiVersion != "" {
		header = http.Header{"Stripe-Version": []string{s.apiVersion}}
	}

	err := s.api.Do(ctx, httpapi.Request{
		Method: method,
		Path:   path,
		Header: header,
		Token:  s.secretKey,
		Form:   form,
		Out:    out,
	})
	var apiErr *httpapi.Error
	if errors.As(err, &apiErr) {
		return &StripeError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}

// stripeErrorMessage keeps only Stripe's human message so it can be shown to
// the buyer as-is.
func stripeErrorMessage(body []byte) string {
	var resp stripeErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "stripe_request_failed"
	}
	if message := strings.TrimSpace(resp.Error.Message); message != "" {
		return message
	}
	return "stripe_request_failed"
}

package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStripe(t *testing.T, handler http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStripe(config.StripeConfig{SecretKey: "sk_test", PublishableKey: "pk_test", BaseURL: srv.URL, APIVersion: "2020-08-27"})
}

func TestCreateCheckoutSessionWithDonation(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "2020-08-27", r.Header.Get("Stripe-Version"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "price_1", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "500", r.PostForm.Get("line_items[1][price_data][unit_amount]"))
		assert.Equal(t, "prod_d", r.PostForm.Get("line_items[1][price_data][product]"))
		_, _ = w.Write([]byte(`{"id":"cs_test_1"}`))
	})

	session, err := s.CreateCheckoutSession(context.Background(), CheckoutParams{
		PriceID: "price_1", DonationProduct: "prod_d", DonationAmount: 500,
		SuccessURL: "https://x/success.html", CancelURL: "https://x/cancel.html",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "pk_test", s.PublishableKey())
}

func TestCreateCheckoutSessionWithoutDonation(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Empty(t, r.PostForm.Get("line_items[1][quantity]"))
		_, _ = w.Write([]byte(`{"id":"cs_test_2"}`))
	})

	_, err := s.CreateCheckoutSession(context.Background(), CheckoutParams{PriceID: "price_1"})
	require.NoError(t, err)
}

func TestStripeErrorMessage(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"No such price: 'price_x'"}}`))
	})

	_, err := s.CreateCheckoutSession(context.Background(), CheckoutParams{PriceID: "price_x"})
	var stripeErr *StripeError
	require.ErrorAs(t, err, &stripeErr)
	assert.Equal(t, "No such price: 'price_x'", stripeErr.Message)
}

func TestRetrieveCustomerAndCancel(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/customers/cus_1":
			_, _ = w.Write([]byte(`{"id":"cus_1","email":"a@b.com"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/subscriptions/sub_1":
			_, _ = w.Write([]byte(`{"id":"sub_1","status":"canceled"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	customer, err := s.RetrieveCustomer(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", customer.Email)

	require.NoError(t, s.CancelSubscription(context.Background(), "sub_1"))
	assert.ErrorIs(t, s.CancelSubscription(context.Background(), ""), ErrInvalidPayload)
}

func TestMissingSecretKey(t *testing.T) {
	s := NewStripe(config.StripeConfig{BaseURL: "http://127.0.0.1:0"})
	_, err := s.RetrieveCustomer(context.Background(), "cus_1")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

const eventPayload = `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","customer":"cus_1"}}}`

func TestConstructEventVerifiesSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewStripe(config.StripeConfig{WebhookSecret: "whsec_test"})
	s.now = func() time.Time { return now }

	header := SignPayload("whsec_test", []byte(eventPayload), now)
	event, err := s.ConstructEvent([]byte(eventPayload), header)
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutSessionCompleted, event.Type)
	assert.JSONEq(t, `{"id":"cs_1","customer":"cus_1"}`, string(event.Data.Object))

	_, err = s.ConstructEvent([]byte(eventPayload), SignPayload("other", []byte(eventPayload), now))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = s.ConstructEvent([]byte(eventPayload), "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	stale := SignPayload("whsec_test", []byte(eventPayload), now.Add(-time.Hour))
	_, err = s.ConstructEvent([]byte(eventPayload), stale)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventWithoutSecretParsesPlainPayload(t *testing.T) {
	s := NewStripe(config.StripeConfig{})

	event, err := s.ConstructEvent([]byte(eventPayload), "")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	_, err = s.ConstructEvent([]byte(`not json`), "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCheckoutSessionEmailFallback(t *testing.T) {
	var s CheckoutSession
	s.CustomerEmail = "fallback@b.com"
	assert.Equal(t, "fallback@b.com", s.Email())
	s.CustomerDetails.Email = "a@b.com"
	assert.Equal(t, "a@b.com", s.Email())
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/streamgate/internal/checkout/domain"
	"github.com/smallbiznis/streamgate/internal/config"
	devicedomain "github.com/smallbiznis/streamgate/internal/device/domain"
	"github.com/smallbiznis/streamgate/internal/jobs"
	"github.com/smallbiznis/streamgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/streamgate/internal/observability/metrics"
	"github.com/smallbiznis/streamgate/internal/providers/payment"
	provisioningdomain "github.com/smallbiznis/streamgate/internal/provisioning/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stripe substitutes the literal placeholder with the session id.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Repo       devicedomain.Repository
	Payment    payment.Provider
	Dispatcher jobs.Dispatcher
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	repo       devicedomain.Repository
	payment    payment.Provider
	dispatcher jobs.Dispatcher
	metrics    *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkout.service"),
		cfg:        p.Config,
		repo:       p.Repo,
		payment:    p.Payment,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
	}
}

func (s *Service) CreateSession(ctx context.Context, donation int64) (string, error) {
	if donation < 0 {
		return "", domain.ErrInvalidDonation
	}

	session, err := s.payment.CreateCheckoutSession(ctx, payment.CheckoutParams{
		PriceID:         s.cfg.Stripe.SubscriptionPrice,
		DonationProduct: s.cfg.Stripe.DonationProduct,
		DonationAmount:  donation,
		Currency:        "usd",
		SuccessURL:      s.cfg.SiteURL + "/success.html?session_id=" + sessionPlaceholder,
		CancelURL:       s.cfg.SiteURL + "/cancel.html",
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("checkout session creation failed", zap.Error(err))
		return "", &domain.CheckoutError{Cause: err}
	}
	return session.ID, nil
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	log := logger.WithContext(ctx, s.log)

	event, err := s.payment.ConstructEvent(payload, signature)
	if err != nil {
		return err
	}
	s.metrics.RecordPaymentEvent(ctx, event.Type)

	if event.Type != payment.EventCheckoutSessionCompleted {
		log.Debug("ignoring payment event", zap.String("event_type", event.Type), zap.String("event_id", event.ID))
		return nil
	}

	var session payment.CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("%w: %v", payment.ErrInvalidPayload, err)
	}
	session.ID = strings.TrimSpace(session.ID)
	if session.ID == "" {
		return domain.ErrInvalidSession
	}

	email, err := s.resolveEmail(ctx, session)
	if err != nil {
		return err
	}

	device := &devicedomain.Device{
		Email:           email,
		StripeSessionID: session.ID,
		Subscription:    session.Subscription,
	}
	if _, err := s.repo.Insert(ctx, s.db, device); err != nil {
		if !errors.Is(err, devicedomain.ErrDuplicate) {
			return err
		}
		// A redelivery after a failed submit finds the record still pending.
		// Provisioning is idempotent per session, so queue it again.
		existing, findErr := s.repo.FindOne(ctx, s.db, devicedomain.FieldStripeSessionID, session.ID)
		if findErr != nil {
			return findErr
		}
		if existing.Provisioned() {
			log.Info("checkout session already provisioned", zap.String("stripe_session_id", session.ID))
			return nil
		}
		log.Info("checkout session still pending, requeueing provisioning", zap.String("stripe_session_id", session.ID))
	}

	handle, err := s.dispatcher.Submit(ctx, provisioningdomain.JobSetupStreamingInstance, provisioningdomain.SetupArgs{
		StripeSessionID: session.ID,
	})
	if err != nil {
		return fmt.Errorf("submit provisioning: %w", err)
	}

	log.Info("provisioning queued",
		zap.String("stripe_session_id", session.ID),
		zap.String("job_id", handle.ID),
	)
	return nil
}

func (s *Service) resolveEmail(ctx context.Context, session payment.CheckoutSession) (string, error) {
	if email := strings.TrimSpace(session.Email()); email != "" {
		return email, nil
	}
	if session.Customer == "" {
		return "", domain.ErrNoEmail
	}
	customer, err := s.payment.RetrieveCustomer(ctx, session.Customer)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(customer.Email), nil
}

func (s *Service) APIKeyForSession(ctx context.Context, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", domain.ErrInvalidSession
	}
	device, err := s.repo.FindOne(ctx, s.db, devicedomain.FieldStripeSessionID, sessionID)
	if err != nil {
		return "", err
	}
	return device.Identifier, nil
}

func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ErrInvalidSession
	}
	device, err := s.repo.FindOne(ctx, s.db, devicedomain.FieldStripeSessionID, sessionID)
	if err != nil {
		return err
	}
	if device.Subscription == "" {
		return domain.ErrNoSubscription
	}
	if err := s.payment.CancelSubscription(ctx, device.Subscription); err != nil {
		return err
	}

	logger.WithContext(ctx, s.log).Info("subscription canceled",
		zap.String("stripe_session_id", sessionID),
		zap.String("subscription", device.Subscription),
	)
	return nil
}

func (s *Service) PublishableKey() string {
	return s.payment.PublishableKey()
}

package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/castmaster/castmaster-backend/internal/credits"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/redis"
)

const (
	guardScope      = "stripe_event"
	defaultGuardTTL = 24 * time.Hour
)

type subscriptionSyncer interface {
	ActivateFromCheckout(ctx context.Context, userID, customerID, stripeSubscriptionID string) error
	SyncFromStripe(ctx context.Context, sub *stripe.Subscription) error
	MarkCanceled(ctx context.Context, customerID string) error
	MarkPastDue(ctx context.Context, customerID string) error
}

type creditGranter interface {
	Grant(ctx context.Context, userID, sessionID, paymentIntentID string) error
}

type ServiceParams struct {
	Subscriptions subscriptionSyncer
	Credits       creditGranter
	Guard         redis.IdempotencyStore
	GuardTTL      time.Duration
	Logger        *logger.Logger
}

// Service applies verified Stripe events to subscriptions and HQ credits.
type Service struct {
	subscriptions subscriptionSyncer
	credits       creditGranter
	guard         *redis.Guard
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscription service required")
	}
	if params.Credits == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credit service required")
	}
	ttl := params.GuardTTL
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	guard, err := redis.NewGuard(params.Guard, guardScope, ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe event guard required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &Service{
		subscriptions: params.Subscriptions,
		credits:       params.Credits,
		guard:         guard,
		logg:          logg,
	}, nil
}

// Process handles event at most once. Duplicate deliveries are acknowledged
// without side effects; a failed handler releases the event id so Stripe's
// retry can apply it.
func (s *Service) Process(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	acquired, err := s.guard.Acquire(ctx, event.ID, string(event.Type))
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stripe event guard unavailable")
		acquired = true
	}
	if !acquired {
		s.logg.Info(ctx, "stripe.event_duplicate")
		return nil
	}

	if err := s.HandleEvent(ctx, event); err != nil {
		if relErr := s.guard.Release(ctx, event.ID); relErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "release stripe event guard")
		}
		return err
	}
	return nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.checkoutCompleted(ctx, &session)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return s.subscriptions.SyncFromStripe(ctx, &sub)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return s.subscriptions.MarkCanceled(ctx, customerID(sub.Customer))
	case stripe.EventTypeInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
		}
		return s.subscriptions.MarkPastDue(ctx, customerID(invoice.Customer))
	default:
		s.logg.Debug(ctx, "stripe.event_ignored")
		return nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	userID := session.Metadata["userId"]
	if session.Metadata["type"] == credits.PurchaseTypeHQ {
		paymentIntentID := ""
		if session.PaymentIntent != nil {
			paymentIntentID = session.PaymentIntent.ID
		}
		return s.credits.Grant(ctx, userID, session.ID, paymentIntentID)
	}

	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if err := s.subscriptions.ActivateFromCheckout(ctx, userID, customerID(session.Customer), subscriptionID); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID), "subscription.activated")
	return nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

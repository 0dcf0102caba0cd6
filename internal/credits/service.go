package credits

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/castmaster/castmaster-backend/pkg/auth"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

// Unlimited is reported as the credit balance of subscribers.
const Unlimited = -1

// PurchaseTypeHQ tags HQ checkout sessions in their metadata.
const PurchaseTypeHQ = "hq_purchase"

const consumeAttempts = 3

// Service manages one-off high-quality export credits.
type Service interface {
	Status(ctx context.Context, userID string) (Balance, error)
	Consume(ctx context.Context, userID string) (int, error)
	CreatePurchase(ctx context.Context, identity auth.Identity) (string, error)
	Grant(ctx context.Context, userID, sessionID, paymentIntentID string) error
}

type subscriptionLookup interface {
	FindActive(ctx context.Context, userID string) (*models.Subscription, error)
}

type checkoutCreator interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (string, error)
}

// Balance answers GET /api/hq-purchase/status.
type Balance struct {
	HasCredits   bool  `json:"hasCredits"`
	Credits      int   `json:"credits"`
	IsSubscriber *bool `json:"isSubscriber,omitempty"`
}

type ServiceParams struct {
	Repo          Repository
	Subscriptions subscriptionLookup
	Checkout      checkoutCreator
	PriceCents    int64
	Currency      string
	AppURL        string
	Logger        *logger.Logger
}

type service struct {
	repo          Repository
	subscriptions subscriptionLookup
	checkout      checkoutCreator
	priceCents    int64
	currency      string
	appURL        string
	logg          *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credits repository required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscription lookup required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	priceCents := params.PriceCents
	if priceCents <= 0 {
		priceCents = 100
	}
	return &service{
		repo:          params.Repo,
		subscriptions: params.Subscriptions,
		checkout:      params.Checkout,
		priceCents:    priceCents,
		currency:      currency,
		appURL:        strings.TrimSuffix(params.AppURL, "/"),
		logg:          logg,
	}, nil
}

func boolPtr(v bool) *bool { return &v }

func (s *service) Status(ctx context.Context, userID string) (Balance, error) {
	if strings.TrimSpace(userID) == "" {
		return Balance{}, nil
	}
	sub, err := s.subscriptions.FindActive(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	if sub != nil {
		return Balance{HasCredits: true, Credits: Unlimited, IsSubscriber: boolPtr(true)}, nil
	}
	purchase, err := s.repo.FindAvailable(ctx, userID)
	if err != nil {
		return Balance{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hq credits")
	}
	balance := Balance{IsSubscriber: boolPtr(false)}
	if purchase != nil {
		balance.HasCredits = purchase.CreditsRemaining > 0
		balance.Credits = purchase.CreditsRemaining
	}
	return balance, nil
}

// Consume spends one credit and returns what is left on that purchase.
// Subscribers are never charged and get Unlimited back.
func (s *service) Consume(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "Not authenticated")
	}
	sub, err := s.subscriptions.FindActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	if sub != nil {
		return Unlimited, nil
	}

	for attempt := 0; attempt < consumeAttempts; attempt++ {
		purchase, err := s.repo.FindAvailable(ctx, userID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to use HQ credit")
		}
		if purchase == nil {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "No HQ credits available")
		}
		ok, err := s.repo.Decrement(ctx, purchase)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to use HQ credit")
		}
		if ok {
			s.logg.Info(s.logg.WithUserID(ctx, userID), "credits.consumed")
			return purchase.CreditsRemaining - 1, nil
		}
	}
	return 0, pkgerrors.New(pkgerrors.CodeConflict, "HQ credit changed concurrently, try again")
}

// CreatePurchase opens a one-off Stripe checkout for a single HQ export.
func (s *service) CreatePurchase(ctx context.Context, identity auth.Identity) (string, error) {
	if strings.TrimSpace(identity.UserID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "Not authenticated")
	}
	if s.checkout == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "billing unavailable")
	}
	sub, err := s.subscriptions.FindActive(ctx, identity.UserID)
	if err != nil {
		return "", err
	}
	if sub != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Subscribers already have access to HQ exports")
	}
	existing, err := s.repo.FindAvailable(ctx, identity.UserID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hq credits")
	}
	if existing != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "You already have HQ credits available").
			WithDetails(map[string]any{"credits": existing.CreditsRemaining})
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(s.currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name:        stripe.String("24-bit HQ Export"),
						Description: stripe.String("One high-quality 24-bit WAV export for your podcast"),
					},
					UnitAmount: stripe.Int64(s.priceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.appURL + "/?hq_success=true"),
		CancelURL:  stripe.String(s.appURL + "/?hq_canceled=true"),
		Metadata:   map[string]string{"userId": identity.UserID, "type": PurchaseTypeHQ},
	}
	if identity.Email != "" {
		params.CustomerEmail = stripe.String(identity.Email)
	}
	url, err := s.checkout.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create checkout session")
	}
	return url, nil
}

// Grant records the credit bought by a completed checkout session.
func (s *service) Grant(ctx context.Context, userID, sessionID, paymentIntentID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing user or id")
	}
	purchase := &models.HQPurchase{
		UserID:           userID,
		StripeSessionID:  sessionID,
		CreditsRemaining: 1,
	}
	if paymentIntentID != "" {
		purchase.StripePaymentIntentID = &paymentIntentID
	}
	created, err := s.repo.Grant(ctx, purchase)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record hq purchase")
	}
	if created {
		s.logg.Info(s.logg.WithUserID(ctx, userID), "credits.granted")
	}
	return nil
}

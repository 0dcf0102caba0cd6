package subscriptions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/castmaster/castmaster-backend/pkg/auth"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/types"
)

type fileLister interface {
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriberFile, error)
}

// Summary is the public view of a subscription.
type Summary struct {
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
}

// StorageView lists a subscriber's files with their usage.
type StorageView struct {
	types.StorageUsage
	Files []types.StoredFile `json:"files"`
}

// StatusView answers GET /api/subscription/status.
type StatusView struct {
	IsSubscribed bool         `json:"isSubscribed"`
	Subscription *Summary     `json:"subscription"`
	Storage      *StorageView `json:"storage"`
}

// Service owns the subscriber tier lifecycle.
type Service interface {
	Status(ctx context.Context, userID string) (StatusView, error)
	FindActive(ctx context.Context, userID string) (*models.Subscription, error)
	CreateCheckout(ctx context.Context, identity auth.Identity) (string, error)
	CreatePortal(ctx context.Context, userID string) (string, error)
	ActivateFromCheckout(ctx context.Context, userID, customerID, stripeSubscriptionID string) error
	SyncFromStripe(ctx context.Context, sub *stripe.Subscription) error
	MarkCanceled(ctx context.Context, customerID string) error
	MarkPastDue(ctx context.Context, customerID string) error
}

// ServiceParams wires the subscription service.
type ServiceParams struct {
	Repo         Repository
	Files        fileLister
	Stripe       StripeClient
	PriceID      string
	AppURL       string
	StorageLimit int64
}

type service struct {
	repo         Repository
	files        fileLister
	stripe       StripeClient
	priceID      string
	appURL       string
	storageLimit int64
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscription repository required")
	}
	if params.Files == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "file lister required")
	}
	if params.StorageLimit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "storage limit must be positive")
	}
	return &service{
		repo:         params.Repo,
		files:        params.Files,
		stripe:       params.Stripe,
		priceID:      strings.TrimSpace(params.PriceID),
		appURL:       strings.TrimSuffix(params.AppURL, "/"),
		storageLimit: params.StorageLimit,
	}, nil
}

func (s *service) Status(ctx context.Context, userID string) (StatusView, error) {
	if strings.TrimSpace(userID) == "" {
		return StatusView{}, nil
	}
	sub, err := s.FindActive(ctx, userID)
	if err != nil {
		return StatusView{}, err
	}
	if sub == nil {
		return StatusView{}, nil
	}

	files, err := s.files.ListBySubscription(ctx, sub.ID)
	if err != nil {
		return StatusView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to get subscription status")
	}
	var used int64
	views := make([]types.StoredFile, 0, len(files))
	for _, f := range files {
		used += f.FileSize
		views = append(views, types.NewStoredFile(f))
	}
	return StatusView{
		IsSubscribed: true,
		Subscription: &Summary{
			Status:            string(sub.Status),
			CurrentPeriodEnd:  sub.CurrentPeriodEnd,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		},
		Storage: &StorageView{StorageUsage: types.NewStorageUsage(used, s.storageLimit), Files: views},
	}, nil
}

// FindActive returns the user's subscription only when it is active.
func (s *service) FindActive(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if !sub.Active() {
		return nil, nil
	}
	return sub, nil
}

// CreateCheckout ensures a Stripe customer exists for the user and opens a
// subscription checkout session.
func (s *service) CreateCheckout(ctx context.Context, identity auth.Identity) (string, error) {
	if s.stripe == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "billing unavailable")
	}
	sub, err := s.repo.FindByUserID(ctx, identity.UserID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub.Active() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Already subscribed")
	}

	customerID := ""
	if sub != nil {
		customerID = sub.StripeCustomerID
	}
	if customerID == "" {
		customerID, err = s.stripe.CreateCustomer(ctx, identity.Email, identity.UserID)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create checkout session")
		}
		placeholder := &models.Subscription{
			UserID:           identity.UserID,
			StripeCustomerID: customerID,
			Status:           enums.SubscriptionStatusInactive,
		}
		// An ended subscription is replaced by the one checkout creates.
		if sub != nil && !sub.Status.Ended() {
			placeholder.StripeSubscriptionID = sub.StripeSubscriptionID
			placeholder.StripePriceID = sub.StripePriceID
			placeholder.Status = sub.Status
		}
		if err := s.repo.Upsert(ctx, placeholder); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store stripe customer")
		}
	}

	url, err := s.stripe.CreateCheckoutSession(ctx, &stripe.CheckoutSessionCreateParams{
		Customer:           stripe.String(customerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(s.priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(s.appURL + "/dashboard?success=true"),
		CancelURL:  stripe.String(s.appURL + "/dashboard?canceled=true"),
		Metadata:   map[string]string{"userId": identity.UserID},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create checkout session")
	}
	return url, nil
}

func (s *service) CreatePortal(ctx context.Context, userID string) (string, error) {
	if s.stripe == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "billing unavailable")
	}
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil || sub.StripeCustomerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "No subscription found")
	}
	url, err := s.stripe.CreatePortalSession(ctx, sub.StripeCustomerID, s.appURL+"/dashboard")
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create portal session")
	}
	return url, nil
}

// ActivateFromCheckout stores the subscription created by a completed checkout.
func (s *service) ActivateFromCheckout(ctx context.Context, userID, customerID, stripeSubscriptionID string) error {
	if userID == "" || stripeSubscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing user or subscription")
	}
	if s.stripe == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "billing unavailable")
	}
	remote, err := s.stripe.GetSubscription(ctx, stripeSubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	sub := &models.Subscription{UserID: userID, StripeCustomerID: customerID}
	ApplyStripeSubscription(sub, remote)
	sub.StripeSubscriptionID = trimmedPtr(stripeSubscriptionID)
	sub.Status = enums.SubscriptionStatusActive
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert subscription")
	}
	return nil
}

func (s *service) SyncFromStripe(ctx context.Context, sub *stripe.Subscription) error {
	if sub == nil || sub.Customer == nil || sub.Customer.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription customer required")
	}
	return s.updateByCustomer(ctx, sub.Customer.ID, stripeUpdates(sub))
}

func (s *service) MarkCanceled(ctx context.Context, customerID string) error {
	return s.updateByCustomer(ctx, customerID, map[string]any{
		"status":               enums.SubscriptionStatusCanceled,
		"cancel_at_period_end": false,
	})
}

func (s *service) MarkPastDue(ctx context.Context, customerID string) error {
	return s.updateByCustomer(ctx, customerID, map[string]any{"status": enums.SubscriptionStatusPastDue})
}

func (s *service) updateByCustomer(ctx context.Context, customerID string, updates map[string]any) error {
	if strings.TrimSpace(customerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	updates["updated_at"] = time.Now().UTC()
	if _, err := s.repo.UpdateByCustomer(ctx, customerID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
	}
	return nil
}

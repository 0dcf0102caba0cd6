package subscriptions

import (
	"context"

	"github.com/stripe/stripe-go/v84"

	pkgstripe "github.com/castmaster/castmaster-backend/pkg/stripe"
)

// StripeClient exposes the subset of Stripe operations required by billing.
type StripeClient interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

type stripeClientWrapper struct {
	api *stripe.Client
}

// NewStripeClient wraps the provided Stripe client so billing services can be tested.
func NewStripeClient(client *pkgstripe.Client) StripeClient {
	if client == nil || client.API() == nil {
		return nil
	}
	return &stripeClientWrapper{api: client.API()}
}

func (w *stripeClientWrapper) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return w.api.V1Subscriptions.Retrieve(ctx, id, nil)
}

func (w *stripeClientWrapper) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerCreateParams{Metadata: map[string]string{"userId": userID}}
	if email != "" {
		params.Email = stripe.String(email)
	}
	customer, err := w.api.V1Customers.Create(ctx, params)
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (w *stripeClientWrapper) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (string, error) {
	session, err := w.api.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

func (w *stripeClientWrapper) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	session, err := w.api.V1BillingPortalSessions.Create(ctx, &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

// Secret key prefixes accepted per Stripe mode; restricted keys work too.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
	// ErrMissingSignature is returned when a webhook arrives without a Stripe-Signature header.
	ErrMissingSignature = errors.New("missing stripe signature")
)

// Client is the Stripe API handle plus the HQ export price it charges.
type Client struct {
	api          *stripe.Client
	mode         string
	hqPriceCents int64
	currency     string
}

// NewClient refuses a key whose prefix does not match the configured mode so
// a live key never ends up in a test deployment or the reverse.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if mode == "" {
		mode = "test"
	}
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", mode)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	switch {
	case apiKey == "":
		return nil, errAPIKeyRequired
	case strings.TrimSpace(cfg.Secret) == "":
		return nil, errSecretRequired
	case !hasAnyPrefix(apiKey, prefixes):
		return nil, fmt.Errorf("stripe %s mode requires a %s key", mode, strings.Join(prefixes, " or "))
	}

	cents, err := AmountCents(cfg.HQPrice)
	if err != nil {
		return nil, fmt.Errorf("hq price: %w", err)
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_mode": mode, "hq_price_cents": cents}), "stripe client initialized")
	}
	return &Client{api: stripe.NewClient(apiKey), mode: mode, hqPriceCents: cents, currency: currency}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Mode is "test" or "live".
func (c *Client) Mode() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// HQPrice returns the one-off HQ export price in cents and its currency.
func (c *Client) HQPrice() (int64, string) {
	if c == nil {
		return 0, ""
	}
	return c.hqPriceCents, c.currency
}

// VerifyEvent checks the Stripe-Signature header and decodes the event.
func VerifyEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	return webhook.ConstructEvent(payload, signature, secret)
}

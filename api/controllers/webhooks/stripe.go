package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/castmaster/castmaster-backend/api/responses"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	pkgstripe "github.com/castmaster/castmaster-backend/pkg/stripe"
)

const maxStripePayload = 64 << 10

// StripeEventProcessor applies a verified Stripe event at most once.
type StripeEventProcessor interface {
	Process(ctx context.Context, event *stripe.Event) error
}

type receivedResponse struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies the Stripe-Signature header and hands the event to svc.
func StripeWebhook(svc StripeEventProcessor, signingSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxStripePayload))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := pkgstripe.VerifyEvent(payload, r.Header.Get("Stripe-Signature"), signingSecret)
		if err != nil {
			msg := "Invalid signature"
			if errors.Is(err, pkgstripe.ErrMissingSignature) {
				msg = "No signature"
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg))
			return
		}

		if err := svc.Process(ctx, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, receivedResponse{Received: true})
	}
}

package subscriptions

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/enums"
)

// ApplyStripeSubscription copies billing state from Stripe onto target.
// Period bounds live on the first subscription item.
func ApplyStripeSubscription(target *models.Subscription, sub *stripe.Subscription) {
	if target == nil || sub == nil {
		return
	}
	target.StripeSubscriptionID = trimmedPtr(sub.ID)
	if price := determinePriceID(sub); price != "" {
		target.StripePriceID = &price
	}
	target.Status = mapStripeStatus(sub.Status)
	target.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	start, end := periodFromSubscription(sub)
	if start > 0 {
		target.CurrentPeriodStart = toTimePtr(start)
	}
	if end > 0 {
		target.CurrentPeriodEnd = toTimePtr(end)
	}
}

// stripeUpdates builds the column map for customer-scoped updates.
func stripeUpdates(sub *stripe.Subscription) map[string]any {
	updates := map[string]any{
		"status":               mapStripeStatus(sub.Status),
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	}
	start, end := periodFromSubscription(sub)
	if start > 0 {
		updates["current_period_start"] = time.Unix(start, 0).UTC()
	}
	if end > 0 {
		updates["current_period_end"] = time.Unix(end, 0).UTC()
	}
	return updates
}

func determinePriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

func periodFromSubscription(sub *stripe.Subscription) (int64, int64) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return 0, 0
	}
	item := sub.Items.Data[0]
	return item.CurrentPeriodStart, item.CurrentPeriodEnd
}

func toTimePtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func trimmedPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// mapStripeStatus keeps unknown provider statuses out of the active tier.
func mapStripeStatus(raw stripe.SubscriptionStatus) enums.SubscriptionStatus {
	status, err := enums.ParseSubscriptionStatus(string(raw))
	if err != nil {
		return enums.SubscriptionStatusInactive
	}
	return status
}

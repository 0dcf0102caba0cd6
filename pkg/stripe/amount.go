package stripe

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AmountCents converts a configured decimal price such as "1.00" into the
// smallest currency unit Stripe expects. Fractions of a cent are rejected.
func AmountCents(price string) (int64, error) {
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return 0, fmt.Errorf("price is required")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", price, err)
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("price %q must be positive", price)
	}
	cents := amount.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("price %q has sub-cent precision", price)
	}
	return cents.IntPart(), nil
}

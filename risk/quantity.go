package risk

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/autotrader/broker"
)

// StepPrecision returns the number of decimals implied by a LOT_SIZE step,
// e.g. 0.001 -> 3 and 1 -> 0.
func StepPrecision(step float64) int32 {
	if step <= 0 {
		return 0
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// Quantity converts a quote currency amount into a base asset order size at
// price, rounded to the precision of step. A step of zero leaves the size
// unrounded.
func Quantity(amount, price, step float64) (float64, error) {
	if price <= 0 {
		return 0, errors.Wrapf(broker.ErrInvalidQuantity, "price %v", price)
	}
	if amount <= 0 {
		return 0, errors.Wrapf(broker.ErrInvalidQuantity, "amount %v", amount)
	}

	q := decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(price))
	if step > 0 {
		q = q.Round(StepPrecision(step))
	}
	if !q.IsPositive() {
		return 0, errors.Wrapf(broker.ErrInvalidQuantity, "%v / %v rounds to zero at step %v", amount, price, step)
	}
	return q.InexactFloat64(), nil
}

// FormatQuantity renders q with exactly the precision of step.
func FormatQuantity(q, step float64) string {
	return decimal.NewFromFloat(q).StringFixed(StepPrecision(step))
}

package risk

import "fmt"

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	Notional float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Error joins the violations into one message. It is empty when allowed.
func (d Decision) Error() string {
	if d.Allowed {
		return ""
	}
	msg := "order rejected:"
	for _, v := range d.Violations {
		msg += " " + v.Code + " (" + v.Msg + ")"
	}
	return msg
}

// Evaluate runs the pre-trade checks for intent.
func Evaluate(p Policy, intent OrderIntent) Decision {
	d := Decision{Allowed: true}

	if intent.Price <= 0 || intent.Quantity <= 0 {
		d.add("NO_SIZE", "price and quantity must be positive")
		return d
	}
	d.Notional = intent.Price * intent.Quantity

	if intent.Leverage < 1 || (p.MaxLeverage > 0 && intent.Leverage > p.MaxLeverage) {
		d.add("LEVERAGE", fmt.Sprintf("leverage %d outside 1..%d", intent.Leverage, p.MaxLeverage))
	}
	if p.MinNotional > 0 && d.Notional < p.MinNotional {
		d.add("NOTIONAL_TOO_SMALL",
			fmt.Sprintf("notional %.4f below minimum %.2f", d.Notional, p.MinNotional))
	}
	if p.MaxOrderAmount > 0 && intent.Amount > p.MaxOrderAmount {
		d.add("AMOUNT_TOO_LARGE",
			fmt.Sprintf("amount %.2f exceeds max %.2f", intent.Amount, p.MaxOrderAmount))
	}

	// Stops on the wrong side of price would trigger immediately.
	if intent.StopLoss > 0 {
		if intent.Long && intent.StopLoss >= intent.Price {
			d.add("STOP_WRONG_SIDE", fmt.Sprintf("long stop %.4f not below price %.4f", intent.StopLoss, intent.Price))
		}
		if !intent.Long && intent.StopLoss <= intent.Price {
			d.add("STOP_WRONG_SIDE", fmt.Sprintf("short stop %.4f not above price %.4f", intent.StopLoss, intent.Price))
		}
	}
	if intent.TakeProfit > 0 {
		if intent.Long && intent.TakeProfit <= intent.Price {
			d.add("TP_WRONG_SIDE", fmt.Sprintf("long take profit %.4f not above price %.4f", intent.TakeProfit, intent.Price))
		}
		if !intent.Long && intent.TakeProfit >= intent.Price {
			d.add("TP_WRONG_SIDE", fmt.Sprintf("short take profit %.4f not below price %.4f", intent.TakeProfit, intent.Price))
		}
	}
	return d
}

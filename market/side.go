package market

import (
	"fmt"
	"strings"
)

// Side is the direction of a futures position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// OrderSide is the side of an exchange order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OpenSide returns the order side that opens a position of side s.
func (s Side) OpenSide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// CloseSide returns the order side that reduces a position of side s.
func (s Side) CloseSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// Sign is +1 for longs and -1 for shorts.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

func (s Side) Valid() bool { return s == Long || s == Short }

// SideOf maps an opening order side to the position side it creates.
func SideOf(o OrderSide) Side {
	if o == Sell {
		return Short
	}
	return Long
}

// SideFromAmount derives the side from a signed exchange position amount.
// Zero has no side.
func SideFromAmount(amt float64) (Side, bool) {
	switch {
	case amt > 0:
		return Long, true
	case amt < 0:
		return Short, true
	default:
		return "", false
	}
}

// ParseSide accepts LONG/SHORT as well as BUY/SELL.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return Long, nil
	case "SHORT", "SELL":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

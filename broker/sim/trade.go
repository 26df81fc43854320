package sim

import (
	"time"

	"github.com/rustyeddy/autotrader/market"
)

// paperPosition is the net position for one symbol.
type paperPosition struct {
	Amount     float64 // signed
	EntryPrice float64
	Leverage   int
	OpenedAt   time.Time
}

func (p *paperPosition) side() market.Side {
	s, _ := market.SideFromAmount(p.Amount)
	return s
}

func (p *paperPosition) unrealized(mark float64) float64 {
	return p.Amount * (mark - p.EntryPrice)
}

// trigger is a resting STOP_MARKET or TAKE_PROFIT_MARKET order that closes
// the whole position.
type trigger struct {
	ID     int64
	Symbol string
	Side   market.OrderSide // closing side
	Type   string
	Price  float64
	Placed time.Time
}

// hit reports whether the candle traded through the trigger price.
func (t trigger) hit(c market.Candle) bool {
	closesLong := t.Side == market.Sell
	switch t.Type {
	case TypeStopMarket:
		if closesLong {
			return c.Low <= t.Price
		}
		return c.High >= t.Price
	case TypeTakeProfitMarket:
		if closesLong {
			return c.High >= t.Price
		}
		return c.Low <= t.Price
	}
	return false
}

// ClosedTrade is a realized round trip recorded by the engine.
type ClosedTrade struct {
	ID         string
	Symbol     string
	Side       market.Side
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	RealizedPL float64
	Reason     string
	OpenedAt   time.Time
	ClosedAt   time.Time
}

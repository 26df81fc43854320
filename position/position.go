// Package position owns the believed state of the single open position the
// trading loop manages for one symbol.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
)

// ErrAlreadyOpen is returned by RecordOpen while a position is held.
var ErrAlreadyOpen = errors.New("position already open")

// Position is the locally tracked view of an exchange position.
type Position struct {
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Quantity   float64     `json:"quantity"`
	EntryPrice float64     `json:"entry_price"`
	Leverage   int         `json:"leverage"`
	TradeID    string      `json:"trade_id"`
	OpenedAt   time.Time   `json:"opened_at"`

	// EntrySnapshot is the indicator value captured when the order was
	// placed. The exchange does not store it.
	EntrySnapshot float64 `json:"entry_snapshot,omitempty"`
	HasSnapshot   bool    `json:"has_snapshot"`
}

// PnLPercent is the unrealized return at price, signed by side.
// It is zero when the entry price is unknown.
func (p Position) PnLPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100 * p.Side.Sign()
}

// SyntheticID is used as trade id when the exchange did not return one.
func SyntheticID(symbol string, side market.Side) string {
	return fmt.Sprintf("POS_%s_%s", symbol, side)
}

// Fill is a successfully executed opening order.
type Fill struct {
	Side        market.Side
	OrderID     string
	Quantity    float64
	EntryPrice  float64
	Leverage    int
	Snapshot    float64
	HasSnapshot bool
	Time        time.Time
}

// Tracker reconciles local position state against the exchange.
//
// Only the trading loop mutates a Tracker. Other goroutines use Current,
// which returns a copy.
type Tracker struct {
	symbol string
	acct   broker.Account

	mu  sync.RWMutex
	pos *Position
}

func NewTracker(symbol string, acct broker.Account) *Tracker {
	return &Tracker{symbol: symbol, acct: acct}
}

func (t *Tracker) Symbol() string { return t.symbol }

// Current returns a copy of the believed position.
func (t *Tracker) Current() (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.pos == nil {
		return Position{}, false
	}
	return *t.pos, true
}

// Reconcile replaces the believed position with exchange truth.
//
// A non-zero amount for the symbol becomes the current position, keeping
// the local trade id and entry snapshot when the side is unchanged. A flat
// exchange clears local state even if a position was believed open. On a
// gateway error the state is left untouched.
func (t *Tracker) Reconcile(ctx context.Context) (Position, bool, error) {
	positions, err := t.acct.GetPositions(ctx, t.symbol)
	if err != nil {
		return Position{}, false, errors.Wrapf(err, "get positions %s", t.symbol)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	live, ok := broker.FindPosition(positions, t.symbol)
	if !ok {
		t.pos = nil
		return Position{}, false, nil
	}
	side, _ := live.Side()

	next := Position{
		Symbol:     t.symbol,
		Side:       side,
		Quantity:   live.Quantity(),
		EntryPrice: live.EntryPrice,
		Leverage:   live.Leverage,
		TradeID:    SyntheticID(t.symbol, side),
		OpenedAt:   time.Now(),
	}
	if prev := t.pos; prev != nil && prev.Side == side {
		next.TradeID = prev.TradeID
		next.OpenedAt = prev.OpenedAt
		next.EntrySnapshot = prev.EntrySnapshot
		next.HasSnapshot = prev.HasSnapshot
		if next.Leverage == 0 {
			next.Leverage = prev.Leverage
		}
	}
	t.pos = &next
	return next, true, nil
}

// RecordOpen stores a freshly opened position.
func (t *Tracker) RecordOpen(f Fill) error {
	if !f.Side.Valid() {
		return fmt.Errorf("invalid side %q", f.Side)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pos != nil {
		return errors.Wrapf(ErrAlreadyOpen, "%s %s", t.pos.Symbol, t.pos.Side)
	}

	id := f.OrderID
	if id == "" {
		id = SyntheticID(t.symbol, f.Side)
	}
	opened := f.Time
	if opened.IsZero() {
		opened = time.Now()
	}
	t.pos = &Position{
		Symbol:        t.symbol,
		Side:          f.Side,
		Quantity:      f.Quantity,
		EntryPrice:    f.EntryPrice,
		Leverage:      f.Leverage,
		TradeID:       id,
		OpenedAt:      opened,
		EntrySnapshot: f.Snapshot,
		HasSnapshot:   f.HasSnapshot,
	}
	return nil
}

// Clear forgets the believed position after a close.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.pos = nil
	t.mu.Unlock()
}

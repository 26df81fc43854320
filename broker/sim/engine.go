// Package sim is a paper trading broker.Gateway. It generates candles from
// a Feed, fills market orders at the last close and honours stop and take
// profit triggers against each new bar.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/pkg/id"
)

const (
	TypeMarket           = "MARKET"
	TypeStopMarket       = "STOP_MARKET"
	TypeTakeProfitMarket = "TAKE_PROFIT_MARKET"
)

var ErrNoPrice = errors.New("no price yet")

type Config struct {
	Asset    string
	Balance  float64
	StepSize float64

	// AdvanceOnFetch appends one new bar on every GetCandles call once the
	// requested history exists, so each trading cycle sees fresh data.
	AdvanceOnFetch bool
}

func DefaultConfig() Config {
	return Config{Asset: "USDT", Balance: 1000, StepSize: 0.001, AdvanceOnFetch: true}
}

type Engine struct {
	mu  sync.Mutex
	cfg Config

	feed      Feed
	balance   float64
	history   map[string][]market.Candle
	positions map[string]*paperPosition
	tradeIDs  map[string]string
	triggers  []trigger
	closed    []ClosedTrade
	nextOrder int64
}

var _ broker.Gateway = (*Engine)(nil)

func NewEngine(cfg Config, feed Feed) *Engine {
	if cfg.Asset == "" {
		cfg.Asset = "USDT"
	}
	return &Engine{
		cfg:       cfg,
		feed:      feed,
		balance:   cfg.Balance,
		history:   make(map[string][]market.Candle),
		positions: make(map[string]*paperPosition),
		tradeIDs:  make(map[string]string),
	}
}

// GetCandles tops up the history for symbol to limit bars and returns the
// most recent limit candles.
func (e *Engine) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	step, err := market.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	warm := len(e.history[symbol]) >= limit
	for len(e.history[symbol]) < limit {
		e.advanceLocked(symbol, step)
	}
	if warm && e.cfg.AdvanceOnFetch {
		e.advanceLocked(symbol, step)
	}

	h := e.history[symbol]
	out := make([]market.Candle, limit)
	copy(out, h[len(h)-limit:])
	return out, nil
}

// Advance appends one bar for symbol and applies resting triggers to it.
func (e *Engine) Advance(symbol, interval string) (market.Candle, error) {
	step, err := market.IntervalDuration(interval)
	if err != nil {
		return market.Candle{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advanceLocked(symbol, step), nil
}

func (e *Engine) advanceLocked(symbol string, step time.Duration) market.Candle {
	h := e.history[symbol]
	var prev market.Candle
	if len(h) > 0 {
		prev = h[len(h)-1]
	}
	c := e.feed.Next(symbol, prev, step)
	e.history[symbol] = append(h, c)
	e.applyTriggersLocked(symbol, c)
	return c
}

func (e *Engine) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPriceLocked(symbol)
}

func (e *Engine) lastPriceLocked(symbol string) (float64, error) {
	h := e.history[symbol]
	if len(h) == 0 {
		return 0, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	return h[len(h)-1].Close, nil
}

func (e *Engine) StepSize(ctx context.Context, symbol string) (float64, error) {
	return e.cfg.StepSize, nil
}

// GetPositions mirrors the exchange: a flat symbol is reported with a zero
// amount rather than omitted.
func (e *Engine) GetPositions(ctx context.Context, symbol string) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Position
	for sym, p := range e.positions {
		if symbol != "" && sym != symbol {
			continue
		}
		mark, _ := e.lastPriceLocked(sym)
		out = append(out, broker.Position{
			Symbol:        sym,
			Amount:        p.Amount,
			EntryPrice:    p.EntryPrice,
			MarkPrice:     mark,
			Leverage:      p.Leverage,
			UnrealizedPnL: p.unrealized(mark),
		})
	}
	if len(out) == 0 && symbol != "" {
		out = append(out, broker.Position{Symbol: symbol})
	}
	return out, nil
}

func (e *Engine) GetBalances(ctx context.Context) ([]broker.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var margin, upnl float64
	for sym, p := range e.positions {
		mark, _ := e.lastPriceLocked(sym)
		upnl += p.unrealized(mark)
		lev := math.Max(1, float64(p.Leverage))
		margin += math.Abs(p.Amount) * p.EntryPrice / lev
	}
	return []broker.Balance{{
		Asset:         e.cfg.Asset,
		Balance:       e.balance,
		Available:     e.balance - margin + math.Min(upnl, 0),
		UnrealizedPnL: upnl,
	}}, nil
}

func (e *Engine) GetOpenOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Order
	for _, t := range e.triggers {
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		out = append(out, broker.Order{
			ID:        t.ID,
			Symbol:    t.Symbol,
			Side:      t.Side,
			Type:      t.Type,
			StopPrice: t.Price,
			Status:    "NEW",
			Time:      t.Placed,
		})
	}
	return out, nil
}

func (e *Engine) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if req.Quantity <= 0 {
		return broker.OrderResult{}, fmt.Errorf("paper order %s: %w", req.Symbol, broker.ErrInvalidQuantity)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	price, err := e.lastPriceLocked(req.Symbol)
	if err != nil {
		return broker.OrderResult{}, err
	}
	now := e.nowLocked(req.Symbol)

	signed := req.Quantity * market.SideOf(req.Side).Sign()
	e.fillLocked(req.Symbol, signed, price, req.Leverage, "Market", now)

	closeSide := market.SideOf(req.Side).CloseSide()
	if req.StopLoss > 0 {
		e.addTriggerLocked(req.Symbol, closeSide, TypeStopMarket, req.StopLoss, now)
	}
	if req.TakeProfit > 0 {
		e.addTriggerLocked(req.Symbol, closeSide, TypeTakeProfitMarket, req.TakeProfit, now)
	}

	e.nextOrder++
	return broker.OrderResult{
		OrderID:  strconv.FormatInt(e.nextOrder, 10),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		Status:   "FILLED",
		Time:     now,
	}, nil
}

func (e *Engine) ClosePosition(ctx context.Context, symbol string, side market.Side) (broker.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[symbol]
	if !ok || p.side() != side {
		return broker.OrderResult{}, fmt.Errorf("%s %s: %w", symbol, side, broker.ErrNoPosition)
	}
	price, err := e.lastPriceLocked(symbol)
	if err != nil {
		return broker.OrderResult{}, err
	}
	now := e.nowLocked(symbol)
	qty := math.Abs(p.Amount)

	e.fillLocked(symbol, -p.Amount, price, p.Leverage, "Close", now)
	e.cancelTriggersLocked(symbol)

	e.nextOrder++
	return broker.OrderResult{
		OrderID:  strconv.FormatInt(e.nextOrder, 10),
		Symbol:   symbol,
		Side:     side.CloseSide(),
		Quantity: qty,
		Price:    price,
		Status:   "FILLED",
		Time:     now,
	}, nil
}

// Balance is the realized wallet balance.
func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// ClosedTrades returns realized round trips, oldest first.
func (e *Engine) ClosedTrades() []ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ClosedTrade(nil), e.closed...)
}

// fillLocked applies a signed quantity at price, netting against any
// existing position the way one-way futures accounts do.
func (e *Engine) fillLocked(symbol string, signed, price float64, leverage int, reason string, now time.Time) {
	p, ok := e.positions[symbol]
	if !ok {
		e.positions[symbol] = &paperPosition{Amount: signed, EntryPrice: price, Leverage: leverage, OpenedAt: now}
		e.tradeIDs[symbol] = id.NewAt(now)
		return
	}

	if leverage > 0 {
		p.Leverage = leverage
	}

	// Same direction: average in.
	if p.Amount*signed > 0 {
		total := p.Amount + signed
		p.EntryPrice = (p.EntryPrice*p.Amount + price*signed) / total
		p.Amount = total
		return
	}

	closing := math.Min(math.Abs(signed), math.Abs(p.Amount))
	pl := closing * (price - p.EntryPrice) * p.side().Sign()
	e.balance += pl
	e.closed = append(e.closed, ClosedTrade{
		ID:         e.tradeIDs[symbol],
		Symbol:     symbol,
		Side:       p.side(),
		Quantity:   closing,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		RealizedPL: pl,
		Reason:     reason,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   now,
	})

	rest := p.Amount + signed
	switch {
	case math.Abs(rest) < 1e-12:
		delete(e.positions, symbol)
		delete(e.tradeIDs, symbol)
	case rest*p.Amount > 0:
		p.Amount = rest
	default:
		// Flipped through zero: the remainder opens at price.
		e.positions[symbol] = &paperPosition{Amount: rest, EntryPrice: price, Leverage: p.Leverage, OpenedAt: now}
		e.tradeIDs[symbol] = id.NewAt(now)
	}
}

func (e *Engine) addTriggerLocked(symbol string, side market.OrderSide, typ string, price float64, now time.Time) {
	e.nextOrder++
	e.triggers = append(e.triggers, trigger{
		ID: e.nextOrder, Symbol: symbol, Side: side, Type: typ, Price: price, Placed: now,
	})
}

func (e *Engine) cancelTriggersLocked(symbol string) {
	kept := e.triggers[:0]
	for _, t := range e.triggers {
		if t.Symbol != symbol {
			kept = append(kept, t)
		}
	}
	e.triggers = kept
}

// applyTriggersLocked fires the first resting trigger the candle reaches.
// Stops are checked before take profits when both are touched.
func (e *Engine) applyTriggersLocked(symbol string, c market.Candle) {
	p, ok := e.positions[symbol]
	if !ok {
		e.cancelTriggersLocked(symbol)
		return
	}
	for _, typ := range []string{TypeStopMarket, TypeTakeProfitMarket} {
		for _, t := range e.triggers {
			if t.Symbol != symbol || t.Type != typ || !t.hit(c) {
				continue
			}
			e.fillLocked(symbol, -p.Amount, t.Price, p.Leverage, typ, c.OpenTime)
			e.cancelTriggersLocked(symbol)
			return
		}
	}
}

func (e *Engine) nowLocked(symbol string) time.Time {
	h := e.history[symbol]
	if len(h) == 0 {
		return time.Now().UTC()
	}
	return h[len(h)-1].OpenTime
}

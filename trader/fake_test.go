package trader

import (
	"context"
	"sync"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
	"github.com/rustyeddy/autotrader/strategies"
)

// fakeGateway is an in-memory exchange. A placed order becomes the open
// position and a close flattens it.
type fakeGateway struct {
	mu sync.Mutex

	candles   []market.Candle
	ticker    float64
	step      float64
	positions []broker.Position

	candlesErr   error
	positionsErr error
	placeErr     error
	closeErr     error
	fillPrice    float64

	placed []broker.OrderRequest
	closed []market.Side
}

var _ broker.Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.candlesErr != nil {
		return nil, g.candlesErr
	}
	return g.candles, nil
}

func (g *fakeGateway) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ticker, nil
}

func (g *fakeGateway) StepSize(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.step == 0 {
		return 0.001, nil
	}
	return g.step, nil
}

func (g *fakeGateway) GetPositions(ctx context.Context, symbol string) ([]broker.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.positionsErr != nil {
		return nil, g.positionsErr
	}
	return append([]broker.Position(nil), g.positions...), nil
}

func (g *fakeGateway) GetBalances(ctx context.Context) ([]broker.Balance, error) {
	return []broker.Balance{{Asset: "USDT", Balance: 1000, Available: 1000}}, nil
}

func (g *fakeGateway) GetOpenOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	return nil, nil
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placed = append(g.placed, req)
	if g.placeErr != nil {
		return broker.OrderResult{}, g.placeErr
	}
	amt := req.Quantity
	if req.Side == market.Sell {
		amt = -amt
	}
	g.positions = []broker.Position{{
		Symbol:     req.Symbol,
		Amount:     amt,
		EntryPrice: g.fillPrice,
		Leverage:   req.Leverage,
	}}
	return broker.OrderResult{
		OrderID:  "1001",
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    g.fillPrice,
		Status:   "FILLED",
	}, nil
}

func (g *fakeGateway) ClosePosition(ctx context.Context, symbol string, side market.Side) (broker.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = append(g.closed, side)
	if g.closeErr != nil {
		return broker.OrderResult{}, g.closeErr
	}
	p, ok := broker.FindPosition(g.positions, symbol)
	if !ok {
		return broker.OrderResult{}, broker.ErrNoPosition
	}
	g.positions = nil
	return broker.OrderResult{
		OrderID:  "2002",
		Symbol:   symbol,
		Side:     side.CloseSide(),
		Quantity: p.Quantity(),
		Price:    g.fillPrice,
		Status:   "FILLED",
	}, nil
}

func (g *fakeGateway) placedOrders() []broker.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]broker.OrderRequest(nil), g.placed...)
}

// stubStrategy returns a fixed result and records what it was shown.
type stubStrategy struct {
	mu   sync.Mutex
	res  strategies.Result
	seen []*position.Position
}

func (s *stubStrategy) Name() string    { return "stub" }
func (s *stubStrategy) MinCandles() int { return 2 }

func (s *stubStrategy) Evaluate(candles []market.Candle, pos *position.Position) strategies.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, pos)
	return s.res
}

type memLedger struct {
	mu   sync.Mutex
	rows []journal.TradeRecord
	err  error
}

func (m *memLedger) AddTrade(ctx context.Context, user string, rec journal.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.Username = user
	m.rows = append(m.rows, rec)
	return nil
}

// eventLog collects events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) Publish(ev Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) all() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}

func (e *eventLog) count(kind EventKind) int {
	n := 0
	for _, ev := range e.all() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// panicStrategy indexes past the candle window on every evaluation.
type panicStrategy struct{}

func (panicStrategy) Name() string    { return "panic" }
func (panicStrategy) MinCandles() int { return 1 }

func (panicStrategy) Evaluate(candles []market.Candle, pos *position.Position) strategies.Result {
	return strategies.Result{Price: candles[len(candles)+1].Close}
}

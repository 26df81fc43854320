// Package broker defines the exchange gateway the trading engine talks to.
//
// Implementations live in sub packages: binance for USDⓈ-M futures and sim
// for paper trading. Every call may fail with a transport or auth error and
// callers treat all failures as recoverable.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

var (
	// ErrNoPosition is returned by ClosePosition when the account is flat.
	ErrNoPosition = errors.New("no open position")
	// ErrInvalidQuantity is returned when an order size rounds to zero.
	ErrInvalidQuantity = errors.New("invalid order quantity")
)

// MarketData serves candles, prices and symbol metadata.
type MarketData interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	StepSize(ctx context.Context, symbol string) (float64, error)
}

// Account serves the live state of the trading account.
type Account interface {
	GetPositions(ctx context.Context, symbol string) ([]Position, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
}

// Orders places and closes positions.
type Orders interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, symbol string, side market.Side) (OrderResult, error)
}

// Gateway is the full exchange surface used by the trading loop.
type Gateway interface {
	MarketData
	Account
	Orders
}

// Position is a live exchange position. Amount is signed: positive for
// long, negative for short, zero when flat.
type Position struct {
	Symbol        string
	Amount        float64
	EntryPrice    float64
	MarkPrice     float64
	Leverage      int
	UnrealizedPnL float64
}

// Side returns the position direction. ok is false when flat.
func (p Position) Side() (market.Side, bool) {
	return market.SideFromAmount(p.Amount)
}

// Quantity is the absolute position size.
func (p Position) Quantity() float64 {
	if p.Amount < 0 {
		return -p.Amount
	}
	return p.Amount
}

type Balance struct {
	Asset         string
	Balance       float64
	Available     float64
	UnrealizedPnL float64
}

type Order struct {
	ID        int64
	Symbol    string
	Side      market.OrderSide
	Type      string
	Quantity  float64
	Price     float64
	StopPrice float64
	Status    string
	Time      time.Time
}

// OrderRequest opens a position with a market order. Quantity is in base
// asset units and must already respect the symbol step size. StopLoss and
// TakeProfit are trigger prices; zero disables them.
type OrderRequest struct {
	Symbol     string
	Side       market.OrderSide
	Quantity   float64
	Leverage   int
	StopLoss   float64
	TakeProfit float64
}

// OrderResult describes an accepted order.
type OrderResult struct {
	OrderID  string
	Symbol   string
	Side     market.OrderSide
	Quantity float64
	Price    float64
	Status   string
	Time     time.Time

	// Warnings lists non fatal failures, such as a rejected stop order
	// after the entry filled.
	Warnings []string
}

// FindPosition returns the first non-flat position for symbol.
func FindPosition(positions []Position, symbol string) (Position, bool) {
	for _, p := range positions {
		if p.Symbol == symbol && p.Amount != 0 {
			return p, true
		}
	}
	return Position{}, false
}

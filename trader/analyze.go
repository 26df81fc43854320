package trader

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/position"
	"github.com/rustyeddy/autotrader/strategies"
)

// Analysis is the outcome of a dry evaluation.
type Analysis struct {
	Result   strategies.Result
	Position *position.Position
	Candles  int
}

// Analyze reconciles, fetches candles and evaluates the strategy once
// without placing orders.
func Analyze(ctx context.Context, gw broker.Gateway, cfg config.StrategyConfig, st strategies.Strategy, limit int) (Analysis, error) {
	if st == nil {
		var err error
		if st, err = cfg.NewStrategy(); err != nil {
			return Analysis{}, err
		}
	}
	if limit < config.MinCandleLimit {
		limit = config.MinCandleLimit
	}

	tracker := position.NewTracker(cfg.Symbol, gw)
	pos, held, err := tracker.Reconcile(ctx)
	if err != nil {
		return Analysis{}, errors.Wrap(err, "reconcile position")
	}
	candles, err := gw.GetCandles(ctx, cfg.Symbol, cfg.Timeframe, limit)
	if err != nil {
		return Analysis{}, errors.Wrap(err, "fetch candles")
	}

	a := Analysis{Candles: len(candles)}
	if held {
		a.Position = &pos
	}
	a.Result = st.Evaluate(candles, a.Position)
	return a, nil
}

// Account is a read-only view of the futures wallet and the working orders
// for one symbol.
type Account struct {
	Balances []broker.Balance
	Position *position.Position
	Orders   []broker.Order
}

// FetchAccount reads balances, the position and open orders for symbol.
func FetchAccount(ctx context.Context, gw broker.Gateway, symbol string) (Account, error) {
	var a Account
	var err error
	if a.Balances, err = gw.GetBalances(ctx); err != nil {
		return Account{}, errors.Wrap(err, "fetch balances")
	}
	pos, held, err := position.NewTracker(symbol, gw).Reconcile(ctx)
	if err != nil {
		return Account{}, errors.Wrap(err, "reconcile position")
	}
	if held {
		a.Position = &pos
	}
	if a.Orders, err = gw.GetOpenOrders(ctx, symbol); err != nil {
		return Account{}, errors.Wrap(err, "fetch open orders")
	}
	return a, nil
}

// Package backtest replays historical candles through the trading loop
// against the paper exchange.
package backtest

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rustyeddy/autotrader/broker/sim"
	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/strategies"
	"github.com/rustyeddy/autotrader/trader"
)

// Runner drives one trading loop cycle per candle.
type Runner struct {
	Strategy    config.StrategyConfig
	Impl        strategies.Strategy // built from Strategy when nil
	Sim         sim.Config
	CandleLimit int
	Ledger      journal.Ledger
	Sink        trader.Sink
	Logger      *zap.Logger

	// CloseEnd flattens any open position after the last candle.
	CloseEnd bool
}

// Run replays candles. The first CandleLimit candles only warm the history;
// every later candle is one cycle.
func (r *Runner) Run(ctx context.Context, candles []market.Candle) (Result, error) {
	limit := r.CandleLimit
	if limit < config.MinCandleLimit {
		limit = config.MinCandleLimit
	}
	if len(candles) < limit {
		return Result{}, errors.Errorf("backtest: need at least %d candles, have %d", limit, len(candles))
	}

	sc := r.Sim
	sc.AdvanceOnFetch = true
	def := sim.DefaultConfig()
	if sc.Balance <= 0 {
		sc.Balance = def.Balance
	}
	if sc.StepSize <= 0 {
		sc.StepSize = def.StepSize
	}
	feed := sim.NewStaticFeed(candles)
	engine := sim.NewEngine(sc, feed)

	// Trade timestamps follow the replayed candles, not the wall clock.
	var clock time.Time
	loop, err := trader.New(r.Strategy, trader.Deps{
		Gateway:     engine,
		Ledger:      r.Ledger,
		Sink:        r.Sink,
		Logger:      r.Logger,
		Strategy:    r.Impl,
		Username:    "backtest",
		CandleLimit: limit,
		Now:         func() time.Time { return clock },
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Symbol:       r.Strategy.Symbol,
		Method:       r.Strategy.Method,
		StartBalance: sc.Balance,
		Start:        candles[0].OpenTime,
		End:          candles[len(candles)-1].OpenTime,
	}

	for i := limit - 1; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		clock = candles[i].OpenTime
		if err := loop.RunCycle(ctx); err != nil {
			res.Errors++
		}
		res.Cycles++
	}

	if pos, ok := loop.Position(); ok && r.CloseEnd {
		if _, err := engine.ClosePosition(ctx, pos.Symbol, pos.Side); err != nil {
			return Result{}, errors.Wrap(err, "close at end")
		}
	}

	res.summarize(engine.ClosedTrades(), engine.Balance())
	return res, nil
}

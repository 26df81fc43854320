package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/market/markettest"
	"github.com/rustyeddy/autotrader/strategies"
)

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func strategyConfig(method string) config.StrategyConfig {
	return config.StrategyConfig{
		Symbol:      "BTCUSDT",
		Timeframe:   "1m",
		OrderAmount: 100,
		Leverage:    10,
		Method:      method,
	}
}

func newLoop(t *testing.T, cfg config.StrategyConfig, gw *fakeGateway, st strategies.Strategy) (*Loop, *memLedger, *eventLog) {
	t.Helper()
	ledger := &memLedger{}
	events := &eventLog{}
	l, err := New(cfg, Deps{
		Gateway:      gw,
		Ledger:       ledger,
		Sink:         events,
		Strategy:     st,
		Username:     "alice",
		PollInterval: 5 * time.Millisecond,
		SleepStep:    time.Millisecond,
		Now:          func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return l, ledger, events
}

func TestNewValidates(t *testing.T) {
	_, err := New(strategyConfig("baseline"), Deps{})
	assert.Error(t, err)

	cfg := strategyConfig("baseline")
	cfg.Timeframe = "7m"
	_, err = New(cfg, Deps{Gateway: &fakeGateway{}})
	assert.Error(t, err)

	_, err = New(strategyConfig("nope"), Deps{Gateway: &fakeGateway{}})
	assert.Error(t, err)

	l, err := New(strategyConfig("Đường Base Line"), Deps{Gateway: &fakeGateway{}})
	require.NoError(t, err)
	assert.Equal(t, "baseline", l.strategy.Name())
	assert.Equal(t, config.MinCandleLimit, l.limit)
	assert.Equal(t, 30*time.Second, l.poll)
	assert.Equal(t, "Auto (Đường Base Line)", l.Source())
}

func TestBaselineBuyPlacesOneOrder(t *testing.T) {
	candles := markettest.BaselineLong()
	last := candles[len(candles)-1].Close
	gw := &fakeGateway{candles: candles, ticker: last, fillPrice: last}
	l, ledger, events := newLoop(t, strategyConfig("baseline"), gw, nil)

	require.NoError(t, l.RunCycle(context.Background()))

	placed := gw.placedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, market.Buy, placed[0].Side)
	assert.Equal(t, "BTCUSDT", placed[0].Symbol)
	assert.Equal(t, 10, placed[0].Leverage)
	assert.InDelta(t, 100/last, placed[0].Quantity, 0.001)

	pos, ok := l.Position()
	require.True(t, ok)
	assert.Equal(t, market.Long, pos.Side)
	assert.Equal(t, "1001", pos.TradeID)
	assert.Equal(t, last, pos.EntryPrice)
	assert.True(t, pos.HasSnapshot)
	assert.Greater(t, pos.EntrySnapshot, 0.0)
	assert.Equal(t, fixedNow, pos.OpenedAt)

	require.Len(t, ledger.rows, 1)
	row := ledger.rows[0]
	assert.Equal(t, "alice", row.Username)
	assert.Equal(t, journal.StatusOpen, row.Status)
	assert.Equal(t, market.Buy, row.Side)
	assert.Equal(t, "Auto (baseline)", row.Note)
	assert.Equal(t, 100.0, row.Amount)

	// The status announcing the order precedes the trade event.
	evs := events.all()
	require.NotEmpty(t, evs)
	assert.Equal(t, "analysis started", evs[0].Message)
	tradeAt, openingAt := -1, -1
	for i, ev := range evs {
		if ev.Kind == EventTrade {
			tradeAt = i
			require.NotNil(t, ev.Trade)
			assert.Equal(t, ActionOpen, ev.Trade.Action)
			assert.Equal(t, market.Buy, ev.Trade.Side)
			assert.Equal(t, "Auto (baseline)", ev.Trade.Source)
			assert.Equal(t, "1001", ev.Trade.OrderID)
		}
		if ev.Kind == EventStatus && len(ev.Message) > 7 && ev.Message[:7] == "opening" {
			openingAt = i
		}
	}
	require.GreaterOrEqual(t, openingAt, 0)
	assert.Greater(t, tradeAt, openingAt)

	// Next cycle: position reconciled from the exchange, no second order.
	require.NoError(t, l.RunCycle(context.Background()))
	assert.Len(t, gw.placedOrders(), 1)
	pos2, ok := l.Position()
	require.True(t, ok)
	assert.Equal(t, pos.EntrySnapshot, pos2.EntrySnapshot)
	assert.Equal(t, "1001", pos2.TradeID)
}

func TestOpenUsesTickerWhenFillPriceMissing(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10, 10), ticker: 20}
	st := &stubStrategy{res: strategies.Result{Open: strategies.Sell}}
	l, _, _ := newLoop(t, strategyConfig("baseline"), gw, st)

	require.NoError(t, l.RunCycle(context.Background()))
	placed := gw.placedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, market.Sell, placed[0].Side)
	assert.Equal(t, 5.0, placed[0].Quantity)

	pos, ok := l.Position()
	require.True(t, ok)
	assert.Equal(t, market.Short, pos.Side)
	assert.Equal(t, 20.0, pos.EntryPrice)
	assert.False(t, pos.HasSnapshot)
}

func TestCycleErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		gw      *fakeGateway
		cfg     func(*config.StrategyConfig)
		res     strategies.Result
		wantErr string
	}{
		{
			name:    "reconcile fails",
			gw:      &fakeGateway{positionsErr: boom},
			res:     strategies.Result{Open: strategies.Buy, Price: 10},
			wantErr: "reconcile position",
		},
		{
			name:    "candles fail",
			gw:      &fakeGateway{candlesErr: boom},
			res:     strategies.Result{Open: strategies.Buy, Price: 10},
			wantErr: "fetch candles",
		},
		{
			name:    "order rejected",
			gw:      &fakeGateway{candles: markettest.Doji(10, 10), placeErr: boom},
			res:     strategies.Result{Open: strategies.Buy, Price: 10},
			wantErr: "place BUY order",
		},
		{
			name:    "quantity rounds to zero",
			gw:      &fakeGateway{candles: markettest.Doji(10, 10), step: 1},
			cfg:     func(c *config.StrategyConfig) { c.OrderAmount = 1 },
			res:     strategies.Result{Open: strategies.Buy, Price: 100},
			wantErr: "order quantity",
		},
		{
			name:    "risk policy",
			gw:      &fakeGateway{candles: markettest.Doji(10, 10)},
			cfg:     func(c *config.StrategyConfig) { c.StopLoss = 11 },
			res:     strategies.Result{Open: strategies.Buy, Price: 10},
			wantErr: "STOP_WRONG_SIDE",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := strategyConfig("baseline")
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			l, ledger, _ := newLoop(t, cfg, tt.gw, &stubStrategy{res: tt.res})

			err := l.RunCycle(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			_, held := l.Position()
			assert.False(t, held)
			assert.Empty(t, ledger.rows)
		})
	}
}

func TestHeldPositionIgnoresOpenSignal(t *testing.T) {
	gw := &fakeGateway{
		candles:   markettest.Doji(10, 10),
		positions: []broker.Position{{Symbol: "BTCUSDT", Amount: 2, EntryPrice: 9, Leverage: 5}},
	}
	st := &stubStrategy{res: strategies.Result{Open: strategies.Buy, Price: 10}}
	l, _, events := newLoop(t, strategyConfig("baseline"), gw, st)

	require.NoError(t, l.RunCycle(context.Background()))
	assert.Empty(t, gw.placedOrders())

	require.Len(t, st.seen, 1)
	require.NotNil(t, st.seen[0])
	assert.Equal(t, market.Long, st.seen[0].Side)
	assert.Equal(t, 2.0, st.seen[0].Quantity)
	assert.Equal(t, 0, events.count(EventTrade))
}

func TestFlatPositionIgnoresCloseSignal(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10)}
	st := &stubStrategy{res: strategies.Result{Close: true}}
	l, _, _ := newLoop(t, strategyConfig("baseline"), gw, st)

	require.NoError(t, l.RunCycle(context.Background()))
	assert.Empty(t, gw.closed)
	require.Len(t, st.seen, 1)
	assert.Nil(t, st.seen[0])
}

func TestCloseSignalClosesAndRecords(t *testing.T) {
	gw := &fakeGateway{
		candles:   markettest.Doji(100, 110),
		fillPrice: 110,
		positions: []broker.Position{{Symbol: "BTCUSDT", Amount: -2, EntryPrice: 100, Leverage: 5}},
	}
	st := &stubStrategy{res: strategies.Result{Close: true, Open: strategies.Buy, Price: 110, Reason: "stop"}}
	l, ledger, events := newLoop(t, strategyConfig("ichimoku"), gw, st)

	require.NoError(t, l.RunCycle(context.Background()))

	assert.Equal(t, []market.Side{market.Short}, gw.closed)
	assert.Empty(t, gw.placedOrders(), "close skips the open evaluation")
	_, held := l.Position()
	assert.False(t, held)

	require.Len(t, ledger.rows, 1)
	row := ledger.rows[0]
	assert.Equal(t, journal.StatusClosed, row.Status)
	assert.Equal(t, market.Buy, row.Side)
	assert.Equal(t, 110.0, row.ExitPrice)
	assert.InDelta(t, -20.0, row.PnL, 1e-9)
	assert.Equal(t, fixedNow, row.ExitTime)

	require.Equal(t, 1, events.count(EventTrade))
	for _, ev := range events.all() {
		if ev.Kind == EventTrade {
			assert.Equal(t, ActionClose, ev.Trade.Action)
			assert.Equal(t, "Auto (ichimoku)", ev.Trade.Source)
			assert.Equal(t, 5, ev.Trade.Leverage)
		}
	}
}

func TestCloseWhenExchangeAlreadyFlat(t *testing.T) {
	gw := &fakeGateway{
		candles:   markettest.Doji(100, 110),
		positions: []broker.Position{{Symbol: "BTCUSDT", Amount: 1, EntryPrice: 100}},
		closeErr:  broker.ErrNoPosition,
	}
	l, ledger, _ := newLoop(t, strategyConfig("baseline"), gw, &stubStrategy{res: strategies.Result{Close: true}})

	require.NoError(t, l.RunCycle(context.Background()))
	_, held := l.Position()
	assert.False(t, held)
	assert.Empty(t, ledger.rows)
}

func TestCloseFailureKeepsPosition(t *testing.T) {
	gw := &fakeGateway{
		candles:   markettest.Doji(100, 110),
		positions: []broker.Position{{Symbol: "BTCUSDT", Amount: 1, EntryPrice: 100}},
		closeErr:  errors.New("timeout"),
	}
	l, _, _ := newLoop(t, strategyConfig("baseline"), gw, &stubStrategy{res: strategies.Result{Close: true}})

	assert.Error(t, l.RunCycle(context.Background()))
	_, held := l.Position()
	assert.True(t, held)
}

func TestLedgerFailureDoesNotUndoTrade(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10), fillPrice: 10}
	l, ledger, events := newLoop(t, strategyConfig("baseline"), gw, &stubStrategy{res: strategies.Result{Open: strategies.Buy, Price: 10}})
	ledger.err = errors.New("disk full")

	require.NoError(t, l.RunCycle(context.Background()))
	_, held := l.Position()
	assert.True(t, held)
	assert.Equal(t, 1, events.count(EventError))
}

func TestShortHistoryWaits(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10)}
	st := &stubStrategy{res: strategies.Result{Open: strategies.Buy, Price: 10}}
	l, _, _ := newLoop(t, strategyConfig("baseline"), gw, st)

	require.NoError(t, l.RunCycle(context.Background()))
	assert.Empty(t, st.seen)
	assert.Contains(t, l.Status().LastStatus, "waiting for history")
}

func TestStartStop(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10)}
	l, _, _ := newLoop(t, strategyConfig("baseline"), gw, &stubStrategy{})
	assert.Equal(t, Idle, l.State())

	require.NoError(t, l.Start(context.Background()))
	assert.ErrorIs(t, l.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return l.Status().Cycles >= 2 }, 2*time.Second, time.Millisecond)

	l.Stop()
	l.Wait()
	assert.Equal(t, Stopped, l.State())
	assert.ErrorIs(t, l.Start(context.Background()), ErrAlreadyStarted)
	l.Stop()
}

func TestErrorsDoNotEndLoop(t *testing.T) {
	gw := &fakeGateway{candlesErr: errors.New("exchange down")}
	l, _, events := newLoop(t, strategyConfig("baseline"), gw, &stubStrategy{})

	require.NoError(t, l.Start(context.Background()))
	require.Eventually(t, func() bool { return events.count(EventError) >= 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, Running, l.State())
	assert.Contains(t, l.Status().LastError, "exchange down")

	l.Stop()
	l.Wait()
}

func TestCyclePanicBecomesError(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10)}
	l, _, _ := newLoop(t, strategyConfig("baseline"), gw, panicStrategy{})

	var err error
	require.NotPanics(t, func() { err = l.RunCycle(context.Background()) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle panic")
	assert.Contains(t, err.Error(), "index out of range")
}

func TestPanicDoesNotEndLoop(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10)}
	l, _, events := newLoop(t, strategyConfig("baseline"), gw, panicStrategy{})

	require.NoError(t, l.Start(context.Background()))
	require.Eventually(t, func() bool { return l.Status().Cycles >= 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, Running, l.State())
	assert.GreaterOrEqual(t, events.count(EventError), 2)
	assert.Contains(t, l.Status().LastError, "cycle panic")

	l.Stop()
	l.Wait()
}

func TestContextCancelStopsLoop(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10)}
	l, _, _ := newLoop(t, strategyConfig("baseline"), gw, &stubStrategy{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	cancel()

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
	assert.Equal(t, Stopped, l.State())
}

func TestStopIdleLoop(t *testing.T) {
	l, _, _ := newLoop(t, strategyConfig("baseline"), &fakeGateway{}, &stubStrategy{})
	l.Stop()
	l.Wait()
	assert.Equal(t, Stopped, l.State())
}

func TestStopInterruptsLongSleep(t *testing.T) {
	gw := &fakeGateway{candles: markettest.Doji(10, 10)}
	l, err := New(strategyConfig("baseline"), Deps{
		Gateway:      gw,
		Strategy:     &stubStrategy{},
		PollInterval: time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, l.Start(context.Background()))
	require.Eventually(t, func() bool { return l.Status().Cycles == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	l.Stop()
	l.Wait()
	assert.Less(t, time.Since(start), time.Second)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}

// Package trader runs the periodic analyse-and-trade cycle for one symbol.
package trader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
	"github.com/rustyeddy/autotrader/risk"
	"github.com/rustyeddy/autotrader/strategies"
)

// ErrAlreadyStarted is returned by Start on a loop that is not Idle.
var ErrAlreadyStarted = errors.New("trading loop already started")

type State int32

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultSleepStep is the granularity of the between-cycle wait.
const DefaultSleepStep = 500 * time.Millisecond

// Deps are the collaborators of a Loop. Gateway is required.
type Deps struct {
	Gateway  broker.Gateway
	Ledger   journal.Ledger
	Sink     Sink
	Logger   *zap.Logger
	Strategy strategies.Strategy // built from the config when nil
	Policy   *risk.Policy

	Username     string
	CandleLimit  int
	PollInterval time.Duration // 0 derives it from the timeframe
	SleepStep    time.Duration
	Now          func() time.Time
}

// Loop is a cancellable trading task. Position state is only mutated from
// the loop goroutine; other goroutines read copies.
type Loop struct {
	cfg      config.StrategyConfig
	gw       broker.Gateway
	tracker  *position.Tracker
	strategy strategies.Strategy
	ledger   journal.Ledger
	sink     Sink
	policy   risk.Policy
	log      *zap.Logger

	user      string
	limit     int
	poll      time.Duration
	sleepStep time.Duration
	now       func() time.Time

	state    atomic.Int32
	cycles   atomic.Int64
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once

	mu         sync.RWMutex
	lastStatus string
	lastError  string
	lastResult strategies.Result
}

func New(cfg config.StrategyConfig, d Deps) (*Loop, error) {
	if d.Gateway == nil {
		return nil, errors.New("trading loop: gateway is required")
	}
	if !market.ValidInterval(cfg.Timeframe) {
		return nil, errors.Errorf("trading loop: unsupported timeframe %q", cfg.Timeframe)
	}

	st := d.Strategy
	if st == nil {
		var err error
		if st, err = cfg.NewStrategy(); err != nil {
			return nil, errors.Wrap(err, "trading loop")
		}
	}

	l := &Loop{
		cfg:       cfg,
		gw:        d.Gateway,
		tracker:   position.NewTracker(cfg.Symbol, d.Gateway),
		strategy:  st,
		ledger:    d.Ledger,
		sink:      d.Sink,
		policy:    risk.DefaultPolicy(),
		log:       d.Logger,
		user:      d.Username,
		limit:     d.CandleLimit,
		poll:      d.PollInterval,
		sleepStep: d.SleepStep,
		now:       d.Now,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if d.Policy != nil {
		l.policy = *d.Policy
	}
	if l.ledger == nil {
		l.ledger = journal.Nop{}
	}
	if l.sink == nil {
		l.sink = MultiSink(nil)
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	l.log = l.log.With(zap.String("symbol", cfg.Symbol), zap.String("method", cfg.Method))
	if l.limit < config.MinCandleLimit {
		l.limit = config.MinCandleLimit
	}
	if l.poll <= 0 {
		l.poll = market.PollInterval(cfg.Timeframe)
	}
	if l.sleepStep <= 0 {
		l.sleepStep = DefaultSleepStep
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) Config() config.StrategyConfig { return l.cfg }

// Position returns a copy of the tracked position.
func (l *Loop) Position() (position.Position, bool) { return l.tracker.Current() }

// Source tags ledger rows and trade events written by this loop.
func (l *Loop) Source() string { return "Auto (" + l.cfg.Method + ")" }

// Start launches the loop goroutine. It ends when Stop is called or ctx is
// cancelled.
func (l *Loop) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrAlreadyStarted
	}
	l.log.Info("trading loop started", zap.String("timeframe", l.cfg.Timeframe), zap.Duration("poll", l.poll))
	l.status("trading started")
	go l.run(ctx)
	return nil
}

// Stop asks the loop to finish after the current step. It does not wait.
func (l *Loop) Stop() {
	if l.state.CompareAndSwap(int32(Idle), int32(Stopped)) {
		l.finish()
		return
	}
	l.state.CompareAndSwap(int32(Running), int32(Stopping))
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Wait blocks until the loop has stopped.
func (l *Loop) Wait() { <-l.done }

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) finish() {
	l.doneOnce.Do(func() { close(l.done) })
}

func (l *Loop) run(ctx context.Context) {
	defer func() {
		l.state.Store(int32(Stopped))
		l.log.Info("trading loop stopped", zap.Int64("cycles", l.cycles.Load()))
		l.status("trading stopped")
		l.finish()
	}()

	for l.active(ctx) {
		if err := l.RunCycle(ctx); err != nil && ctx.Err() == nil {
			l.fail(err)
		}
		if !l.sleep(ctx) {
			return
		}
	}
}

func (l *Loop) active(ctx context.Context) bool {
	return l.State() == Running && ctx.Err() == nil
}

// sleep waits for the poll interval in sleepStep increments. It returns
// false when the loop should exit.
func (l *Loop) sleep(ctx context.Context) bool {
	t := time.NewTicker(l.sleepStep)
	defer t.Stop()

	for waited := time.Duration(0); waited < l.poll; waited += l.sleepStep {
		select {
		case <-ctx.Done():
			return false
		case <-l.stopCh:
			return false
		case <-t.C:
		}
		if !l.active(ctx) {
			return false
		}
	}
	return true
}

// RunCycle performs one reconcile, analyse and act pass. At most one of
// close and open happens per cycle. A panic in a strategy or collaborator
// is returned as an error.
func (l *Loop) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("cycle panic: %v", r)
		}
	}()
	return l.runCycle(ctx)
}

func (l *Loop) runCycle(ctx context.Context) error {
	l.cycles.Add(1)
	l.status("analysis started")

	pos, held, err := l.tracker.Reconcile(ctx)
	if err != nil {
		return errors.Wrap(err, "reconcile position")
	}

	candles, err := l.gw.GetCandles(ctx, l.cfg.Symbol, l.cfg.Timeframe, l.limit)
	if err != nil {
		return errors.Wrap(err, "fetch candles")
	}
	if n := l.strategy.MinCandles(); len(candles) < n {
		l.status(fmt.Sprintf("waiting for history: %d of %d candles", len(candles), n))
		return nil
	}

	var current *position.Position
	if held {
		current = &pos
	}
	res := l.strategy.Evaluate(candles, current)
	l.mu.Lock()
	l.lastResult = res
	l.mu.Unlock()

	l.log.Debug("evaluated",
		zap.String("open", res.Open.String()),
		zap.Bool("close", res.Close),
		zap.String("reason", res.Reason),
		zap.Any("details", res.Details))

	switch {
	case held && res.Close:
		return l.closePosition(ctx, pos, res, candles)
	case !held && res.Open != strategies.None:
		return l.openPosition(ctx, res, candles)
	default:
		msg := "no signal"
		if held {
			msg = fmt.Sprintf("holding %s %s", pos.Side, pos.Symbol)
		}
		if res.Reason != "" {
			msg += ": " + res.Reason
		}
		l.status(msg)
		return nil
	}
}

func (l *Loop) openPosition(ctx context.Context, res strategies.Result, candles []market.Candle) error {
	side, ok := res.Open.Side()
	if !ok {
		return nil
	}
	orderSide := side.OpenSide()

	price, err := l.price(ctx, res.Price, candles)
	if err != nil {
		return err
	}
	step, err := l.gw.StepSize(ctx, l.cfg.Symbol)
	if err != nil {
		return errors.Wrap(err, "step size")
	}
	qty, err := risk.Quantity(l.cfg.OrderAmount, price, step)
	if err != nil {
		return errors.Wrap(err, "order quantity")
	}

	decision := risk.Evaluate(l.policy, risk.OrderIntent{
		Symbol:     l.cfg.Symbol,
		Long:       side == market.Long,
		Amount:     l.cfg.OrderAmount,
		Quantity:   qty,
		Price:      price,
		Leverage:   l.cfg.Leverage,
		StopLoss:   l.cfg.StopLoss,
		TakeProfit: l.cfg.TakeProfit,
	})
	if !decision.Allowed {
		return errors.New(decision.Error())
	}

	l.status(fmt.Sprintf("opening %s %s qty=%s: %s", side, l.cfg.Symbol, risk.FormatQuantity(qty, step), res.Reason))
	out, err := l.gw.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     l.cfg.Symbol,
		Side:       orderSide,
		Quantity:   qty,
		Leverage:   l.cfg.Leverage,
		StopLoss:   l.cfg.StopLoss,
		TakeProfit: l.cfg.TakeProfit,
	})
	if err != nil {
		return errors.Wrapf(err, "place %s order", orderSide)
	}
	for _, w := range out.Warnings {
		l.publish(EventError, w, nil)
	}

	entry := out.Price
	if entry <= 0 {
		entry = price
	}
	filled := out.Quantity
	if filled <= 0 {
		filled = qty
	}
	now := l.now().UTC()

	err = l.tracker.RecordOpen(position.Fill{
		Side:        side,
		OrderID:     out.OrderID,
		Quantity:    filled,
		EntryPrice:  entry,
		Leverage:    l.cfg.Leverage,
		Snapshot:    res.Snapshot,
		HasSnapshot: res.HasSnapshot,
		Time:        now,
	})
	if err != nil {
		return errors.Wrap(err, "record open")
	}

	l.log.Info("position opened",
		zap.String("side", string(side)),
		zap.Float64("qty", filled),
		zap.Float64("price", entry),
		zap.Int("leverage", l.cfg.Leverage),
		zap.String("order_id", out.OrderID))

	l.publish(EventTrade, fmt.Sprintf("opened %s %s @ %.8g", side, l.cfg.Symbol, entry), &TradeUpdate{
		Action:    ActionOpen,
		Side:      orderSide,
		Symbol:    l.cfg.Symbol,
		Quantity:  filled,
		Leverage:  l.cfg.Leverage,
		Price:     entry,
		Timestamp: now,
		OrderID:   out.OrderID,
		Source:    l.Source(),
	})

	l.record(ctx, journal.TradeRecord{
		Symbol:    l.cfg.Symbol,
		Side:      orderSide,
		Price:     entry,
		Quantity:  filled,
		Amount:    l.cfg.OrderAmount,
		Leverage:  l.cfg.Leverage,
		OrderID:   out.OrderID,
		EntryTime: now,
		Status:    journal.StatusOpen,
		Note:      l.Source(),
	})
	return nil
}

func (l *Loop) closePosition(ctx context.Context, pos position.Position, res strategies.Result, candles []market.Candle) error {
	orderSide := pos.Side.CloseSide()
	l.status(fmt.Sprintf("closing %s %s: %s", pos.Side, pos.Symbol, res.Reason))

	out, err := l.gw.ClosePosition(ctx, pos.Symbol, pos.Side)
	if errors.Is(err, broker.ErrNoPosition) {
		l.tracker.Clear()
		l.status(fmt.Sprintf("%s position already closed on the exchange", pos.Symbol))
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "close position")
	}

	exit := out.Price
	if exit <= 0 {
		if exit, err = l.price(ctx, res.Price, candles); err != nil {
			exit = pos.EntryPrice
		}
	}
	qty := out.Quantity
	if qty <= 0 {
		qty = pos.Quantity
	}
	pnl := (exit - pos.EntryPrice) * qty * pos.Side.Sign()
	now := l.now().UTC()
	l.tracker.Clear()

	l.log.Info("position closed",
		zap.String("side", string(pos.Side)),
		zap.Float64("qty", qty),
		zap.Float64("price", exit),
		zap.Float64("pnl", pnl),
		zap.String("order_id", out.OrderID))

	l.publish(EventTrade, fmt.Sprintf("closed %s %s @ %.8g pnl=%.4f", pos.Side, pos.Symbol, exit, pnl), &TradeUpdate{
		Action:    ActionClose,
		Side:      orderSide,
		Symbol:    pos.Symbol,
		Quantity:  qty,
		Leverage:  pos.Leverage,
		Price:     exit,
		Timestamp: now,
		OrderID:   out.OrderID,
		Source:    l.Source(),
		PnL:       pnl,
	})

	l.record(ctx, journal.TradeRecord{
		Symbol:    pos.Symbol,
		Side:      orderSide,
		Price:     exit,
		Quantity:  qty,
		Amount:    exit * qty,
		Leverage:  pos.Leverage,
		OrderID:   out.OrderID,
		EntryTime: now,
		ExitTime:  now,
		ExitPrice: exit,
		PnL:       pnl,
		Status:    journal.StatusClosed,
		Note:      fmt.Sprintf("%s, opened %s @ %.8g", l.Source(), pos.TradeID, pos.EntryPrice),
	})
	return nil
}

// price prefers the evaluated close, then the ticker, then the last candle.
func (l *Loop) price(ctx context.Context, evaluated float64, candles []market.Candle) (float64, error) {
	if evaluated > 0 {
		return evaluated, nil
	}
	if p, err := l.gw.GetTickerPrice(ctx, l.cfg.Symbol); err == nil && p > 0 {
		return p, nil
	}
	if c, ok := market.Last(candles); ok && c.Close > 0 {
		return c.Close, nil
	}
	return 0, errors.New("no price available")
}

// record writes to the ledger. Ledger failures never undo a trade.
func (l *Loop) record(ctx context.Context, rec journal.TradeRecord) {
	if err := l.ledger.AddTrade(ctx, l.user, rec); err != nil {
		l.log.Error("journal write failed", zap.Error(err), zap.String("order_id", rec.OrderID))
		l.publish(EventError, "journal: "+err.Error(), nil)
	}
}

func (l *Loop) fail(err error) {
	l.log.Error("cycle failed", zap.Error(err))
	l.mu.Lock()
	l.lastError = err.Error()
	l.mu.Unlock()
	l.publish(EventError, err.Error(), nil)
}

func (l *Loop) status(msg string) {
	l.mu.Lock()
	l.lastStatus = msg
	l.mu.Unlock()
	l.publish(EventStatus, msg, nil)
}

func (l *Loop) publish(kind EventKind, msg string, tu *TradeUpdate) {
	l.sink.Publish(Event{
		Kind:    kind,
		Time:    l.now().UTC(),
		Symbol:  l.cfg.Symbol,
		Message: msg,
		Trade:   tu,
	})
}

// Status is a point-in-time view of the loop for status readers.
type Status struct {
	State      string             `json:"state"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Method     string             `json:"method"`
	Cycles     int64              `json:"cycles"`
	LastStatus string             `json:"last_status"`
	LastError  string             `json:"last_error,omitempty"`
	Signal     string             `json:"signal"`
	Reason     string             `json:"reason,omitempty"`
	Details    map[string]float64 `json:"details,omitempty"`
	Position   *position.Position `json:"position,omitempty"`
}

func (l *Loop) Status() Status {
	l.mu.RLock()
	s := Status{
		State:      l.State().String(),
		Symbol:     l.cfg.Symbol,
		Timeframe:  l.cfg.Timeframe,
		Method:     l.cfg.Method,
		Cycles:     l.cycles.Load(),
		LastStatus: l.lastStatus,
		LastError:  l.lastError,
		Signal:     l.lastResult.Open.String(),
		Reason:     l.lastResult.Reason,
		Details:    l.lastResult.Details,
	}
	l.mu.RUnlock()

	if p, ok := l.Position(); ok {
		s.Position = &p
	}
	return s
}

// Package strategies turns a candle window and the current position into an
// open/close decision.
//
// Strategies are stateless: the same candles and position always produce the
// same Result. Anything that must survive between cycles (such as the
// baseline value recorded at entry) travels through position.Position.
package strategies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

// Signal is an open decision.
type Signal int

const (
	None Signal = iota
	Buy
	Sell
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Side returns the position side the signal would open.
func (s Signal) Side() (market.Side, bool) {
	switch s {
	case Buy:
		return market.Long, true
	case Sell:
		return market.Short, true
	default:
		return "", false
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	Open  Signal
	Close bool

	// Snapshot is the indicator value the loop stores with a new position
	// when it acts on Open.
	Snapshot    float64
	HasSnapshot bool

	Price   float64
	Reason  string
	Details map[string]float64
}

// Strategy evaluates one candle window. pos is nil when flat.
type Strategy interface {
	Name() string
	MinCandles() int
	Evaluate(candles []market.Candle, pos *position.Position) Result
}

// Factory builds a strategy with its default parameters.
type Factory func() Strategy

var registry = map[string]Factory{}

// Register makes a strategy available to ByName under each of names.
// Names are matched case-insensitively.
func Register(f Factory, names ...string) {
	for _, n := range names {
		registry[normalize(n)] = f
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ByName returns a new strategy for a registered name.
func ByName(name string) (Strategy, error) {
	f, ok := registry[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

// Names lists the registered names in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register(func() Strategy { return NewBaseline() }, "baseline", "base-line", "Đường Base Line")
	Register(func() Strategy { return NewIchimoku() }, "ichimoku", "Mây Ichimoku")
}

func noSignal(reason string) Result {
	return Result{Reason: reason}
}

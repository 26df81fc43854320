package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

// Feed produces the next candle for a symbol.
type Feed interface {
	Next(symbol string, prev market.Candle, step time.Duration) market.Candle
}

// RandomWalk generates candles whose close moves by up to Volatility
// (fractional) per bar around the previous close.
type RandomWalk struct {
	Start      float64
	Volatility float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomWalk(start, volatility float64, seed int64) *RandomWalk {
	return &RandomWalk{
		Start:      start,
		Volatility: volatility,
		rnd:        rand.New(rand.NewSource(seed)),
	}
}

func (f *RandomWalk) Next(symbol string, prev market.Candle, step time.Duration) market.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()

	open := prev.Close
	ts := prev.OpenTime.Add(step)
	if open == 0 {
		open = f.Start
		ts = time.Now().UTC().Truncate(step)
	}

	ret := (f.rnd.Float64() - 0.5) * 2 * f.Volatility
	cl := open * (1 + ret)
	return market.Candle{
		OpenTime: ts,
		Open:     open,
		High:     math.Max(open, cl) * (1 + f.rnd.Float64()*f.Volatility*0.5),
		Low:      math.Min(open, cl) * (1 - f.rnd.Float64()*f.Volatility*0.5),
		Close:    cl,
		Volume:   10_000 + f.rnd.Float64()*5_000,
	}
}

// StaticFeed replays fixed candles in order and then repeats the last one
// with advancing timestamps.
type StaticFeed struct {
	mu      sync.Mutex
	candles []market.Candle
	next    int
}

func NewStaticFeed(candles []market.Candle) *StaticFeed {
	return &StaticFeed{candles: append([]market.Candle(nil), candles...)}
}

func (f *StaticFeed) Next(symbol string, prev market.Candle, step time.Duration) market.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.candles) == 0 {
		return market.Candle{OpenTime: prev.OpenTime.Add(step), Open: prev.Close,
			High: prev.Close, Low: prev.Close, Close: prev.Close}
	}
	if f.next < len(f.candles) {
		c := f.candles[f.next]
		f.next++
		return c
	}
	c := f.candles[len(f.candles)-1]
	c.OpenTime = prev.OpenTime.Add(step)
	return c
}

// Remaining reports how many scripted candles have not been served.
func (f *StaticFeed) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candles) - f.next
}

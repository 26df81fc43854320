package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/autotrader/indicators"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

// BaselineConfig holds the Baseline strategy parameters.
type BaselineConfig struct {
	FastLength int     `json:"fast-length" yaml:"fast-length"`
	FastPhase  float64 `json:"fast-phase" yaml:"fast-phase"`
	SlowLength int     `json:"slow-length" yaml:"slow-length"`
	SlowPhase  float64 `json:"slow-phase" yaml:"slow-phase"`
	Power      float64 `json:"power" yaml:"power"`
	RSIWindow  int     `json:"rsi-window" yaml:"rsi-window"`

	MaxConvergence float64 `json:"max-convergence" yaml:"max-convergence"` // X, percent
	MaxDistance    float64 `json:"max-distance" yaml:"max-distance"`       // Y, percent
	MaxRSI         float64 `json:"max-rsi" yaml:"max-rsi"`
	MinSlowChange  float64 `json:"min-slow-change" yaml:"min-slow-change"` // percent
	TrendSteps     int     `json:"trend-steps" yaml:"trend-steps"`
}

func BaselineConfigDefaults() BaselineConfig {
	return BaselineConfig{
		FastLength:     75,
		FastPhase:      5,
		SlowLength:     150,
		SlowPhase:      0,
		Power:          2,
		RSIWindow:      indicators.DefaultRSIWindow,
		MaxConvergence: 1.0,
		MaxDistance:    0.5,
		MaxRSI:         55,
		MinSlowChange:  0.15,
		TrendSteps:     5,
	}
}

// Validate rejects parameters Evaluate cannot work with.
func (c BaselineConfig) Validate() error {
	switch {
	case c.FastLength < 1 || c.SlowLength < 1:
		return fmt.Errorf("baseline: fast-length and slow-length must be at least 1")
	case !(c.Power > 0):
		return fmt.Errorf("baseline: power must be positive")
	case c.RSIWindow < 1:
		return fmt.Errorf("baseline: rsi-window must be at least 1")
	case c.TrendSteps < 1:
		return fmt.Errorf("baseline: trend-steps must be at least 1")
	case !(c.MaxConvergence > 0) || !(c.MaxDistance > 0):
		return fmt.Errorf("baseline: max-convergence and max-distance must be positive")
	case !(c.MaxRSI > 0) || c.MaxRSI > 100:
		return fmt.Errorf("baseline: max-rsi must be in (0, 100]")
	case c.MinSlowChange < 0:
		return fmt.Errorf("baseline: min-slow-change must not be negative")
	}
	return nil
}

// Baseline trades pullbacks to a fast smoothed baseline while a slow
// baseline confirms the trend.
//
// Entry requires the two baselines to be close together (X), price to be
// close to the fast baseline (Y), RSI below MaxRSI, the fast baseline to be
// strictly trending over TrendSteps bars and the slow baseline to be moving.
// The previous close must sit on the trend side of the previous fast value,
// and a strong candle in the trade direction must be backed by a prior
// close at least two thirds of its body away from the baseline.
//
// An open position is closed when the previous close crosses the fast
// baseline, or when price crosses the baseline value recorded at entry.
type Baseline struct {
	cfg BaselineConfig
}

func NewBaseline() *Baseline { return NewBaselineWithConfig(BaselineConfigDefaults()) }

func NewBaselineWithConfig(cfg BaselineConfig) *Baseline {
	return &Baseline{cfg: cfg}
}

func (b *Baseline) Name() string { return "baseline" }

// MinCandles is the shortest window Evaluate will analyse.
func (b *Baseline) MinCandles() int {
	n := b.cfg.TrendSteps + 1
	if r := b.cfg.RSIWindow + 2; r > n {
		n = r
	}
	return n
}

func (b *Baseline) Evaluate(candles []market.Candle, pos *position.Position) Result {
	if len(candles) < b.MinCandles() {
		return noSignal(fmt.Sprintf("need %d candles, have %d", b.MinCandles(), len(candles)))
	}

	opens := indicators.Opens(candles)
	closes := indicators.Closes(candles)
	n := len(closes)

	price := closes[n-1]
	prevClose := closes[n-2]
	if price <= 0 {
		return noSignal("non-positive price")
	}

	fast := indicators.SmoothedMA(closes, b.cfg.FastLength, b.cfg.FastPhase, b.cfg.Power)
	slow := indicators.SmoothedMA(closes, b.cfg.SlowLength, b.cfg.SlowPhase, b.cfg.Power)
	rsi := indicators.RSI(closes, b.cfg.RSIWindow)

	steps := b.cfg.TrendSteps
	if steps < 1 || len(fast) < 2 || len(slow) < steps+1 {
		return noSignal("baseline unavailable")
	}

	fastNow := fast[len(fast)-1]
	fastPrev := fast[len(fast)-2]
	slowNow := slow[len(slow)-1]
	slowBack := slow[len(slow)-1-steps]
	rsiNow := rsi[n-1]

	x := math.Abs(fastNow-slowNow) / price * 100
	y := math.Abs(price-fastNow) / price * 100
	slowChange := math.Abs(slowNow-slowBack) / price * 100
	rising := indicators.Increasing(fast, steps)
	falling := indicators.Decreasing(fast, steps)

	body := math.Abs(opens[n-1] - price)
	bullish := price > opens[n-1]
	bearish := price < opens[n-1]

	res := Result{
		Price:       price,
		Snapshot:    fastNow,
		HasSnapshot: true,
		Details: map[string]float64{
			"rsi":         rsiNow,
			"x":           x,
			"y":           y,
			"slow_change": slowChange,
			"fast":        fastNow,
			"slow":        slowNow,
		},
	}

	common := x < b.cfg.MaxConvergence &&
		y < b.cfg.MaxDistance &&
		rsiNow < b.cfg.MaxRSI &&
		slowChange > b.cfg.MinSlowChange

	switch {
	case common && rising && prevClose > fastPrev:
		if !bullish || prevClose-fastPrev > body*2/3 {
			res.Open = Buy
		}
	case common && falling && prevClose < fastPrev:
		if !bearish || fastPrev-prevClose > body*2/3 {
			res.Open = Sell
		}
	}

	if pos != nil {
		switch pos.Side {
		case market.Long:
			res.Close = prevClose < fastPrev || (pos.HasSnapshot && price < pos.EntrySnapshot)
		case market.Short:
			res.Close = prevClose > fastPrev || (pos.HasSnapshot && price > pos.EntrySnapshot)
		}
	}

	res.Reason = fmt.Sprintf("rsi=%.2f x=%.2f%% y=%.2f%% trend=%s slow_change=%.2f%%",
		rsiNow, x, y, trendLabel(rising, falling), slowChange)
	return res
}

func trendLabel(rising, falling bool) string {
	switch {
	case rising:
		return "up"
	case falling:
		return "down"
	default:
		return "sideways"
	}
}

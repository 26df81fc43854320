package strategies

import (
	"fmt"

	"github.com/rustyeddy/autotrader/indicators"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/position"
)

// pnlEpsilon absorbs float rounding at the exact threshold.
const pnlEpsilon = 1e-9

// IchimokuConfig holds the Ichimoku exit thresholds in percent.
type IchimokuConfig struct {
	TakeProfitPct float64 `json:"take-profit-pct" yaml:"take-profit-pct"`
	StopLossPct   float64 `json:"stop-loss-pct" yaml:"stop-loss-pct"`
}

func IchimokuConfigDefaults() IchimokuConfig {
	return IchimokuConfig{TakeProfitPct: 3, StopLossPct: 2}
}

func (c IchimokuConfig) Validate() error {
	if !(c.TakeProfitPct > 0) || !(c.StopLossPct > 0) {
		return fmt.Errorf("ichimoku: take-profit-pct and stop-loss-pct must be positive")
	}
	return nil
}

// Ichimoku enters when price is outside the cloud and the close crosses the
// Kijun-sen in the direction of a Tenkan/Kijun cross. It exits on a Kijun
// cross against the position or on fixed profit/loss thresholds.
type Ichimoku struct {
	cfg IchimokuConfig
}

func NewIchimoku() *Ichimoku { return NewIchimokuWithConfig(IchimokuConfigDefaults()) }

func NewIchimokuWithConfig(cfg IchimokuConfig) *Ichimoku {
	return &Ichimoku{cfg: cfg}
}

func (s *Ichimoku) Name() string { return "ichimoku" }

// MinCandles is two bars, the minimum for a cross. Lines stay unavailable
// until SpanBPeriod bars exist and no entry fires before then.
func (s *Ichimoku) MinCandles() int { return 2 }

func (s *Ichimoku) Evaluate(candles []market.Candle, pos *position.Position) Result {
	if len(candles) < s.MinCandles() {
		return noSignal(fmt.Sprintf("need %d candles, have %d", s.MinCandles(), len(candles)))
	}

	highs := indicators.Highs(candles)
	lows := indicators.Lows(candles)
	n := len(candles)
	price := candles[n-1].Close
	prevClose := candles[n-2].Close

	now := indicators.Ichimoku(highs, lows, n-1)
	prev := indicators.Ichimoku(highs, lows, n-2)

	res := Result{
		Price: price,
		Details: map[string]float64{
			"tenkan": now.Tenkan,
			"kijun":  now.Kijun,
			"span_a": now.SpanA,
			"span_b": now.SpanB,
		},
		Reason: fmt.Sprintf("tenkan=%.2f kijun=%.2f span_a=%.2f span_b=%.2f",
			now.Tenkan, now.Kijun, now.SpanA, now.SpanB),
	}

	crossReady := now.Available() && prev.Kijun != 0
	if crossReady {
		switch {
		case price > now.SpanA && price > now.SpanB &&
			now.Tenkan > now.Kijun && prevClose <= prev.Kijun:
			res.Open = Buy
		case price < now.SpanA && price < now.SpanB &&
			now.Tenkan < now.Kijun && prevClose >= prev.Kijun:
			res.Open = Sell
		}
	}

	if pos == nil {
		return res
	}

	if pnl := pos.PnLPercent(price); pos.EntryPrice > 0 {
		res.Details["pnl_pct"] = pnl
		if pnl >= s.cfg.TakeProfitPct-pnlEpsilon || pnl <= -s.cfg.StopLossPct+pnlEpsilon {
			res.Close = true
			res.Reason = fmt.Sprintf("pnl %.2f%% outside [-%.2f%%, +%.2f%%]", pnl, s.cfg.StopLossPct, s.cfg.TakeProfitPct)
			return res
		}
	}

	if now.Kijun != 0 && prev.Kijun != 0 {
		switch pos.Side {
		case market.Long:
			res.Close = price < now.Kijun && prevClose >= prev.Kijun
		case market.Short:
			res.Close = price > now.Kijun && prevClose <= prev.Kijun
		}
	}
	return res
}

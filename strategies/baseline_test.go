package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/market/markettest"
	"github.com/rustyeddy/autotrader/position"
)

func TestBaselineOpensLongOnReversal(t *testing.T) {
	candles := markettest.BaselineLong()
	require.Len(t, candles, 200)

	res := NewBaseline().Evaluate(candles, nil)

	assert.Equal(t, Buy, res.Open)
	assert.Equal(t, "BUY", res.Open.String())
	assert.False(t, res.Close)
	assert.True(t, res.HasSnapshot)
	assert.Greater(t, res.Snapshot, 0.0)
	assert.Less(t, res.Details["rsi"], 55.0)
	assert.Less(t, res.Details["x"], 1.0)
	assert.Less(t, res.Details["y"], 0.5)
	assert.Greater(t, res.Details["slow_change"], 0.15)
}

func TestBaselineOpensShortOnDecline(t *testing.T) {
	candles := markettest.Doji(markettest.Reversal(200, 0.002, -0.002, 0)...)

	res := NewBaseline().Evaluate(candles, nil)

	assert.Equal(t, Sell, res.Open)
	assert.False(t, res.Close)
}

func TestBaselineBullishCandleFilter(t *testing.T) {
	candles := markettest.BaselineLong()
	last := &candles[len(candles)-1]
	last.Open = last.Close - 0.5

	res := NewBaseline().Evaluate(candles, nil)
	assert.Equal(t, None, res.Open)
}

func TestBaselineNoSignalOnFlatMarket(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100
	}
	res := NewBaseline().Evaluate(markettest.Doji(closes...), nil)
	assert.Equal(t, None, res.Open)
	assert.Contains(t, res.Reason, "sideways")
}

func TestBaselineShortHistory(t *testing.T) {
	b := NewBaseline()
	res := b.Evaluate(markettest.Doji(1, 2, 3), nil)
	assert.Equal(t, None, res.Open)
	assert.False(t, res.Close)
	assert.Contains(t, res.Reason, "need")
	assert.Equal(t, 16, b.MinCandles())
}

func TestBaselineClose(t *testing.T) {
	// Prices fall into 100.01, so the previous close sits below the
	// previous fast baseline.
	falling := markettest.Doji(markettest.Scale(markettest.Reversal(200, 0.002, -0.002, 0), 100.01)...)
	rising := markettest.BaselineLong()
	risingPrice := rising[len(rising)-1].Close

	tests := []struct {
		name    string
		candles []market.Candle
		pos     *position.Position
		want    bool
	}{
		{
			name:    "long closes when previous close drops under baseline",
			candles: falling,
			pos:     &position.Position{Side: market.Long, EntryPrice: 100},
			want:    true,
		},
		{
			name:    "short holds while price stays under baseline",
			candles: falling,
			pos:     &position.Position{Side: market.Short, EntryPrice: 100},
			want:    false,
		},
		{
			name:    "long holds in uptrend without snapshot",
			candles: rising,
			pos:     &position.Position{Side: market.Long, EntryPrice: 60},
			want:    false,
		},
		{
			name:    "long closes below entry snapshot",
			candles: rising,
			pos: &position.Position{Side: market.Long, EntryPrice: 60,
				EntrySnapshot: risingPrice + 1, HasSnapshot: true},
			want: true,
		},
		{
			name:    "short closes when previous close is above baseline",
			candles: rising,
			pos:     &position.Position{Side: market.Short, EntryPrice: 60},
			want:    true,
		},
		{
			name:    "no position never closes",
			candles: falling,
			pos:     nil,
			want:    false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res := NewBaseline().Evaluate(tt.candles, tt.pos)
			assert.Equal(t, tt.want, res.Close)
		})
	}
}

func TestBaselineDoesNotModifyCandles(t *testing.T) {
	candles := markettest.BaselineLong()
	cp := append([]market.Candle(nil), candles...)
	NewBaseline().Evaluate(candles, nil)
	assert.Equal(t, cp, candles)
}

func TestBaselineNegativeTrendSteps(t *testing.T) {
	cfg := BaselineConfigDefaults()
	cfg.TrendSteps = -3

	var res Result
	require.NotPanics(t, func() {
		res = NewBaselineWithConfig(cfg).Evaluate(markettest.BaselineLong(), nil)
	})
	assert.Equal(t, None, res.Open)
	assert.Equal(t, "baseline unavailable", res.Reason)
}

func TestBaselineConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BaselineConfig)
		errMsg string
	}{
		{"defaults", func(*BaselineConfig) {}, ""},
		{"zero phase", func(c *BaselineConfig) { c.FastPhase = 0 }, ""},
		{"zero fast length", func(c *BaselineConfig) { c.FastLength = 0 }, "fast-length"},
		{"negative slow length", func(c *BaselineConfig) { c.SlowLength = -1 }, "slow-length"},
		{"zero power", func(c *BaselineConfig) { c.Power = 0 }, "power"},
		{"zero rsi window", func(c *BaselineConfig) { c.RSIWindow = 0 }, "rsi-window"},
		{"negative trend steps", func(c *BaselineConfig) { c.TrendSteps = -3 }, "trend-steps"},
		{"zero convergence", func(c *BaselineConfig) { c.MaxConvergence = 0 }, "max-convergence"},
		{"zero distance", func(c *BaselineConfig) { c.MaxDistance = 0 }, "max-distance"},
		{"rsi above 100", func(c *BaselineConfig) { c.MaxRSI = 120 }, "max-rsi"},
		{"negative slow change", func(c *BaselineConfig) { c.MinSlowChange = -0.1 }, "min-slow-change"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := BaselineConfigDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

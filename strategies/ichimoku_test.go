package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/market/markettest"
	"github.com/rustyeddy/autotrader/position"
)

// bullishCross: price breaks above the cloud while the previous close sat
// on the previous Kijun.
func bullishCross() []market.Candle {
	var c []market.Candle
	c = markettest.Bar(c, 34, 105, 106, 104)
	c = markettest.Bar(c, 17, 95, 96, 94)
	c = markettest.Bar(c, 8, 99.5, 100.5, 98.5)
	c = markettest.Bar(c, 1, 110, 111, 109)
	return c
}

func bearishCross() []market.Candle {
	var c []market.Candle
	c = markettest.Bar(c, 34, 95, 96, 94)
	c = markettest.Bar(c, 17, 105, 106, 104)
	c = markettest.Bar(c, 8, 100.5, 101.5, 99.5)
	c = markettest.Bar(c, 1, 90, 91, 89)
	return c
}

func flatThen(last, high, low float64) []market.Candle {
	var c []market.Candle
	c = markettest.Bar(c, 59, 100, 100.5, 99.5)
	return markettest.Bar(c, 1, last, high, low)
}

func TestIchimokuOpen(t *testing.T) {
	s := NewIchimoku()

	res := s.Evaluate(bullishCross(), nil)
	assert.Equal(t, Buy, res.Open)
	assert.InDelta(t, 104.75, res.Details["tenkan"], 1e-9)
	assert.InDelta(t, 102.5, res.Details["kijun"], 1e-9)

	res = s.Evaluate(bearishCross(), nil)
	assert.Equal(t, Sell, res.Open)
}

func TestIchimokuNeedsFullHistory(t *testing.T) {
	c := bullishCross()[20:]
	res := NewIchimoku().Evaluate(c, nil)
	assert.Equal(t, None, res.Open)
	assert.Zero(t, res.Details["span_b"])

	res = NewIchimoku().Evaluate(c[:1], nil)
	assert.Equal(t, None, res.Open)
	assert.Contains(t, res.Reason, "need")
}

func TestIchimokuClose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		candles []market.Candle
		pos     position.Position
		want    bool
	}{
		{"take profit", flatThen(103, 103.2, 102.8), position.Position{Side: market.Long, EntryPrice: 100}, true},
		{"stop loss", flatThen(98, 98.2, 97.8), position.Position{Side: market.Long, EntryPrice: 100}, true},
		{"short take profit", flatThen(97, 97.2, 96.8), position.Position{Side: market.Short, EntryPrice: 100}, true},
		{"inside thresholds", flatThen(101, 102, 100), position.Position{Side: market.Long, EntryPrice: 100}, false},
		{"long kijun cross", flatThen(99, 99.6, 98.9), position.Position{Side: market.Long, EntryPrice: 100}, true},
		{"short kijun cross", flatThen(101, 101.1, 100.4), position.Position{Side: market.Short, EntryPrice: 100}, true},
		{"short kijun cross up", flatThen(110, 110.2, 109.8), position.Position{Side: market.Short}, true},
		{"long holds above kijun", flatThen(110, 110.2, 109.8), position.Position{Side: market.Long}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pos := tt.pos
			res := NewIchimoku().Evaluate(tt.candles, &pos)
			assert.Equal(t, tt.want, res.Close)
		})
	}
}

func TestIchimokuTakeProfitIgnoresLines(t *testing.T) {
	// Strong uptrend: tenkan above kijun and price far above both.
	c := markettest.Doji(markettest.Reversal(80, -0.001, 0.001, 0)...)
	last := c[len(c)-1].Close
	pos := &position.Position{Side: market.Long, EntryPrice: last / 1.05}

	res := NewIchimoku().Evaluate(c, pos)
	assert.True(t, res.Close)
}

func TestIchimokuConfigValidate(t *testing.T) {
	assert.NoError(t, IchimokuConfigDefaults().Validate())
	assert.Error(t, IchimokuConfig{TakeProfitPct: 4}.Validate())
	assert.Error(t, IchimokuConfig{StopLossPct: 2, TakeProfitPct: -1}.Validate())
}

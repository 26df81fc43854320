package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tf   string
		want time.Duration
	}{
		{"1m", 30 * time.Second},
		{"5m", 60 * time.Second},
		{"15m", 120 * time.Second},
		{"30m", 120 * time.Second},
		{"1h", 300 * time.Second},
		{"4h", 300 * time.Second},
		{"bogus", 300 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.tf, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PollInterval(tt.tf))
		})
	}
}

func TestIntervalDuration(t *testing.T) {
	d, err := IntervalDuration("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = IntervalDuration("M15")
	assert.Error(t, err)
	assert.False(t, ValidInterval("M15"))
	assert.True(t, ValidInterval("1d"))
}

func TestSideHelpers(t *testing.T) {
	assert.Equal(t, Buy, Long.OpenSide())
	assert.Equal(t, Sell, Long.CloseSide())
	assert.Equal(t, Sell, Short.OpenSide())
	assert.Equal(t, Buy, Short.CloseSide())
	assert.Equal(t, Short, SideOf(Sell))
	assert.Equal(t, Long, SideOf(Buy))

	s, ok := SideFromAmount(-0.5)
	assert.True(t, ok)
	assert.Equal(t, Short, s)

	_, ok = SideFromAmount(0)
	assert.False(t, ok)

	s, err := ParseSide(" buy ")
	require.NoError(t, err)
	assert.Equal(t, Long, s)

	_, err = ParseSide("flat")
	assert.Error(t, err)
}

func TestCandleBody(t *testing.T) {
	c := Candle{Open: 10, Close: 12}
	assert.True(t, c.Bullish())
	assert.InDelta(t, 2.0, c.Body(), 1e-12)

	c = Candle{Open: 12, Close: 9}
	assert.True(t, c.Bearish())
	assert.InDelta(t, 3.0, c.Body(), 1e-12)

	_, ok := Last(nil)
	assert.False(t, ok)
}

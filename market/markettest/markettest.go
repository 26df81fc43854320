// Package markettest builds synthetic candle series for tests.
package markettest

import (
	"time"

	"github.com/rustyeddy/autotrader/market"
)

// Start is the open time of the first synthetic candle.
var Start = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// Doji returns one-minute candles with open equal to close and a 0.1% range
// around each close.
func Doji(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime: Start.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
			Volume:   1,
		}
	}
	return out
}

// Bar appends count identical candles with the given close and range.
func Bar(dst []market.Candle, count int, closePrice, high, low float64) []market.Candle {
	for i := 0; i < count; i++ {
		dst = append(dst, market.Candle{
			OpenTime: Start.Add(time.Duration(len(dst)) * time.Minute),
			Open:     closePrice,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   1,
		})
	}
	return dst
}

// Reversal returns n closes starting at 100 that fall by down per bar and
// then rise by up per bar for the last k bars. Negative rates invert the
// direction.
func Reversal(n int, down, up float64, k int) []float64 {
	out := make([]float64, n)
	p := 100.0
	for i := 0; i < n; i++ {
		if i < n-k {
			p *= 1 - down
		} else {
			p *= 1 + up
		}
		out[i] = p
	}
	return out
}

// BaselineLong is a 200 candle window where a long decline turns into a
// steady seven bar rise. The last bar satisfies every Baseline long entry
// condition.
func BaselineLong() []market.Candle {
	return Doji(Reversal(200, 0.002, 0.0015, 7)...)
}

// Scale multiplies every close so the last one equals last.
func Scale(closes []float64, last float64) []float64 {
	f := last / closes[len(closes)-1]
	out := make([]float64, len(closes))
	for i, c := range closes {
		out[i] = c * f
	}
	return out
}

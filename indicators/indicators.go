// Package indicators provides technical analysis indicators over price series.
//
// Every function is pure: it reads the input slices, never modifies them and
// returns freshly allocated output, so the same window always produces the
// same values in live trading, paper trading and tests.
package indicators

import "github.com/rustyeddy/autotrader/market"

// Closes extracts closing prices, oldest first.
func Closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Opens extracts opening prices, oldest first.
func Opens(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Open
	}
	return out
}

// Highs extracts bar highs, oldest first.
func Highs(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts bar lows, oldest first.
func Lows(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Increasing reports whether the last steps+1 points of series are strictly
// increasing. Short series are never increasing.
func Increasing(series []float64, steps int) bool {
	if steps <= 0 || len(series) < steps+1 {
		return false
	}
	start := len(series) - steps - 1
	for i := start; i < len(series)-1; i++ {
		if !(series[i] < series[i+1]) {
			return false
		}
	}
	return true
}

// Decreasing reports whether the last steps+1 points of series are strictly
// decreasing.
func Decreasing(series []float64, steps int) bool {
	if steps <= 0 || len(series) < steps+1 {
		return false
	}
	start := len(series) - steps - 1
	for i := start; i < len(series)-1; i++ {
		if !(series[i] > series[i+1]) {
			return false
		}
	}
	return true
}

// At returns series[len+idx] for negative idx (Python style) or series[idx].
// ok is false when the index falls outside the series.
func At(series []float64, idx int) (v float64, ok bool) {
	if idx < 0 {
		idx = len(series) + idx
	}
	if idx < 0 || idx >= len(series) {
		return 0, false
	}
	return series[idx], true
}

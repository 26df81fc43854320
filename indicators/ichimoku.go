package indicators

// Ichimoku lookbacks.
const (
	TenkanPeriod = 9
	KijunPeriod  = 26
	SpanBPeriod  = 52
)

// IchimokuValues holds the Ichimoku lines for a single bar.
// A zero line means there was not enough history to compute it.
type IchimokuValues struct {
	Tenkan float64
	Kijun  float64
	SpanA  float64
	SpanB  float64
}

// Available reports whether every line could be computed.
func (v IchimokuValues) Available() bool {
	return v.Tenkan != 0 && v.Kijun != 0 && v.SpanA != 0 && v.SpanB != 0
}

// Ichimoku computes the lines ending at bar index at (inclusive). Negative
// indexes count from the end, so -1 is the latest bar.
//
// Senkou spans are reported at the bar they are computed for, without the
// usual 26 bar forward displacement.
func Ichimoku(highs, lows []float64, at int) IchimokuValues {
	n := len(highs)
	if len(lows) < n {
		n = len(lows)
	}
	if at < 0 {
		at = n + at
	}
	if at < 0 || at >= n {
		return IchimokuValues{}
	}

	v := IchimokuValues{
		Tenkan: midpoint(highs, lows, at, TenkanPeriod),
		Kijun:  midpoint(highs, lows, at, KijunPeriod),
		SpanB:  midpoint(highs, lows, at, SpanBPeriod),
	}
	if v.Tenkan != 0 && v.Kijun != 0 {
		v.SpanA = (v.Tenkan + v.Kijun) / 2
	}
	return v
}

// midpoint is (highest high + lowest low) / 2 over period bars ending at end.
func midpoint(highs, lows []float64, end, period int) float64 {
	if end+1 < period {
		return 0
	}
	hi := highs[end]
	lo := lows[end]
	for i := end - period + 1; i <= end; i++ {
		if highs[i] > hi {
			hi = highs[i]
		}
		if lows[i] < lo {
			lo = lows[i]
		}
	}
	return (hi + lo) / 2
}

package indicators

// DefaultRSIWindow is the classic Wilder lookback.
const DefaultRSIWindow = 14

const (
	rsiPlaceholder = 50.0
	rsiLossEpsilon = 0.001
)

// RSI computes the Relative Strength Index of prices.
//
// The first average gain/loss is the simple mean of the first window deltas
// and sits at index window; later points use Wilder smoothing
//
//	avg[i] = (avg[i-1]*(window-1) + delta[i-1]) / window
//
// A zero average loss is replaced by 0.001. Entries before index window, or
// the whole series when there is not enough history, hold 50.
// Output values are always within [0, 100].
func RSI(prices []float64, window int) []float64 {
	out := make([]float64, len(prices))
	for i := range out {
		out[i] = rsiPlaceholder
	}
	if window <= 0 || len(prices)-1 < window {
		return out
	}

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}

	w := float64(window)
	var avgGain, avgLoss float64
	for i := 0; i < window; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= w
	avgLoss /= w
	out[window] = rsiValue(avgGain, avgLoss)

	for i := window + 1; i < len(prices); i++ {
		avgGain = (avgGain*(w-1) + gains[i-1]) / w
		avgLoss = (avgLoss*(w-1) + losses[i-1]) / w
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		avgLoss = rsiLossEpsilon
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

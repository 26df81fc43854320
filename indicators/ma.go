package indicators

import (
	"fmt"
	"math"
)

// SMA calculates the trailing Simple Moving Average of data.
//
// Only full windows are returned, so the result has len(data)-window+1
// entries and result[0] is the mean of data[0:window].
func SMA(data []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	if len(data) < window {
		return nil, fmt.Errorf("not enough data: need %d, got %d", window, len(data))
	}

	out := make([]float64, 0, len(data)-window+1)
	sum := 0.0
	for i, v := range data {
		sum += v
		if i >= window {
			sum -= data[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out, nil
}

// SmoothingAlpha returns the decay factor used by SmoothedMA:
//
//	beta  = 0.45(length-1) / (0.45(length-1) + 2)
//	alpha = beta^power
func SmoothingAlpha(length int, power float64) float64 {
	l := 0.45 * float64(length-1)
	return math.Pow(l/(l+2), power)
}

// SmoothedMA is an exponential approximation of an adaptive (Jurik style)
// moving average.
//
// The output is seeded with data[0] and then follows
//
//	out[i] = alpha*data[i] + (1-alpha)*out[i-1]
//
// A non-zero phase blends the result back with the raw series using
// ratio = phase/100 + 0.5. When the recurrence cannot be computed the
// function falls back to a simple moving average over min(length, len(data)).
//
// Note that alpha grows with length: a long length tracks the raw series
// closely while length 1 freezes the output at data[0].
func SmoothedMA(data []float64, length int, phase, power float64) []float64 {
	if len(data) == 0 {
		return []float64{}
	}

	alpha := SmoothingAlpha(length, power)
	if length < 1 || math.IsNaN(alpha) || math.IsInf(alpha, 0) || alpha < 0 || alpha > 1 {
		return smaFallback(data, length)
	}

	out := make([]float64, len(data))
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = alpha*data[i] + (1-alpha)*out[i-1]
	}

	if phase != 0 {
		ratio := phase/100 + 0.5
		for i := range out {
			out[i] = ratio*out[i] + (1-ratio)*data[i]
		}
	}
	return out
}

func smaFallback(data []float64, length int) []float64 {
	n := length
	if n > len(data) {
		n = len(data)
	}
	if n < 1 {
		n = 1
	}
	out, err := SMA(data, n)
	if err != nil {
		return []float64{}
	}
	return out
}

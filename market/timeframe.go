package market

import (
	"fmt"
	"time"
)

// Binance kline intervals.
var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ValidInterval reports whether tf is a kline interval the exchange accepts.
func ValidInterval(tf string) bool {
	_, ok := intervals[tf]
	return ok
}

// IntervalDuration returns the bar length of a kline interval.
func IntervalDuration(tf string) (time.Duration, error) {
	d, ok := intervals[tf]
	if !ok {
		return 0, fmt.Errorf("unsupported interval: %s", tf)
	}
	return d, nil
}

// PollInterval is how long the trading loop waits between analysis cycles
// for a given timeframe.
func PollInterval(tf string) time.Duration {
	switch tf {
	case "1m":
		return 30 * time.Second
	case "5m":
		return 60 * time.Second
	case "15m", "30m":
		return 120 * time.Second
	default:
		return 300 * time.Second
	}
}

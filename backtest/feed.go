package backtest

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rustyeddy/autotrader/market"
)

var csvHeader = []string{"time", "open", "high", "low", "close", "volume"}

// ReadCandles parses candle CSV rows:
//
//	time,open,high,low,close,volume
//
// time is RFC3339 or Unix milliseconds. A header row and blank rows are
// skipped. Rows outside [from, to) are dropped when the bounds are set.
func ReadCandles(r io.Reader, from, to time.Time) ([]market.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []market.Candle
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}

		c, err := parseCandleRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if inRange(c.OpenTime, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func parseCandleRow(row []string) (market.Candle, error) {
	if len(row) < 5 {
		return market.Candle{}, errors.Errorf("want at least 5 fields, got %d", len(row))
	}
	t, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Candle{}, err
	}

	vals := make([]float64, 5)
	for i := 1; i < len(row) && i <= 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return market.Candle{}, errors.Wrapf(err, "bad %s %q", csvHeader[i], row[i])
		}
		vals[i-1] = v
	}
	return market.Candle{
		OpenTime: t,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Errorf("bad time %q", s)
	}
	return t.UTC(), nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// WriteCandles writes candles in the format ReadCandles accepts.
func WriteCandles(w io.Writer, candles []market.Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	for _, c := range candles {
		err := cw.Write([]string{
			c.OpenTime.UTC().Format(time.RFC3339),
			f(c.Open), f(c.High), f(c.Low), f(c.Close), f(c.Volume),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

package journal

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rustyeddy/autotrader/market"
)

var csvHeader = []string{
	"id", "username", "symbol", "side", "price", "quantity", "amount", "leverage",
	"order_id", "entry_time", "exit_time", "exit_price", "pnl", "status", "note",
}

// CSV appends trades to a single file. Existing files are reused and the
// header is written only once.
type CSV struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

func NewCSV(path string) (*CSV, error) {
	if path == "" {
		return nil, errors.New("csv journal: path is required")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return &CSV{path: path, f: f, w: w}, nil
}

func (j *CSV) AddTrade(ctx context.Context, user string, rec TradeRecord) error {
	rec, err := prepare(user, rec)
	if err != nil {
		return err
	}

	exit := ""
	if !rec.ExitTime.IsZero() {
		exit = rec.ExitTime.Format(time.RFC3339Nano)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	err = j.w.Write([]string{
		rec.ID,
		rec.Username,
		rec.Symbol,
		string(rec.Side),
		ff(rec.Price),
		ff(rec.Quantity),
		ff(rec.Amount),
		strconv.Itoa(rec.Leverage),
		rec.OrderID,
		rec.EntryTime.Format(time.RFC3339Nano),
		exit,
		ff(rec.ExitPrice),
		ff(rec.PnL),
		rec.Status,
		rec.Note,
	})
	if err != nil {
		return errors.Wrap(err, "write trade")
	}
	j.w.Flush()
	return errors.Wrap(j.w.Error(), "flush trades")
}

// ListTrades reads the whole file back, newest entry first.
func (j *CSV) ListTrades(ctx context.Context, f Filter) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rf, err := os.Open(j.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", j.path)
	}
	defer rf.Close()

	r := csv.NewReader(rf)
	r.FieldsPerRecord = len(csvHeader)
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read header")
	}

	var out []TradeRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read trade")
		}
		rec, err := parseCSVRow(row)
		if err != nil {
			return nil, err
		}
		if f.matches(rec) {
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].EntryTime.After(out[b].EntryTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return err
	}
	return j.f.Close()
}

func parseCSVRow(row []string) (TradeRecord, error) {
	rec := TradeRecord{
		ID:       row[0],
		Username: row[1],
		Symbol:   row[2],
		Side:     market.OrderSide(row[3]),
		OrderID:  row[8],
		Status:   row[13],
		Note:     row[14],
	}
	floats := []struct {
		dst *float64
		raw string
	}{
		{&rec.Price, row[4]}, {&rec.Quantity, row[5]}, {&rec.Amount, row[6]},
		{&rec.ExitPrice, row[11]}, {&rec.PnL, row[12]},
	}
	for _, fl := range floats {
		v, err := strconv.ParseFloat(fl.raw, 64)
		if err != nil {
			return rec, errors.Wrapf(err, "trade %s", rec.ID)
		}
		*fl.dst = v
	}

	lev, err := strconv.Atoi(row[7])
	if err != nil {
		return rec, errors.Wrapf(err, "trade %s leverage", rec.ID)
	}
	rec.Leverage = lev

	if rec.EntryTime, err = time.Parse(time.RFC3339Nano, row[9]); err != nil {
		return rec, errors.Wrapf(err, "trade %s entry time", rec.ID)
	}
	if row[10] != "" {
		if rec.ExitTime, err = time.Parse(time.RFC3339Nano, row[10]); err != nil {
			return rec, errors.Wrapf(err, "trade %s exit time", rec.ID)
		}
	}
	return rec, nil
}

func ff(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

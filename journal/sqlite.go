package journal

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/rustyeddy/autotrader/market"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite journal: path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	if _, err := db.Exec(SQLiteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create sqlite schema")
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) AddTrade(ctx context.Context, user string, rec TradeRecord) error {
	rec, err := prepare(user, rec)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Username, rec.Symbol, string(rec.Side), rec.Price, rec.Quantity,
		rec.Amount, rec.Leverage, rec.OrderID, rec.EntryTime, nullTime(rec.ExitTime),
		rec.ExitPrice, rec.PnL, rec.Status, rec.Note,
	)
	return errors.Wrap(err, "insert trade")
}

// ListTrades returns matching trades, newest entry first.
func (j *SQLite) ListTrades(ctx context.Context, f Filter) ([]TradeRecord, error) {
	q, args := buildListQuery(f, func(int) string { return "?" })
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list trades")
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "list trades")
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// buildListQuery renders the SELECT for f. ph returns the placeholder for
// the n-th (1-based) argument.
func buildListQuery(f Filter, ph func(int) string) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, col+" = "+ph(len(args)))
	}
	if f.Username != "" {
		add("username", f.Username)
	}
	if f.Symbol != "" {
		add("symbol", f.Symbol)
	}
	if f.Status != "" {
		add("status", f.Status)
	}

	q := "SELECT " + tradeColumns + " FROM trades"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY entry_time DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT " + ph(len(args))
	}
	return q, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (TradeRecord, error) {
	var (
		rec  TradeRecord
		side string
		exit sql.NullTime
	)
	err := r.Scan(&rec.ID, &rec.Username, &rec.Symbol, &side, &rec.Price, &rec.Quantity,
		&rec.Amount, &rec.Leverage, &rec.OrderID, &rec.EntryTime, &exit,
		&rec.ExitPrice, &rec.PnL, &rec.Status, &rec.Note)
	if err != nil {
		return TradeRecord{}, errors.Wrap(err, "scan trade")
	}
	rec.Side = market.OrderSide(side)
	rec.EntryTime = rec.EntryTime.UTC()
	if exit.Valid {
		rec.ExitTime = exit.Time.UTC()
	}
	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

package journal

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Postgres stores trades in a shared database so several traders can
// write to one ledger.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres journal: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create postgres schema")
	}
	return &Postgres{pool: pool}, nil
}

func (j *Postgres) AddTrade(ctx context.Context, user string, rec TradeRecord) error {
	rec, err := prepare(user, rec)
	if err != nil {
		return err
	}
	_, err = j.pool.Exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.Username, rec.Symbol, string(rec.Side), rec.Price, rec.Quantity,
		rec.Amount, rec.Leverage, rec.OrderID, rec.EntryTime, nullTime(rec.ExitTime),
		rec.ExitPrice, rec.PnL, rec.Status, rec.Note,
	)
	return errors.Wrap(err, "insert trade")
}

func (j *Postgres) ListTrades(ctx context.Context, f Filter) ([]TradeRecord, error) {
	q, args := buildListQuery(f, func(n int) string { return "$" + strconv.Itoa(n) })
	rows, err := j.pool.Query(ctx, q, args...)
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

func (j *Postgres) Close() error {
	j.pool.Close()
	return nil
}

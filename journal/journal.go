// Package journal records executed trades.
//
// The trading loop only writes (Ledger). Readers such as the CLI use
// Reader. Backends: SQLite, Postgres and an append-only CSV file.
package journal

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/rustyeddy/autotrader/market"
)

const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// TradeRecord is one ledger row. An open writes a row with StatusOpen; a
// close writes a second row with StatusClosed, the exit fields and P/L.
type TradeRecord struct {
	ID        string
	Username  string
	Symbol    string
	Side      market.OrderSide
	Price     float64
	Quantity  float64
	Amount    float64 // quote currency committed
	Leverage  int
	OrderID   string
	EntryTime time.Time
	ExitTime  time.Time // zero while open
	ExitPrice float64
	PnL       float64
	Status    string
	Note      string
}

type Ledger interface {
	AddTrade(ctx context.Context, user string, rec TradeRecord) error
}

// Filter narrows ListTrades. Zero values match everything.
type Filter struct {
	Username string
	Symbol   string
	Status   string
	Limit    int
}

type Reader interface {
	ListTrades(ctx context.Context, f Filter) ([]TradeRecord, error)
}

type Store interface {
	Ledger
	Reader
	io.Closer
}

// Config selects and configures a backend.
type Config struct {
	Type string `yaml:"type" json:"type"` // none, csv, sqlite, postgres
	Path string `yaml:"path" json:"path"` // csv and sqlite
	DSN  string `yaml:"dsn" json:"dsn"`   // postgres
}

// Open returns the backend named by cfg.Type.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return Nop{}, nil
	case "csv":
		return NewCSV(cfg.Path)
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, errors.Errorf("unknown journal type %q", cfg.Type)
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) AddTrade(context.Context, string, TradeRecord) error { return nil }

func (Nop) ListTrades(context.Context, Filter) ([]TradeRecord, error) { return nil, nil }

func (Nop) Close() error { return nil }

// prepare fills defaults shared by every backend.
func prepare(user string, rec TradeRecord) (TradeRecord, error) {
	if rec.Symbol == "" {
		return rec, errors.New("trade record: symbol is required")
	}
	if rec.ID == "" {
		rec.ID = newID(rec.EntryTime)
	}
	rec.Username = user
	if rec.Status == "" {
		rec.Status = StatusOpen
	}
	if rec.EntryTime.IsZero() {
		rec.EntryTime = time.Now()
	}
	rec.EntryTime = rec.EntryTime.UTC()
	if !rec.ExitTime.IsZero() {
		rec.ExitTime = rec.ExitTime.UTC()
	}
	return rec, nil
}

// matches applies f in memory for backends without a query engine.
func (f Filter) matches(r TradeRecord) bool {
	return (f.Username == "" || f.Username == r.Username) &&
		(f.Symbol == "" || f.Symbol == r.Symbol) &&
		(f.Status == "" || f.Status == r.Status)
}

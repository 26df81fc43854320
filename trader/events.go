package trader

import (
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

type EventKind string

const (
	EventStatus EventKind = "status"
	EventError  EventKind = "error"
	EventTrade  EventKind = "trade"
)

const (
	ActionOpen  = "OPEN"
	ActionClose = "CLOSE"
)

// TradeUpdate describes an order the loop placed.
type TradeUpdate struct {
	Action    string           `json:"action"`
	Side      market.OrderSide `json:"side"`
	Symbol    string           `json:"symbol"`
	Quantity  float64          `json:"quantity"`
	Leverage  int              `json:"leverage"`
	Price     float64          `json:"price"`
	Timestamp time.Time        `json:"timestamp"`
	OrderID   string           `json:"order_id"`
	Source    string           `json:"source"`
	PnL       float64          `json:"pnl,omitempty"`
}

// Event is published by the loop. Trade is set only for EventTrade.
type Event struct {
	Kind    EventKind    `json:"kind"`
	Time    time.Time    `json:"time"`
	Symbol  string       `json:"symbol"`
	Message string       `json:"message"`
	Trade   *TradeUpdate `json:"trade,omitempty"`
}

// Sink receives loop events. Publish is called from the loop goroutine and
// must not block for long.
type Sink interface {
	Publish(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// Recorder keeps the most recent events in a ring.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 100
	}
	return &Recorder{events: make([]Event, size)}
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Recent returns up to limit events, oldest first. limit <= 0 returns all.
func (r *Recorder) Recent(limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Event
	if r.full {
		out = append(out, r.events[r.next:]...)
	}
	out = append(out, r.events[:r.next]...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

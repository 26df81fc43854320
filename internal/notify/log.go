// Package notify forwards trading loop events to operators.
package notify

import (
	"go.uber.org/zap"

	"github.com/rustyeddy/autotrader/trader"
)

// LogSink mirrors events into the structured log.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("events")}
}

func (s *LogSink) Publish(e trader.Event) {
	fields := []zap.Field{zap.String("symbol", e.Symbol)}
	if tu := e.Trade; tu != nil {
		fields = append(fields,
			zap.String("action", tu.Action),
			zap.String("side", string(tu.Side)),
			zap.Float64("qty", tu.Quantity),
			zap.Float64("price", tu.Price),
			zap.Int("leverage", tu.Leverage),
			zap.String("order_id", tu.OrderID),
			zap.String("source", tu.Source),
		)
		if tu.Action == trader.ActionClose {
			fields = append(fields, zap.Float64("pnl", tu.PnL))
		}
	}

	switch e.Kind {
	case trader.EventError:
		s.log.Warn(e.Message, fields...)
	case trader.EventTrade:
		s.log.Info(e.Message, fields...)
	default:
		s.log.Debug(e.Message, fields...)
	}
}

package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rustyeddy/autotrader/trader"
)

const defaultQueue = 64

// Sender is the part of the bot API the sink uses.
type Sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram sends trade and error events to one chat. Publish never blocks
// the trading loop: messages are queued and sent by a worker goroutine,
// and dropped when the queue is full.
type Telegram struct {
	bot    Sender
	chatID int64
	log    *zap.Logger

	// Status events are only forwarded when Verbose is set.
	Verbose bool

	mu     sync.RWMutex
	closed bool
	queue  chan string
	wg     sync.WaitGroup
}

// NewTelegram authenticates against the Bot API.
func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	return NewTelegramWithSender(bot, chatID, log), nil
}

func NewTelegramWithSender(bot Sender, chatID int64, log *zap.Logger) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		log:    log.Named("telegram"),
		queue:  make(chan string, defaultQueue),
	}
}

// Start runs the send worker until ctx is done or Stop is called.
func (t *Telegram) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-t.queue:
				if !ok {
					return
				}
				t.send(msg)
			}
		}
	}()
}

// Stop flushes queued messages and waits for the worker.
func (t *Telegram) Stop() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Telegram) send(text string) {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, text)); err != nil {
		t.log.Warn("send failed", zap.Error(err))
	}
}

func (t *Telegram) Publish(e trader.Event) {
	if e.Kind == trader.EventStatus && !t.Verbose {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- Format(e):
	default:
		t.log.Warn("queue full, dropping event", zap.String("message", e.Message))
	}
}

// Format renders an event as a chat message.
func Format(e trader.Event) string {
	var b strings.Builder
	switch e.Kind {
	case trader.EventTrade:
		tu := e.Trade
		if tu == nil {
			return e.Message
		}
		icon := "🟢"
		if tu.Action == trader.ActionClose {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", icon, tu.Action, tu.Side, tu.Symbol)
		fmt.Fprintf(&b, "qty %g @ %g, %dx\n", tu.Quantity, tu.Price, tu.Leverage)
		if tu.Action == trader.ActionClose {
			fmt.Fprintf(&b, "pnl %.4f\n", tu.PnL)
		}
		fmt.Fprintf(&b, "order %s, %s", tu.OrderID, tu.Source)
	case trader.EventError:
		fmt.Fprintf(&b, "⚠️ %s: %s", e.Symbol, e.Message)
	default:
		fmt.Fprintf(&b, "%s: %s", e.Symbol, e.Message)
	}
	return b.String()
}

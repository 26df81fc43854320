package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/trader"
)

var openEvent = trader.Event{
	Kind:    trader.EventTrade,
	Symbol:  "BTCUSDT",
	Message: "opened LONG",
	Trade: &trader.TradeUpdate{
		Action:   trader.ActionOpen,
		Side:     market.Buy,
		Symbol:   "BTCUSDT",
		Quantity: 0.002,
		Leverage: 10,
		Price:    60000,
		OrderID:  "42",
		Source:   "Auto (baseline)",
	},
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewLogSink(zap.New(core))

	s.Publish(openEvent)
	s.Publish(trader.Event{Kind: trader.EventError, Symbol: "BTCUSDT", Message: "fetch candles: boom"})
	s.Publish(trader.Event{Kind: trader.EventStatus, Symbol: "BTCUSDT", Message: "analysis started"})

	entries := logs.All()
	require.Len(t, entries, 3)

	trade := entries[0].ContextMap()
	assert.Equal(t, "BUY", trade["side"])
	assert.Equal(t, 0.002, trade["qty"])
	assert.Equal(t, int64(10), trade["leverage"])
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.DebugLevel, entries[2].Level)
}

func TestFormat(t *testing.T) {
	msg := Format(openEvent)
	assert.Contains(t, msg, "OPEN BUY BTCUSDT")
	assert.Contains(t, msg, "qty 0.002 @ 60000, 10x")
	assert.Contains(t, msg, "Auto (baseline)")

	closeEvent := openEvent
	tu := *openEvent.Trade
	tu.Action, tu.PnL = trader.ActionClose, 1.5
	closeEvent.Trade = &tu
	assert.Contains(t, Format(closeEvent), "pnl 1.5000")

	assert.Equal(t, "⚠️ BTCUSDT: boom", Format(trader.Event{Kind: trader.EventError, Symbol: "BTCUSDT", Message: "boom"}))
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(c tgbot.Chattable) (tgbot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbot.MessageConfig); ok {
		f.sent = append(f.sent, m.Text)
	}
	return tgbot.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestTelegramSkipsStatusUnlessVerbose(t *testing.T) {
	fs := &fakeSender{}
	tg := NewTelegramWithSender(fs, 7, nil)
	tg.Start(context.Background())

	tg.Publish(trader.Event{Kind: trader.EventStatus, Message: "analysis started"})
	tg.Publish(openEvent)
	tg.Stop()

	sent := fs.texts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "OPEN BUY")

	// Publishing after Stop is a no-op.
	tg.Publish(openEvent)
	assert.Len(t, fs.texts(), 1)
}

func TestTelegramBotAPI(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"trader","username":"trader_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			mu.Lock()
			texts = append(texts, r.FormValue("text"))
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":     true,
				"result": map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 7, "type": "private"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bot, err := tgbot.NewBotAPIWithClient("token", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	tg := NewTelegramWithSender(bot, 7, zap.NewNop())
	tg.Verbose = true
	tg.Start(context.Background())
	tg.Publish(trader.Event{Kind: trader.EventStatus, Symbol: "BTCUSDT", Message: "trading started"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(texts) == 1
	}, 2*time.Second, 5*time.Millisecond)
	tg.Stop()

	assert.Equal(t, "BTCUSDT: trading started", texts[0])
}

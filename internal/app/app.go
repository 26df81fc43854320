// Package app wires the trader components together with fx.
package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/broker/binance"
	"github.com/rustyeddy/autotrader/broker/sim"
	"github.com/rustyeddy/autotrader/config"
	"github.com/rustyeddy/autotrader/internal/notify"
	"github.com/rustyeddy/autotrader/internal/statusapi"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/pkg/logger"
	"github.com/rustyeddy/autotrader/trader"
)

// New builds the application for cfg. Extra options are appended, which
// lets callers and tests replace or extract components.
func New(cfg *config.Config, opts ...fx.Option) *fx.App {
	return fx.New(append([]fx.Option{Module(cfg)}, opts...)...)
}

// Module provides every component and registers the lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			NewLogger,
			NewGateway,
			NewStore,
			NewStatusServer,
			NewTelegram,
			NewSink,
			NewLoop,
			trader.NewSupervisor,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(Run),
	)
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Log)
}

// NewGateway returns the paper exchange when paper trading is enabled and
// the Binance client otherwise.
func NewGateway(cfg *config.Config, log *zap.Logger) broker.Gateway {
	if cfg.Paper.Enabled {
		log.Info("paper trading", zap.Float64("balance", cfg.Paper.Balance))
		feed := sim.NewRandomWalk(cfg.Paper.StartPrice, cfg.Paper.Volatility, cfg.Paper.Seed)
		return sim.NewEngine(cfg.Sim(), feed)
	}
	bc := cfg.Binance()
	log.Info("binance futures", zap.Bool("testnet", bc.Testnet))
	return binance.NewClient(bc, log)
}

func NewStore(lc fx.Lifecycle, cfg *config.Config) (journal.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

func NewStatusServer(cfg *config.Config, sup *trader.Supervisor, log *zap.Logger) *statusapi.Server {
	return statusapi.New(func() (trader.Status, bool) {
		l := sup.Active()
		if l == nil {
			return trader.Status{}, false
		}
		return l.Status(), true
	}, cfg.Status.Events, log)
}

// NewTelegram returns nil when no bot is configured.
func NewTelegram(cfg *config.Config, log *zap.Logger) (*notify.Telegram, error) {
	if !cfg.Notify.TelegramEnabled() {
		return nil, nil
	}
	return notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.ChatID, log)
}

func NewSink(log *zap.Logger, status *statusapi.Server, tg *notify.Telegram) trader.Sink {
	sinks := trader.MultiSink{notify.NewLogSink(log), status}
	if tg != nil {
		sinks = append(sinks, tg)
	}
	return sinks
}

func NewLoop(cfg *config.Config, gw broker.Gateway, store journal.Store, sink trader.Sink, log *zap.Logger) (*trader.Loop, error) {
	st, err := cfg.Strategy.NewStrategy()
	if err != nil {
		return nil, err
	}
	return trader.New(cfg.Strategy, trader.Deps{
		Gateway:      gw,
		Ledger:       store,
		Sink:         sink,
		Logger:       log,
		Strategy:     st,
		Username:     cfg.Account.Username,
		CandleLimit:  cfg.Loop.CandleLimit,
		PollInterval: cfg.Loop.PollInterval,
	})
}

// Run starts the status server, the notifier and the loop on start and
// stops them in reverse order.
func Run(lc fx.Lifecycle, cfg *config.Config, sup *trader.Supervisor, loop *trader.Loop,
	status *statusapi.Server, tg *notify.Telegram, log *zap.Logger) {
	// The loop outlives the start hook's context.
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.Status.Enabled {
				if err := status.Start(cfg.Status.Addr); err != nil {
					cancel()
					return err
				}
			}
			if tg != nil {
				tg.Start(ctx)
			}
			return sup.Launch(ctx, loop)
		},
		OnStop: func(stopCtx context.Context) error {
			sup.Stop()
			cancel()
			if tg != nil {
				tg.Stop()
			}
			err := status.Shutdown(stopCtx)
			_ = log.Sync()
			return err
		},
	})
}

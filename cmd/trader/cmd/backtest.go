package cmd

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/backtest"
	"github.com/rustyeddy/autotrader/pkg/logger"
)

var backtestOpts struct {
	data     string
	from     string
	to       string
	closeEnd bool
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a candle CSV through the strategy on the paper exchange",
	Long: `Replay historical candles through the trading loop and print a summary.

The CSV has a time,open,high,low,close,volume header. Use "trader data fetch"
to download one.

Example:
  trader backtest -f trader.yaml --data btcusdt-15m.csv --from 2024-01-01`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&backtestOpts.data, "data", "", "candle CSV file")
	f.StringVar(&backtestOpts.from, "from", "", "first candle time (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&backtestOpts.to, "to", "", "stop before this time (RFC3339 or YYYY-MM-DD)")
	f.BoolVar(&backtestOpts.closeEnd, "close-end", true, "close any open position after the last candle")
	_ = backtestCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	paper = true
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	from, err := parseDate(backtestOpts.from)
	if err != nil {
		return errors.Wrap(err, "--from")
	}
	to, err := parseDate(backtestOpts.to)
	if err != nil {
		return errors.Wrap(err, "--to")
	}

	f, err := os.Open(backtestOpts.data)
	if err != nil {
		return errors.Wrap(err, "open data")
	}
	defer f.Close()
	candles, err := backtest.ReadCandles(f, from, to)
	if err != nil {
		return errors.Wrapf(err, "read %s", backtestOpts.data)
	}

	lcfg := cfg.Log
	lcfg.Level = "error"
	log, err := logger.New(lcfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	r := backtest.Runner{
		Strategy:    cfg.Strategy,
		Sim:         cfg.Sim(),
		CandleLimit: cfg.Loop.CandleLimit,
		Logger:      log,
		CloseEnd:    backtestOpts.closeEnd,
	}
	res, err := r.Run(cmd.Context(), candles)
	if err != nil {
		return err
	}
	backtest.Print(cmd.OutOrStdout(), res)
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

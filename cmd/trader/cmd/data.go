package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/backtest"
	"github.com/rustyeddy/autotrader/internal/app"
	"github.com/rustyeddy/autotrader/pkg/logger"
)

var fetchOpts struct {
	out   string
	limit int
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Candle data tools",
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download recent candles for the configured symbol to CSV",
	Long: `Download the most recent candles for the configured symbol and timeframe.

Example:
  trader data fetch -f trader.yaml --limit 1500 -o btcusdt-15m.csv`,
	Args: cobra.NoArgs,
	RunE: runDataFetch,
}

func init() {
	f := dataFetchCmd.Flags()
	f.StringVarP(&fetchOpts.out, "output", "o", "", "output file (default stdout)")
	f.IntVar(&fetchOpts.limit, "limit", 1000, "number of candles")
	dataCmd.AddCommand(dataFetchCmd)
	rootCmd.AddCommand(dataCmd)
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	if fetchOpts.limit <= 0 {
		return errors.New("--limit must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	s := cfg.Strategy
	candles, err := app.NewGateway(cfg, log).GetCandles(cmd.Context(), s.Symbol, s.Timeframe, fetchOpts.limit)
	if err != nil {
		return errors.Wrap(err, "fetch candles")
	}

	var w io.Writer = cmd.OutOrStdout()
	if fetchOpts.out != "" {
		f, err := os.Create(fetchOpts.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := backtest.WriteCandles(w, candles); err != nil {
		return err
	}
	if fetchOpts.out != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d %s %s candles to %s\n", len(candles), s.Symbol, s.Timeframe, fetchOpts.out)
	}
	return nil
}

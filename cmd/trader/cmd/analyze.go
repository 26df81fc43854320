package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/internal/app"
	"github.com/rustyeddy/autotrader/pkg/logger"
	"github.com/rustyeddy/autotrader/trader"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Evaluate the strategy once without placing orders",
	Long: `Fetch candles, reconcile the position and print the strategy decision.

Example:
  trader analyze -f trader.yaml`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	gw := app.NewGateway(cfg, log)
	a, err := trader.Analyze(cmd.Context(), gw, cfg.Strategy, nil, cfg.Loop.CandleLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	s := cfg.Strategy
	fmt.Fprintf(out, "%s %s via %s (%d candles)\n", s.Symbol, s.Timeframe, s.Method, a.Candles)
	if p := a.Position; p != nil {
		fmt.Fprintf(out, "position: %s %g @ %g (%dx)\n", p.Side, p.Quantity, p.EntryPrice, p.Leverage)
	} else {
		fmt.Fprintln(out, "position: flat")
	}
	r := a.Result
	fmt.Fprintf(out, "open: %s  close: %t  price: %g\n", r.Open, r.Close, r.Price)
	if r.Reason != "" {
		fmt.Fprintf(out, "reason: %s\n", r.Reason)
	}

	keys := make([]string, 0, len(r.Details))
	for k := range r.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-12s %.6f\n", k, r.Details[k])
	}
	return nil
}

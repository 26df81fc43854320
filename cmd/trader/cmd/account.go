package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/internal/app"
	"github.com/rustyeddy/autotrader/pkg/logger"
	"github.com/rustyeddy/autotrader/trader"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show wallet balances, the position and open orders",
	Long: `Show the futures wallet, the position for the configured symbol and its
working orders (stop loss, take profit).

Example:
  trader account -f trader.yaml`,
	Args: cobra.NoArgs,
	RunE: runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func runAccount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	symbol := cfg.Strategy.Symbol
	a, err := trader.FetchAccount(cmd.Context(), app.NewGateway(cfg, log), symbol)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tBALANCE\tAVAILABLE\tUNREALIZED")
	for _, b := range a.Balances {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\n", b.Asset, b.Balance, b.Available, b.UnrealizedPnL)
	}
	fmt.Fprintln(w)
	if p := a.Position; p != nil {
		fmt.Fprintf(w, "position:\t%s %s %g @ %g (%dx)\n", symbol, p.Side, p.Quantity, p.EntryPrice, p.Leverage)
	} else {
		fmt.Fprintf(w, "position:\t%s flat\n", symbol)
	}
	fmt.Fprintf(w, "open orders:\t%d\n", len(a.Orders))
	for _, o := range a.Orders {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%g\tstop %g\t%s\n", o.ID, o.Type, o.Side, o.Quantity, o.StopPrice, o.Status)
	}
	return w.Flush()
}

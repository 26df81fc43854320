package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded trades, newest first",
	Long: `List trades from the configured journal.

Examples:
  trader journal list -f trader.yaml
  trader journal list -f trader.yaml --status CLOSED --limit 20`,
	Args: cobra.NoArgs,
	RunE: runJournalList,
}

var journalFilter journal.Filter

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)

	f := journalListCmd.Flags()
	f.StringVar(&journalFilter.Username, "user", "", "only trades by this user")
	f.StringVar(&journalFilter.Symbol, "symbol", "", "only trades for this symbol")
	f.StringVar(&journalFilter.Status, "status", "", "OPEN or CLOSED")
	f.IntVar(&journalFilter.Limit, "limit", 50, "maximum rows, 0 for all")
}

func runJournalList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := journal.Open(cmd.Context(), cfg.Journal)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListTrades(cmd.Context(), journalFilter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tSYMBOL\tSIDE\tQTY\tPRICE\tPNL\tORDER\tNOTE")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%g\t%.4f\t%s\t%s\n",
			r.EntryTime.Local().Format(time.DateTime), r.Status, r.Symbol, r.Side,
			r.Quantity, r.Price, r.PnL, r.OrderID, r.Note)
	}
	return w.Flush()
}

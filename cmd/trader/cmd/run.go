package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop until interrupted",
	Long: `Start the trading loop, the notifiers and (if enabled) the status API.

Examples:
  trader run -f trader.yaml
  trader run -f trader.yaml --paper`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a := app.New(cfg)
	if err := a.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}

	<-a.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	return a.Stop(stopCtx)
}

package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/autotrader/config"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Automated Binance futures trader",
	Long: `Trader runs an automated decision loop against Binance USDⓈ-M futures.

Each cycle it reconciles the open position, fetches candles, evaluates the
configured strategy (Baseline or Ichimoku) and opens or closes a position.

Use --paper to trade against a simulated exchange.`,
	SilenceUsage: true,
}

var (
	cfgFile string
	paper   bool
	live    bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "file", "f", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&paper, "paper", false, "use the simulated exchange")
	rootCmd.PersistentFlags().BoolVar(&live, "live", false, "use Binance even if paper trading is configured")
}

// loadConfig reads the config file and applies the mode flags before
// validation.
func loadConfig() (*config.Config, error) {
	if paper && live {
		return nil, errors.New("--paper and --live are mutually exclusive")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if paper {
		cfg.Paper.Enabled = true
	}
	if live {
		cfg.Paper.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

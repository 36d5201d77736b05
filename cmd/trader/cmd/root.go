package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Bar-driven FX breakout trading engine",
	Long: `Trader runs a breakout strategy against one instrument, once per
closed bar, behind a chain of risk limits:

  - daily loss circuit breaker
  - per-symbol position quota
  - global portfolio risk budget
  - risk-based position sizing with volume and money caps

Orders go to OANDA (live) or are recorded as paper fills. Every decision
is written to the journal with its reason code.`,
	SilenceUsage: true,
}

var configPath string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML or JSON); defaults plus EA__ environment when empty")
}

package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rustyeddy/breakout/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate a configuration file with EA__ overrides applied

Examples:
  trader config init -o breakout.yaml
  trader config validate -c breakout.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "breakout.yaml", "output config file path")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  trader run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	name := configPath
	if name == "" {
		name = "(defaults + environment)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid: %s\n", name)
	configTable(cmd, cfg)
	return nil
}

func configTable(cmd *cobra.Command, cfg *config.Config) {
	s := cfg.RiskSettings()

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Instrument", cfg.ResolveInstrument("")},
		{"Timeframe", cfg.Trading.Timeframe},
		{"Mode", cfg.Trading.Mode},
		{"Broker", cfg.Broker.Type},
		{"Strategy", cfg.Strategy.Name},
		{"Journal", cfg.Journal.Type},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Risk sizing", s.UseRiskSizing},
		{"Risk per trade", fmt.Sprintf("%.2f%%", cfg.Risk.RiskPercent)},
		{"Max volume", s.MaxVolume},
		{"Max risk money", s.MaxRiskMoney},
		{"Max total risk", fmt.Sprintf("%.2f%%", s.MaxTotalRiskPercent)},
		{"Max positions/symbol", s.MaxPositionsPerSymbol},
		{"Max daily loss", fmt.Sprintf("%.2f%% / %.2f", s.MaxDailyLossPercent, s.MaxDailyLossMoney)},
	})
	t.Render()
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/config"
)

func TestApplyRunFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Strategy.DefaultSymbol = "GBP_USD"

	runSymbol, runMode, runTimeframe, runBroker, runBarsCSV = "", "LIVE", "h1", "sim", "bars.csv"
	t.Cleanup(func() {
		runSymbol, runMode, runTimeframe, runBroker, runBarsCSV = "", "", "", "", ""
	})

	require.NoError(t, applyRunFlags(cfg))
	assert.Equal(t, "live", cfg.Trading.Mode)
	assert.Equal(t, "H1", cfg.Trading.Timeframe)
	assert.Equal(t, "bars.csv", cfg.Broker.BarsCSV)
	assert.Equal(t, "GBP_USD", cfg.Trading.Instrument)

	runSymbol = "usd_jpy"
	require.NoError(t, applyRunFlags(cfg))
	assert.Equal(t, "USD_JPY", cfg.Trading.Instrument)

	runTimeframe = "M7"
	assert.Error(t, applyRunFlags(cfg))
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breakout.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", "-o", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Created default configuration")

	_, err := os.Stat(path)
	require.NoError(t, err)

	out.Reset()
	rootCmd.SetArgs([]string{"config", "validate", "-c", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Configuration valid")
	assert.Contains(t, out.String(), "EUR_USD")
	configPath = ""
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"NO_SIGNAL", "PAPER_FILL", "SAME_BAR"},
		sortedKeys(map[string]int{"SAME_BAR": 1, "NO_SIGNAL": 4, "PAPER_FILL": 2}))
}

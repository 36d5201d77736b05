package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EA__"

// Load builds the configuration for a run: defaults, then the file at
// path when path is not empty, then the .env file, then EA__ variables.
// The .env file is EA__ENV_FILE when set, otherwise ./.env if present.
// Variables already in the environment win over .env entries.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if cfg, err = parse(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadEnvFile() error {
	if p := os.Getenv(EnvPrefix + "ENV_FILE"); p != "" {
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies the EA__ overrides found through lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []string

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	num("RISK_PERCENT", &c.Risk.RiskPercent)
	boolean("USE_RISK_SIZING", &c.Risk.UseRiskSizing)
	num("FIXED_VOLUME", &c.Risk.FixedVolume)
	num("MAX_VOLUME", &c.Risk.MaxVolume)
	num("MAX_RISK_MONEY", &c.Risk.MaxRiskMoney)
	num("MAX_TOTAL_RISK_PERCENT", &c.Risk.MaxTotalRiskPercent)
	integer("MAX_POSITIONS_PER_SYMBOL", &c.Risk.MaxPositionsPerSymbol)
	num("MAX_DAILY_LOSS_PERCENT", &c.Risk.MaxDailyLossPercent)
	num("MAX_DAILY_LOSS_MONEY", &c.Risk.MaxDailyLossMoney)

	var pollingSec float64
	num("POLLING_SEC", &pollingSec)
	if pollingSec > 0 {
		c.Trading.Polling = time.Duration(pollingSec * float64(time.Second))
	}
	str("SYMBOL", &c.Trading.Instrument)
	str("TIMEFRAME", &c.Trading.Timeframe)
	str("MODE", &c.Trading.Mode)

	str("BROKER", &c.Broker.Type)
	str("OANDA_ENV", &c.Broker.Env)
	str("OANDA_TOKEN", &c.Broker.Token)
	str("OANDA_ACCOUNT", &c.Broker.AccountID)

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

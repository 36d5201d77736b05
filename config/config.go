// Package config loads the engine configuration from defaults, an
// optional YAML/JSON file, a .env file and EA__ environment overrides,
// in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/breakout/internal/logger"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/strategies"
)

type Config struct {
	Account  AccountConfig     `json:"account" yaml:"account"`
	Broker   BrokerConfig      `json:"broker" yaml:"broker"`
	Trading  TradingConfig     `json:"trading" yaml:"trading"`
	Risk     RiskConfig        `json:"risk" yaml:"risk"`
	Strategy strategies.Config `json:"strategy" yaml:"strategy"`
	Journal  JournalConfig     `json:"journal" yaml:"journal"`
	Log      logger.Config     `json:"log" yaml:"log"`
	Metrics  MetricsConfig     `json:"metrics" yaml:"metrics"`
}

// AccountConfig seeds the sim broker.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id" default:"sim"`
	Currency string  `json:"currency" yaml:"currency" default:"USD" validate:"len=3"`
	Balance  float64 `json:"balance" yaml:"balance" default:"10000" validate:"gt=0"`
}

type BrokerConfig struct {
	Type      string        `json:"type" yaml:"type" default:"sim" validate:"oneof=sim oanda"`
	Env       string        `json:"env" yaml:"env" default:"practice" validate:"oneof=practice live"`
	BaseURL   string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token     string        `json:"-" yaml:"-"`
	AccountID string        `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" default:"30s"`
	RateLimit float64       `json:"rate_limit" yaml:"rate_limit" default:"20" validate:"gte=0"`
	RateBurst int           `json:"rate_burst" yaml:"rate_burst" default:"5" validate:"gte=0"`

	// sim only
	BarsCSV  string  `json:"bars_csv,omitempty" yaml:"bars_csv,omitempty"`
	Slippage float64 `json:"slippage" yaml:"slippage" validate:"gte=0"`
}

type TradingConfig struct {
	Instrument string        `json:"instrument,omitempty" yaml:"instrument,omitempty"`
	Timeframe  string        `json:"timeframe" yaml:"timeframe" default:"M15"`
	Mode       string        `json:"mode" yaml:"mode" default:"paper" validate:"oneof=paper live"`
	Polling    time.Duration `json:"polling" yaml:"polling" default:"5s" validate:"gt=0"`
	Bars       int           `json:"bars" yaml:"bars" default:"500" validate:"gte=10,lte=5000"`
	Location   string        `json:"location" yaml:"location" default:"UTC"`
}

// RiskConfig mirrors risk.Settings with percentages as configured.
type RiskConfig struct {
	RiskPercent           float64 `json:"risk_percent" yaml:"risk_percent" default:"1.0" validate:"gte=0,lte=100"`
	UseRiskSizing         bool    `json:"use_risk_sizing" yaml:"use_risk_sizing" default:"true"`
	FixedVolume           float64 `json:"fixed_volume" yaml:"fixed_volume" default:"0.10" validate:"gte=0"`
	MaxVolume             float64 `json:"max_volume" yaml:"max_volume" validate:"gte=0"`
	MaxRiskMoney          float64 `json:"max_risk_money" yaml:"max_risk_money" validate:"gte=0"`
	MaxTotalRiskPercent   float64 `json:"max_total_risk_percent" yaml:"max_total_risk_percent" validate:"gte=0,lte=100"`
	MaxPositionsPerSymbol int     `json:"max_positions_per_symbol" yaml:"max_positions_per_symbol" default:"3" validate:"gte=1"`
	MaxDailyLossPercent   float64 `json:"max_daily_loss_percent" yaml:"max_daily_loss_percent" validate:"gte=0,lte=100"`
	MaxDailyLossMoney     float64 `json:"max_daily_loss_money" yaml:"max_daily_loss_money" validate:"gte=0"`
}

type JournalConfig struct {
	Type          string `json:"type" yaml:"type" default:"sqlite" validate:"oneof=sqlite csv none"`
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty" default:"breakout.db"`
	DecisionsFile string `json:"decisions_file,omitempty" yaml:"decisions_file,omitempty" default:"decisions.csv"`
	FillsFile     string `json:"fills_file,omitempty" yaml:"fills_file,omitempty" default:"fills.csv"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" default:":9090"`
	Path    string `json:"path" yaml:"path" default:"/metrics"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// only possible with a malformed default tag
		panic(err)
	}
	return cfg
}

// LoadFromFile reads a YAML or JSON file over the defaults and
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate runs the struct tag rules and the cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if _, err := market.ParseTimeframe(c.Trading.Timeframe); err != nil {
		return fmt.Errorf("trading.timeframe: %w", err)
	}
	if _, err := time.LoadLocation(c.Trading.Location); err != nil {
		return fmt.Errorf("trading.location: %w", err)
	}
	if c.Trading.Instrument != "" && !strings.Contains(c.Trading.Instrument, "_") {
		return fmt.Errorf("trading.instrument %q must look like BASE_QUOTE", c.Trading.Instrument)
	}
	if c.Broker.Type == "oanda" && (c.Broker.AccountID == "" || c.Broker.Token == "") {
		return fmt.Errorf("broker: oanda requires account_id and a token (EA__OANDA_TOKEN)")
	}
	if c.Journal.Type == "csv" && (c.Journal.DecisionsFile == "" || c.Journal.FillsFile == "") {
		return fmt.Errorf("journal: decisions_file and fills_file required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal: db_path required for sqlite type")
	}
	if _, err := strategies.ByName(c.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	return c.RiskSettings().Validate()
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have length %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// RiskSettings converts the risk section to risk.Settings.
func (c *Config) RiskSettings() risk.Settings {
	r := c.Risk
	return risk.Settings{
		RiskFraction:          r.RiskPercent / 100,
		UseRiskSizing:         r.UseRiskSizing,
		FixedVolume:           r.FixedVolume,
		MaxVolume:             r.MaxVolume,
		MaxRiskMoney:          r.MaxRiskMoney,
		MaxTotalRiskPercent:   r.MaxTotalRiskPercent,
		MaxPositionsPerSymbol: r.MaxPositionsPerSymbol,
		MaxDailyLossPercent:   r.MaxDailyLossPercent,
		MaxDailyLossMoney:     r.MaxDailyLossMoney,
	}
}

// ResolveInstrument picks the traded instrument: the flag value, then the
// config file, then the strategy's default symbol, then EUR_USD.
func (c *Config) ResolveInstrument(flag string) string {
	for _, s := range []string{flag, c.Trading.Instrument, c.Strategy.DefaultSymbol} {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			return s
		}
	}
	return "EUR_USD"
}

func (c *Config) Timeframe() market.Timeframe {
	tf, _ := market.ParseTimeframe(c.Trading.Timeframe)
	return tf
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Trading.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

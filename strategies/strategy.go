package strategies

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/market"
)

// Strategy turns a bar window into a Signal. Evaluate is called exactly
// once per newly closed bar with the window ordered oldest first; any
// state a strategy keeps is private to it.
type Strategy interface {
	Name() string
	Evaluate(bars []market.Bar) market.Signal
}

// Diagnostics describes the levels a strategy looked at on its last
// evaluation. It lets the caller report why no signal fired without
// recomputing anything.
type Diagnostics struct {
	Channel   indicators.Channel
	ATR       float64
	EMA       float64
	HasLevels bool
	Note      string
}

// Diagnoser is implemented by strategies that expose Diagnostics.
type Diagnoser interface {
	Diagnostics() Diagnostics
}

// BreakoutMode selects what price is compared against the channel.
type BreakoutMode string

const (
	// ModeClose compares the bar's close.
	ModeClose BreakoutMode = "close"
	// ModeIntrabar compares the bar's high/low, catching moves that touch
	// the level and reverse within the bar.
	ModeIntrabar BreakoutMode = "intrabar"
)

func ParseBreakoutMode(s string) (BreakoutMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "close", "":
		return ModeClose, nil
	case "intrabar", "intra":
		return ModeIntrabar, nil
	default:
		return "", fmt.Errorf("unknown breakout mode %q (supported: close, intrabar)", s)
	}
}

// triggers returns the buy/sell breakout conditions for the newest bar.
func (m BreakoutMode) triggers(b market.Bar, ch indicators.Channel) (buy, sell bool) {
	if m == ModeIntrabar {
		return b.High > ch.Upper, b.Low < ch.Lower
	}
	return b.Close > ch.Upper, b.Close < ch.Lower
}

// Config selects and parameterises one of the named presets.
type Config struct {
	Name           string               `json:"name" yaml:"name" default:"breakout-retest"`
	DefaultSymbol  string               `json:"default_symbol,omitempty" yaml:"default_symbol,omitempty"`
	BreakoutRetest BreakoutRetestConfig `json:"breakout_retest" yaml:"breakout_retest"`
	TrendDonchian  TrendDonchianConfig  `json:"donchian_trend" yaml:"donchian_trend"`
	EMACross       EMACrossConfig       `json:"ema_cross" yaml:"ema_cross"`
}

// Names lists the supported presets.
var Names = []string{"breakout-retest", "donchian-trend", "ema-cross", "noop"}

// ByName builds the strategy preset named by cfg.Name.
func ByName(cfg Config) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "noop", "none":
		return NoopStrategy{}, nil

	case "breakout-retest", "breakout", "breakout-close":
		return NewBreakoutRetest(cfg.BreakoutRetest)

	case "donchian-trend", "donchian", "trend-donchian":
		return NewTrendDonchian(cfg.TrendDonchian)

	case "ema-cross", "emacross":
		return NewEMACross(cfg.EMACross)

	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", cfg.Name, strings.Join(Names, ", "))
	}
}

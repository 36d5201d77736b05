package strategies

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/market"
)

// BreakoutRewardMultiple is the fixed reward:risk of the breakout-retest
// preset.
const BreakoutRewardMultiple = 2.0

// BreakoutRetestConfig parameterises BreakoutRetest.
type BreakoutRetestConfig struct {
	Lookback      int          `json:"lookback" yaml:"lookback" default:"5" validate:"gte=1"`
	SwingLookback int          `json:"swing_lookback" yaml:"swing_lookback" default:"3" validate:"gte=1"`
	ATRPeriod     int          `json:"atr_period" yaml:"atr_period" default:"14" validate:"gte=1"`
	ATRFloorMult  float64      `json:"atr_floor_mult" yaml:"atr_floor_mult" default:"0.25" validate:"gte=0"`
	Mode          BreakoutMode `json:"breakout_mode" yaml:"breakout_mode" default:"intrabar"`
	RetestEntries bool         `json:"retest_entries" yaml:"retest_entries" default:"true"`
	RetestWindow  int          `json:"retest_window" yaml:"retest_window" default:"5" validate:"gte=0"`
	MaxAdds       int          `json:"max_adds" yaml:"max_adds" default:"1" validate:"gte=0"`
}

func BreakoutRetestConfigDefaults() BreakoutRetestConfig {
	return BreakoutRetestConfig{
		Lookback:      5,
		SwingLookback: 3,
		ATRPeriod:     14,
		ATRFloorMult:  0.25,
		Mode:          ModeIntrabar,
		RetestEntries: true,
		RetestWindow:  5,
		MaxAdds:       1,
	}
}

// BreakoutState is the retest/pyramiding memory of a BreakoutRetest.
// LastBreakoutBar is the open time of the bar that broke out.
type BreakoutState struct {
	HasBreakout       bool
	LastBreakoutPrice float64
	LastBreakoutSide  market.Side
	LastBreakoutBar   time.Time
	AddsTaken         int
}

// BreakoutRetest trades Donchian breakouts of the previous Lookback bars
// and optionally re-enters on a retest of the broken level.
//
// Stop: the more protective of the last opposite swing extreme and
// entry ∓ ATRFloorMult×ATR. A stop that is not strictly beyond the entry
// discards the signal. Target: entry ± 2R.
//
// When a bar satisfies both breakout conditions the buy side wins. This
// ordering is policy.
type BreakoutRetest struct {
	cfg   BreakoutRetestConfig
	state BreakoutState
	diag  Diagnostics
}

func NewBreakoutRetest(cfg BreakoutRetestConfig) (*BreakoutRetest, error) {
	mode, err := ParseBreakoutMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.Lookback <= 0 || cfg.SwingLookback <= 0 || cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("breakout-retest: lookback, swing_lookback and atr_period must be positive")
	}
	if cfg.ATRFloorMult < 0 || cfg.RetestWindow < 0 || cfg.MaxAdds < 0 {
		return nil, fmt.Errorf("breakout-retest: atr_floor_mult, retest_window and max_adds must not be negative")
	}
	return &BreakoutRetest{cfg: cfg}, nil
}

func (s *BreakoutRetest) Name() string { return "BreakoutRetest" }

func (s *BreakoutRetest) Config() BreakoutRetestConfig { return s.cfg }

// State returns a copy of the retest state.
func (s *BreakoutRetest) State() BreakoutState { return s.state }

// SetState replaces the retest state.
func (s *BreakoutRetest) SetState(st BreakoutState) { s.state = st }

func (s *BreakoutRetest) Diagnostics() Diagnostics { return s.diag }

// MinBars is the history needed before any signal can fire.
func (s *BreakoutRetest) MinBars() int {
	return max(s.cfg.Lookback, s.cfg.SwingLookback, s.cfg.ATRPeriod) + 2
}

func (s *BreakoutRetest) Evaluate(bars []market.Bar) market.Signal {
	s.diag = Diagnostics{}

	if len(bars) < s.MinBars() {
		s.diag.Note = fmt.Sprintf("insufficient history: %d < %d bars", len(bars), s.MinBars())
		return market.NoSignal
	}

	atr, ok := indicators.ATR(bars, s.cfg.ATRPeriod)
	if !ok || atr <= 0 {
		s.diag.Note = "atr not available"
		return market.NoSignal
	}
	ch, ok := indicators.Donchian(bars, s.cfg.Lookback)
	if !ok {
		s.diag.Note = "channel not available"
		return market.NoSignal
	}
	s.diag = Diagnostics{Channel: ch, ATR: atr, HasLevels: true}

	cur := bars[len(bars)-1]
	buy, sell := s.cfg.Mode.triggers(cur, ch)

	// Primary breakout. A fresh breakout always resets any retest sequence.
	if buy {
		entry := cur.Close
		if s.cfg.Mode == ModeIntrabar {
			entry = math.Max(cur.Close, ch.Upper)
		}
		sig, ok := s.signal(market.SideBuy, entry, bars, atr, "breakout")
		if !ok {
			s.diag.Note = "buy breakout discarded: stop not below entry"
			return market.NoSignal
		}
		s.recordBreakout(market.SideBuy, ch.Upper, cur.Time)
		return sig
	}
	if sell {
		entry := cur.Close
		if s.cfg.Mode == ModeIntrabar {
			entry = math.Min(cur.Close, ch.Lower)
		}
		sig, ok := s.signal(market.SideSell, entry, bars, atr, "breakout")
		if !ok {
			s.diag.Note = "sell breakout discarded: stop not above entry"
			return market.NoSignal
		}
		s.recordBreakout(market.SideSell, ch.Lower, cur.Time)
		return sig
	}

	return s.retest(bars, atr)
}

func (s *BreakoutRetest) recordBreakout(side market.Side, level float64, at time.Time) {
	s.state = BreakoutState{
		HasBreakout:       true,
		LastBreakoutPrice: level,
		LastBreakoutSide:  side,
		LastBreakoutBar:   at,
		AddsTaken:         0,
	}
}

// retest re-enters on the breakout side when the newest bar trades back
// through the broken level within RetestWindow bars of the breakout.
func (s *BreakoutRetest) retest(bars []market.Bar, atr float64) market.Signal {
	st := s.state
	if !s.cfg.RetestEntries || !st.HasBreakout {
		return market.NoSignal
	}
	if st.AddsTaken >= s.cfg.MaxAdds {
		return market.NoSignal
	}

	n, ok := barsSince(bars, st.LastBreakoutBar)
	if !ok || n > s.cfg.RetestWindow {
		return market.NoSignal
	}

	cur := bars[len(bars)-1]
	if !cur.Range(st.LastBreakoutPrice) {
		return market.NoSignal
	}

	sig, ok := s.signal(st.LastBreakoutSide, cur.Close, bars, atr, "retest")
	if !ok {
		s.diag.Note = "retest discarded: invalid stop"
		return market.NoSignal
	}
	s.state.AddsTaken++
	return sig
}

// signal derives stop and target for an entry. ok is false when the stop
// would not lie strictly beyond the entry.
func (s *BreakoutRetest) signal(side market.Side, entry float64, bars []market.Bar, atr float64, reason string) (market.Signal, bool) {
	floor := s.cfg.ATRFloorMult * atr

	var stop float64
	switch side {
	case market.SideBuy:
		swing, ok := indicators.SwingLow(bars, s.cfg.SwingLookback)
		if !ok {
			return market.NoSignal, false
		}
		stop = math.Max(swing, entry-floor)
		if !(stop < entry) {
			return market.NoSignal, false
		}
	case market.SideSell:
		swing, ok := indicators.SwingHigh(bars, s.cfg.SwingLookback)
		if !ok {
			return market.NoSignal, false
		}
		stop = math.Min(swing, entry+floor)
		if !(stop > entry) {
			return market.NoSignal, false
		}
	default:
		return market.NoSignal, false
	}

	r := math.Abs(entry - stop)
	target := entry + side.Dir()*BreakoutRewardMultiple*r
	return market.NewSignal(side, entry, stop, target, reason), true
}

// barsSince counts the bars after the bar opened at t. ok is false when
// that bar is no longer in the window.
func barsSince(bars []market.Bar, t time.Time) (int, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Time.Equal(t) {
			return len(bars) - 1 - i, true
		}
		if bars[i].Time.Before(t) {
			return 0, false
		}
	}
	return 0, false
}

package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/market"
)

// EMACrossConfig parameterises EMACross.
type EMACrossConfig struct {
	FastPeriod int     `json:"fast_period" yaml:"fast_period" default:"10" validate:"gte=1"`
	SlowPeriod int     `json:"slow_period" yaml:"slow_period" default:"30" validate:"gte=2"`
	ATRPeriod  int     `json:"atr_period" yaml:"atr_period" default:"14" validate:"gte=1"`
	StopATR    float64 `json:"stop_atr" yaml:"stop_atr" default:"1.5" validate:"gt=0"`
	RR         float64 `json:"rr" yaml:"rr" default:"2" validate:"gt=0"`
}

func EMACrossConfigDefaults() EMACrossConfig {
	return EMACrossConfig{
		FastPeriod: 10,
		SlowPeriod: 30,
		ATRPeriod:  14,
		StopATR:    1.5,
		RR:         2.0,
	}
}

// EMACross trades a fast/slow EMA crossover of closes.
//   - Enters only on the bar where the cross happens
//   - Stop is StopATR ATRs from the close, target RR times the risk
//
// It keeps no state between bars; the previous bar's EMAs are recomputed
// from the window.
type EMACross struct {
	cfg  EMACrossConfig
	diag Diagnostics
}

func NewEMACross(cfg EMACrossConfig) (*EMACross, error) {
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= 0 || cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("ema-cross: periods must be positive")
	}
	if cfg.FastPeriod >= cfg.SlowPeriod {
		return nil, fmt.Errorf("ema-cross: fast period %d must be below slow period %d", cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.StopATR <= 0 || cfg.RR <= 0 {
		return nil, fmt.Errorf("ema-cross: stop_atr and rr must be positive")
	}
	return &EMACross{cfg: cfg}, nil
}

func (s *EMACross) Name() string { return "EMACross" }

func (s *EMACross) Config() EMACrossConfig { return s.cfg }

func (s *EMACross) Diagnostics() Diagnostics { return s.diag }

func (s *EMACross) MinBars() int {
	return max(s.cfg.SlowPeriod+1, s.cfg.ATRPeriod+1)
}

// spread is fast EMA minus slow EMA over closes.
func (s *EMACross) spread(closes []float64) (float64, float64, bool) {
	fast, ok := indicators.EMA(closes, s.cfg.FastPeriod)
	if !ok {
		return 0, 0, false
	}
	slow, ok := indicators.EMA(closes, s.cfg.SlowPeriod)
	if !ok {
		return 0, 0, false
	}
	return fast - slow, slow, true
}

func (s *EMACross) Evaluate(bars []market.Bar) market.Signal {
	s.diag = Diagnostics{}

	if len(bars) < s.MinBars() {
		s.diag.Note = fmt.Sprintf("insufficient history: %d < %d bars", len(bars), s.MinBars())
		return market.NoSignal
	}

	closes := indicators.Closes(bars)
	prev, _, okPrev := s.spread(closes[:len(closes)-1])
	diff, slow, okCur := s.spread(closes)
	if !okPrev || !okCur {
		s.diag.Note = "ema not available"
		return market.NoSignal
	}
	s.diag.EMA = slow

	atr, ok := indicators.ATR(bars, s.cfg.ATRPeriod)
	if !ok {
		s.diag.Note = "atr not available"
		return market.NoSignal
	}
	s.diag.ATR = atr

	// bull: spread goes from <=0 to >0, bear: from >=0 to <0
	switch {
	case diff > 0 && prev <= 0:
		return s.signal(market.SideBuy, bars[len(bars)-1].Close, atr, "bull cross")
	case diff < 0 && prev >= 0:
		return s.signal(market.SideSell, bars[len(bars)-1].Close, atr, "bear cross")
	default:
		s.diag.Note = "no cross"
		return market.NoSignal
	}
}

func (s *EMACross) signal(side market.Side, entry, atr float64, reason string) market.Signal {
	dist := s.cfg.StopATR * atr
	if dist <= 0 || math.IsNaN(dist) || math.IsInf(dist, 0) {
		s.diag.Note = "degenerate atr"
		return market.NoSignal
	}
	stop := entry - side.Dir()*dist
	target := entry + side.Dir()*s.cfg.RR*dist
	return market.NewSignal(side, entry, stop, target, reason)
}

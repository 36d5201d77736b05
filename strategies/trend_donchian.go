package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/market"
)

// TrendDonchianConfig parameterises TrendDonchian. EMAPeriod 0 disables
// the trend filter and ATRFloorMult 0 disables the ATR floor.
type TrendDonchianConfig struct {
	Lookback     int          `json:"lookback" yaml:"lookback" default:"20" validate:"gte=1"`
	ATRPeriod    int          `json:"atr_period" yaml:"atr_period" default:"14" validate:"gte=1"`
	RR           float64      `json:"rr" yaml:"rr" default:"3" validate:"gt=0"`
	EMAPeriod    int          `json:"ema_period" yaml:"ema_period" default:"200" validate:"gte=0"`
	Mode         BreakoutMode `json:"breakout_mode" yaml:"breakout_mode" default:"close"`
	ATRFloorMult float64      `json:"atr_floor_mult" yaml:"atr_floor_mult" validate:"gte=0"`
}

func TrendDonchianConfigDefaults() TrendDonchianConfig {
	return TrendDonchianConfig{
		Lookback:  20,
		ATRPeriod: 14,
		RR:        3.0,
		EMAPeriod: 200,
		Mode:      ModeClose,
	}
}

// TrendDonchian is a stateless trend-following Donchian breakout:
// buy above the previous Lookback highs, sell below the previous Lookback
// lows, optionally only in the direction of price relative to an EMA.
// Stop is one ATR from entry, target RR ATRs.
type TrendDonchian struct {
	cfg  TrendDonchianConfig
	diag Diagnostics
}

func NewTrendDonchian(cfg TrendDonchianConfig) (*TrendDonchian, error) {
	mode, err := ParseBreakoutMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.Lookback <= 0 || cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("donchian-trend: lookback and atr_period must be positive")
	}
	if cfg.RR <= 0 {
		return nil, fmt.Errorf("donchian-trend: rr must be positive, got %v", cfg.RR)
	}
	if cfg.EMAPeriod < 0 || cfg.ATRFloorMult < 0 {
		return nil, fmt.Errorf("donchian-trend: ema_period and atr_floor_mult must not be negative")
	}
	return &TrendDonchian{cfg: cfg}, nil
}

func (s *TrendDonchian) Name() string { return "DonchianTrend" }

func (s *TrendDonchian) Config() TrendDonchianConfig { return s.cfg }

func (s *TrendDonchian) Diagnostics() Diagnostics { return s.diag }

func (s *TrendDonchian) MinBars() int {
	return max(s.cfg.Lookback+1, s.cfg.ATRPeriod+2, s.cfg.EMAPeriod+2)
}

// bias is the side the trend filter permits on this bar.
type bias int

const (
	biasAny bias = iota
	biasLong
	biasShort
	biasBlocked
)

func (s *TrendDonchian) trendBias(bars []market.Bar) (bias, float64) {
	if s.cfg.EMAPeriod == 0 {
		return biasAny, 0
	}
	ema, ok := indicators.EMA(indicators.Closes(bars), s.cfg.EMAPeriod)
	if !ok {
		return biasBlocked, 0
	}
	price := bars[len(bars)-1].Close
	switch {
	case price > ema:
		return biasLong, ema
	case price < ema:
		return biasShort, ema
	default:
		return biasBlocked, ema
	}
}

func (s *TrendDonchian) Evaluate(bars []market.Bar) market.Signal {
	s.diag = Diagnostics{}

	if len(bars) < s.MinBars() {
		s.diag.Note = fmt.Sprintf("insufficient history: %d < %d bars", len(bars), s.MinBars())
		return market.NoSignal
	}

	b, ema := s.trendBias(bars)
	s.diag.EMA = ema
	if b == biasBlocked {
		s.diag.Note = "trend filter: price equals ema"
		return market.NoSignal
	}

	ch, ok := indicators.Donchian(bars, s.cfg.Lookback)
	if !ok {
		s.diag.Note = "channel not available"
		return market.NoSignal
	}
	atr, ok := indicators.ATR(bars, s.cfg.ATRPeriod)
	if !ok {
		s.diag.Note = "atr not available"
		return market.NoSignal
	}
	s.diag.Channel, s.diag.ATR, s.diag.HasLevels = ch, atr, true

	cur := bars[len(bars)-1]
	buy, sell := s.cfg.Mode.triggers(cur, ch)
	entry := cur.Close

	if buy && (b == biasAny || b == biasLong) {
		return s.signal(market.SideBuy, entry, atr)
	}
	if sell && (b == biasAny || b == biasShort) {
		return s.signal(market.SideSell, entry, atr)
	}
	return market.NoSignal
}

func (s *TrendDonchian) signal(side market.Side, entry, atr float64) market.Signal {
	if s.cfg.ATRFloorMult > 0 {
		atr = math.Max(atr, s.cfg.ATRFloorMult*entry/10000.0)
	}
	if atr <= 0 || math.IsNaN(atr) || math.IsInf(atr, 0) {
		s.diag.Note = "degenerate atr"
		return market.NoSignal
	}

	stop := entry - side.Dir()*atr
	target := entry + side.Dir()*s.cfg.RR*atr
	return market.NewSignal(side, entry, stop, target, "donchian breakout")
}

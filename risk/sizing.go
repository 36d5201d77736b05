package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/breakout/market"
)

// ErrSizingUnavailable is wrapped by every sizing failure.
var ErrSizingUnavailable = errors.New("sizing unavailable")

type SizingRequest struct {
	Entry        float64
	Stop         float64
	RiskFraction float64
	Equity       float64
	Rules        market.InstrumentRules
}

type SizingResult struct {
	Volume     float64 // broker-valid lots
	RawVolume  float64
	RiskMoney  float64
	Ticks      float64
	LossPerLot float64
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSizingUnavailable, fmt.Sprintf(format, args...))
}

// CalcVolume sizes a trade so that a stop-out loses about
// Equity × RiskFraction:
//
//	ticks        = |entry - stop| / tick_size
//	loss_per_lot = ticks × tick_value
//	lots         = equity × risk_fraction / loss_per_lot
//
// The result is rounded to the nearest volume step and clamped into the
// instrument's volume range.
func CalcVolume(req SizingRequest) (SizingResult, error) {
	if req.RiskFraction <= 0 {
		return SizingResult{}, unavailable("risk fraction %v <= 0", req.RiskFraction)
	}
	r := req.Rules
	if r.TickSize <= 0 || r.TickValue <= 0 {
		return SizingResult{}, unavailable("invalid tick_size/tick_value for %s (tick_size=%v, tick_value=%v)",
			r.Instrument, r.TickSize, r.TickValue)
	}
	distance := abs(req.Entry - req.Stop)
	if distance <= 0 || math.IsNaN(distance) {
		return SizingResult{}, unavailable("stop distance is 0 (entry=%v stop=%v)", req.Entry, req.Stop)
	}
	if req.Equity <= 0 || math.IsNaN(req.Equity) {
		return SizingResult{}, unavailable("equity unavailable (%v)", req.Equity)
	}

	res := SizingResult{
		RiskMoney: req.Equity * req.RiskFraction,
		Ticks:     distance / r.TickSize,
	}
	res.LossPerLot = res.Ticks * r.TickValue
	if res.LossPerLot <= 0 || math.IsInf(res.LossPerLot, 0) {
		return SizingResult{}, unavailable("loss per lot %v <= 0 (ticks=%v, tick_value=%v)",
			res.LossPerLot, res.Ticks, r.TickValue)
	}

	res.RawVolume = res.RiskMoney / res.LossPerLot
	res.Volume = NormalizeVolume(res.RawVolume, r)
	if res.Volume <= 0 {
		return SizingResult{}, unavailable("volume rounded to 0 (raw=%.6f)", res.RawVolume)
	}
	return res, nil
}

// RoundToStep rounds v to the nearest multiple of step. A non-positive
// step leaves v unchanged.
func RoundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return round6(math.Round(v/step) * step)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// NormalizeVolume rounds v to the instrument's volume step and clamps it
// into [VolumeMin, VolumeMax]. A VolumeMax of 0 means no upper bound.
func NormalizeVolume(v float64, r market.InstrumentRules) float64 {
	v = RoundToStep(v, r.VolumeStep)
	if v < r.VolumeMin {
		v = r.VolumeMin
	}
	if r.VolumeMax > 0 && v > r.VolumeMax {
		v = r.VolumeMax
	}
	return math.Max(0, v)
}

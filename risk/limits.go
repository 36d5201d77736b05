package risk

import "github.com/rustyeddy/breakout/market"

// ApplyCaps applies the absolute volume cap and then the money-risk cap.
// The money-risk cap scales volume by cap / (equity × riskFraction) when
// the intended risk exceeds it. The result still needs NormalizeVolume.
func ApplyCaps(volume, riskFraction, equity float64, s Settings) float64 {
	if s.MaxVolume > 0 && volume > s.MaxVolume {
		volume = s.MaxVolume
	}

	if s.MaxRiskMoney > 0 && riskFraction > 0 && equity > 0 {
		intended := equity * riskFraction
		if intended > s.MaxRiskMoney {
			volume *= s.MaxRiskMoney / intended
		}
	}

	if volume < 0 {
		return 0
	}
	return volume
}

// RulesFunc looks up the trading rules of an instrument.
type RulesFunc func(instrument string) (market.InstrumentRules, error)

// PortfolioRiskPercent is the loss, in percent of equity, if every open
// position were stopped out. Positions without a stop, or whose rules
// cannot be fetched, are not counted.
func PortfolioRiskPercent(positions []market.Position, equity float64, rules RulesFunc) float64 {
	if equity <= 0 {
		return 0
	}

	total := 0.0
	for _, p := range positions {
		if p.StopLoss == 0 {
			continue
		}
		r, err := rules(p.Instrument)
		if err != nil {
			continue
		}
		lpl := LossPerLot(p.EntryPrice, p.StopLoss, r.TickSize, r.TickValue)
		if lpl <= 0 {
			continue
		}
		total += lpl * p.Volume
	}
	return total / equity * 100
}

// EffectiveRiskFraction limits the per-trade risk fraction to what is
// left of the global portfolio budget. ok is false when nothing is left.
// A maxTotalPct of 0 disables the budget.
func EffectiveRiskFraction(base, usedPct, maxTotalPct float64) (fraction float64, ok bool) {
	if maxTotalPct <= 0 {
		return base, base > 0
	}
	remaining := maxTotalPct - usedPct
	if remaining <= 0 {
		return 0, false
	}
	eff := min(base*100, remaining) / 100
	if eff <= 0 {
		return 0, false
	}
	return eff, true
}

// MinStopDistanceOK reports whether the stop honours the broker's minimum
// stop distance. A minDistance of 0 means no minimum.
func MinStopDistanceOK(entry, stop, minDistance float64) bool {
	if minDistance <= 0 {
		return true
	}
	return abs(entry-stop) >= minDistance
}

// QuotaReached reports whether the instrument already holds the maximum
// number of positions. Validate guarantees a positive maximum.
func QuotaReached(openCount int, s Settings) bool {
	return openCount >= s.MaxPositionsPerSymbol
}

// TakeProfitAt returns fill ± multiple×R, R = |fill - stop|, pushed out
// to at least minDistance from fill. ok is false when R is 0.
func TakeProfitAt(side market.Side, fill, stop, multiple, minDistance float64) (float64, bool) {
	r := abs(fill - stop)
	if r <= 0 || side == market.SideNone {
		return 0, false
	}
	tp := fill + side.Dir()*multiple*r
	if minDistance > 0 && abs(tp-fill) < minDistance {
		tp = fill + side.Dir()*minDistance
	}
	return tp, true
}

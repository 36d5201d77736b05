package risk

import (
	"fmt"

	"github.com/rustyeddy/breakout/market"
)

// Reason is the audit code attached to every per-bar decision.
type Reason string

const (
	ReasonDataUnavailable   Reason = "DATA_UNAVAILABLE"
	ReasonSameBar           Reason = "SAME_BAR"
	ReasonDailyLossLocked   Reason = "DAILY_LOSS_LOCKED"
	ReasonPositionQuota     Reason = "POSITION_QUOTA"
	ReasonPortfolioRiskCap  Reason = "PORTFOLIO_RISK_CAP"
	ReasonNoSignal          Reason = "NO_SIGNAL"
	ReasonNoStop            Reason = "NO_STOP"
	ReasonStopTooClose      Reason = "STOP_TOO_CLOSE"
	ReasonSizingUnavailable Reason = "SIZING_UNAVAILABLE"
	ReasonVolumeZero        Reason = "VOLUME_ZERO"
	ReasonOrderRejected     Reason = "ORDER_REJECTED"
	ReasonPaperFill         Reason = "PAPER_FILL"
	ReasonOrderFilled       Reason = "ORDER_FILLED"
)

// Violation is a reason the bar did not produce an order.
type Violation struct {
	Code Reason
	Msg  string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Msg)
}

func violation(code Reason, format string, args ...any) *Violation {
	return &Violation{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Budget is the pre-signal part of the limiter: the per-symbol quota and
// the global portfolio budget.
type Budget struct {
	UsedRiskPct   float64
	RiskFraction  float64 // effective fraction for this trade
	OpenPositions int
}

// CheckBudget runs the quota and portfolio budget checks that happen
// before a signal is requested. The budget applies in both sizing modes.
// With fixed volume and no risk fraction only the used-risk cap is
// enforced, since there is no per-trade fraction to scale.
func CheckBudget(s Settings, openCount int, usedPct float64) (Budget, *Violation) {
	b := Budget{UsedRiskPct: usedPct, OpenPositions: openCount, RiskFraction: s.RiskFraction}

	if QuotaReached(openCount, s) {
		return b, violation(ReasonPositionQuota, "open positions %d >= max %d", openCount, s.MaxPositionsPerSymbol)
	}

	if s.MaxTotalRiskPercent > 0 && usedPct >= s.MaxTotalRiskPercent {
		return b, violation(ReasonPortfolioRiskCap, "used risk %.2f%% >= max %.2f%%", usedPct, s.MaxTotalRiskPercent)
	}
	if !s.UseRiskSizing && s.RiskFraction <= 0 {
		return b, nil
	}
	eff, ok := EffectiveRiskFraction(s.RiskFraction, usedPct, s.MaxTotalRiskPercent)
	if !ok {
		return b, violation(ReasonPortfolioRiskCap, "no risk budget left (used %.2f%%)", usedPct)
	}
	b.RiskFraction = eff
	return b, nil
}

// Order is the sized, capped and broker-rounded order for one signal.
type Order struct {
	Volume       float64
	RiskFraction float64
	RiskMoney    float64 // intended, before caps
	Sizing       SizingResult
}

// PlanOrder validates the stop distance, sizes the trade and applies the
// limiter caps followed by the final broker rounding pass.
func PlanOrder(s Settings, entry, stop, riskFraction, equity float64, r market.InstrumentRules) (Order, *Violation) {
	if stop == 0 || entry == stop {
		return Order{}, violation(ReasonNoStop, "signal has no usable stop (entry=%v stop=%v)", entry, stop)
	}
	if !MinStopDistanceOK(entry, stop, r.MinStopDistance) {
		return Order{}, violation(ReasonStopTooClose, "stop distance %.6f < min %.6f", abs(entry-stop), r.MinStopDistance)
	}

	o := Order{RiskFraction: riskFraction}
	if s.UseRiskSizing {
		res, err := CalcVolume(SizingRequest{
			Entry:        entry,
			Stop:         stop,
			RiskFraction: riskFraction,
			Equity:       equity,
			Rules:        r,
		})
		if err != nil {
			return o, violation(ReasonSizingUnavailable, "%v", err)
		}
		o.Sizing = res
		o.RiskMoney = res.RiskMoney
		o.Volume = ApplyCaps(res.Volume, riskFraction, equity, s)
	} else {
		// the money cap scales fixed volume against the intended risk too
		o.RiskMoney = equity * riskFraction
		o.Volume = ApplyCaps(s.FixedVolume, riskFraction, equity, s)
	}

	o.Volume = NormalizeVolume(o.Volume, r)
	if o.Volume <= 0 {
		return o, violation(ReasonVolumeZero, "final volume is 0")
	}
	return o, nil
}

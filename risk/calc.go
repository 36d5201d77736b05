package risk

import "math"

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// LossPerLot is the account-currency loss of one lot if price moves from
// entry to stop: ticks × tickValue.
func LossPerLot(entry, stop, tickSize, tickValue float64) float64 {
	if tickSize <= 0 || tickValue <= 0 {
		return 0
	}
	ticks := abs(entry-stop) / tickSize
	return ticks * tickValue
}

// RR is the reward:risk ratio of a trade plan.
func RR(entry, stop, takeProfit float64) float64 {
	risk := abs(entry - stop)
	reward := abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// RiskPct returns money at risk as a fraction of equity.
func RiskPct(riskMoney, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return riskMoney / equity
}

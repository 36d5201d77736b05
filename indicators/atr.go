package indicators

import (
	"math"

	"github.com/rustyeddy/breakout/market"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(current, previous market.Bar) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)

	return math.Max(highLow, math.Max(highClose, lowClose))
}

// ATR is the Average True Range at the newest bar: the simple mean of the
// last period true ranges. It needs period+1 bars.
func ATR(bars []market.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += TrueRange(bars[i], bars[i-1])
	}
	return finite(sum / float64(period))
}

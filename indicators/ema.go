package indicators

import "github.com/rustyeddy/breakout/market"

// EMA returns the exponential moving average of values at the last value.
// The average is seeded with the first value and updated with a smoothing
// factor of 2/(period+1). It needs at least period values.
func EMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}

	k := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = (v-ema)*k + ema
	}
	return finite(ema)
}

// Closes extracts the close prices of bars.
func Closes(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

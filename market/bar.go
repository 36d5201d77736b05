package market

import "time"

// Bar is one OHLCV sample for a fixed interval. Bar windows are ordered
// oldest first with strictly increasing Time.
type Bar struct {
	time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range reports whether price lies inside the bar's [Low, High] range.
func (b Bar) Range(price float64) bool {
	return b.Low <= price && price <= b.High
}

// Last returns the newest bar of the window.
func Last(bars []Bar) (Bar, bool) {
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}

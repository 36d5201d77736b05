package indicators

import "github.com/rustyeddy/breakout/market"

// Channel is a Donchian channel.
type Channel struct {
	Upper float64
	Lower float64
}

// Donchian returns the highest high and lowest low of the lookback bars
// immediately preceding the newest bar. The newest bar never takes part,
// so a breakout of the channel by that bar is meaningful. It needs
// lookback+2 bars.
func Donchian(bars []market.Bar, lookback int) (Channel, bool) {
	if lookback <= 0 || len(bars) < lookback+2 {
		return Channel{}, false
	}

	window := bars[len(bars)-1-lookback : len(bars)-1]
	ch := Channel{Upper: window[0].High, Lower: window[0].Low}
	for _, b := range window[1:] {
		if b.High > ch.Upper {
			ch.Upper = b.High
		}
		if b.Low < ch.Lower {
			ch.Lower = b.Low
		}
	}

	if _, ok := finite(ch.Upper); !ok {
		return Channel{}, false
	}
	if _, ok := finite(ch.Lower); !ok {
		return Channel{}, false
	}
	return ch, true
}

// SwingLow is the lowest low of the lookback bars preceding the newest bar.
func SwingLow(bars []market.Bar, lookback int) (float64, bool) {
	ch, ok := Donchian(bars, lookback)
	return ch.Lower, ok
}

// SwingHigh is the highest high of the lookback bars preceding the newest bar.
func SwingHigh(bars []market.Bar, lookback int) (float64, bool) {
	ch, ok := Donchian(bars, lookback)
	return ch.Upper, ok
}

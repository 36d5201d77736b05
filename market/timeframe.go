package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar interval code such as "M15" or "H1".
type Timeframe string

var timeframes = map[Timeframe]time.Duration{
	"M1":  time.Minute,
	"M5":  5 * time.Minute,
	"M15": 15 * time.Minute,
	"M30": 30 * time.Minute,
	"H1":  time.Hour,
	"H4":  4 * time.Hour,
	"D1":  24 * time.Hour,
}

func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := timeframes[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe string: %s (valid: M1 M5 M15 M30 H1 H4 D1)", s)
	}
	return tf, nil
}

func (tf Timeframe) Duration() time.Duration {
	return timeframes[tf]
}

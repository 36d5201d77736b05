package market

import "time"

// Position is an open position as reported by the broker. StopLoss and
// TakeProfit are 0 when not set.
type Position struct {
	ID         string
	Instrument string
	Side       Side
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	OpenTime   time.Time
}

package market

import (
	"fmt"
	"strings"
)

type Side int

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "none"
	}
}

// Dir returns +1 for buy, -1 for sell and 0 otherwise.
func (s Side) Dir() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return SideBuy, nil
	case "sell", "short":
		return SideSell, nil
	case "", "none":
		return SideNone, nil
	default:
		return SideNone, fmt.Errorf("unknown side %q", s)
	}
}

// Signal is a strategy decision for the newest bar. A Signal with
// SideNone carries no stop or target.
type Signal struct {
	Side       Side
	Price      float64
	StopLoss   *float64
	TakeProfit *float64
	Reason     string
}

// NoSignal is returned when a strategy declines to trade.
var NoSignal = Signal{}

func NewSignal(side Side, entry, stop, target float64, reason string) Signal {
	return Signal{
		Side:       side,
		Price:      entry,
		StopLoss:   &stop,
		TakeProfit: &target,
		Reason:     reason,
	}
}

func (s Signal) IsTrade() bool {
	return s.Side == SideBuy || s.Side == SideSell
}

// Risk returns R, the distance between entry and stop.
func (s Signal) Risk() float64 {
	if s.StopLoss == nil {
		return 0
	}
	d := s.Price - *s.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

func (s Signal) String() string {
	if !s.IsTrade() {
		return "none"
	}
	sl, tp := "n/a", "n/a"
	if s.StopLoss != nil {
		sl = fmt.Sprintf("%.5f", *s.StopLoss)
	}
	if s.TakeProfit != nil {
		tp = fmt.Sprintf("%.5f", *s.TakeProfit)
	}
	return fmt.Sprintf("%s @%.5f sl=%s tp=%s (%s)", s.Side, s.Price, sl, tp, s.Reason)
}

package sim

import (
	"sort"

	"github.com/rustyeddy/breakout/market"
)

func hitStopLoss(p *market.Position, bar market.Bar) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Side == market.SideBuy {
		return bar.Low <= p.StopLoss
	}
	return bar.High >= p.StopLoss
}

func hitTakeProfit(p *market.Position, bar market.Bar) bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.Side == market.SideBuy {
		return bar.High >= p.TakeProfit
	}
	return bar.Low <= p.TakeProfit
}

func sortPositions(ps []market.Position) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}

package strategies

import "github.com/rustyeddy/breakout/market"

// NoopStrategy never trades. It exercises the guard chain and the
// heartbeat without ever producing an order.
type NoopStrategy struct{}

func (NoopStrategy) Name() string { return "Noop" }

func (NoopStrategy) Evaluate(bars []market.Bar) market.Signal {
	_ = bars
	return market.NoSignal
}

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) market.Bar {
	return market.Bar{Time: t0.Add(time.Duration(i) * 15 * time.Minute), Open: o, High: h, Low: l, Close: c}
}

// window returns n quiet bars closing at 1.1000.
func window(n int) []market.Bar {
	out := make([]market.Bar, n)
	for i := range out {
		out[i] = bar(i, 1.1000, 1.1005, 1.0995, 1.1000)
	}
	return out
}

var eurusd = market.InstrumentRules{
	Instrument: "EUR_USD",
	VolumeMin:  0.01,
	VolumeMax:  100,
	VolumeStep: 0.01,
	TickSize:   0.0001,
	TickValue:  1.0,
}

// stubStrategy returns the same signal on every bar.
type stubStrategy struct {
	sig   market.Signal
	calls int
}

func (s *stubStrategy) Name() string { return "Stub" }

func (s *stubStrategy) Evaluate([]market.Bar) market.Signal {
	s.calls++
	return s.sig
}

func buySignal() market.Signal {
	return market.NewSignal(market.SideBuy, 1.1000, 1.0950, 1.1100, "breakout")
}

// fakeBroker is a scriptable broker.Broker.
type fakeBroker struct {
	mu sync.Mutex

	bars      []market.Bar
	barsErr   error
	account   broker.Account
	acctErr   error
	rules     map[string]market.InstrumentRules
	positions []market.Position

	fill     broker.OrderFill
	orderErr error
	orders   []broker.MarketOrderRequest
	modified map[string][2]float64
	closed   bool
	getBarsN int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		bars:     window(30),
		account:  broker.Account{ID: "fake", Currency: "USD", Balance: 10000, Equity: 10000},
		rules:    map[string]market.InstrumentRules{"EUR_USD": eurusd},
		modified: map[string][2]float64{},
	}
}

func (f *fakeBroker) GetBars(ctx context.Context, instrument string, tf market.Timeframe, count int) ([]market.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getBarsN++
	if f.barsErr != nil {
		return nil, f.barsErr
	}
	return f.bars, nil
}

func (f *fakeBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, f.acctErr
}

func (f *fakeBroker) GetInstrumentRules(ctx context.Context, instrument string) (market.InstrumentRules, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[instrument]
	if !ok {
		return r, broker.Unavailable("rules", context.DeadlineExceeded)
	}
	return r, nil
}

func (f *fakeBroker) GetOpenPositions(ctx context.Context, instrument string) ([]market.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []market.Position
	for _, p := range f.positions {
		if instrument == "" || p.Instrument == instrument {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBroker) SubmitMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderFill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	if f.orderErr != nil {
		return broker.OrderFill{}, f.orderErr
	}
	if f.fill.Accepted {
		f.positions = append(f.positions, market.Position{
			ID:         f.fill.PositionID,
			Instrument: req.Instrument,
			Side:       req.Side,
			Volume:     req.Volume,
			EntryPrice: f.fill.Price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
		})
	}
	return f.fill, nil
}

func (f *fakeBroker) ModifyPositionStops(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modified[positionID] = [2]float64{stopLoss, takeProfit}
	return nil
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBroker) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// memJournal keeps records in memory.
type memJournal struct {
	decisions []journal.DecisionRecord
	fills     []journal.FillRecord
	equity    []journal.EquitySnapshot
}

func (j *memJournal) RecordDecision(d journal.DecisionRecord) error {
	j.decisions = append(j.decisions, d)
	return nil
}

func (j *memJournal) RecordFill(f journal.FillRecord) error {
	j.fills = append(j.fills, f)
	return nil
}

func (j *memJournal) RecordEquity(e journal.EquitySnapshot) error {
	j.equity = append(j.equity, e)
	return nil
}

func (j *memJournal) Close() error { return nil }

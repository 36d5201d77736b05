// Package sim is an in-memory broker that replays a bar series. Orders
// fill at the close of the newest visible bar and stops and targets
// trigger on the range of later bars.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/internal/id"
	"github.com/rustyeddy/breakout/market"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrNoBars           = errors.New("no bars loaded")
)

// Config describes the simulated account.
type Config struct {
	AccountID string
	Currency  string
	Balance   float64

	// Slippage is added against the trader on every fill, in price units.
	Slippage float64

	// Rules overrides the lot rules derived from market.Instruments.
	Rules map[string]market.InstrumentRules
}

// Trade is a closed position.
type Trade struct {
	market.Position
	ExitPrice  float64
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
}

type Engine struct {
	mu sync.Mutex

	acct     broker.Account
	slippage float64
	rules    map[string]market.InstrumentRules

	series map[string][]market.Bar
	cursor int // number of visible bars

	open   map[string]*market.Position
	closed []Trade

	unavailable error
	rejectNext  string
	closedConn  bool
}

var _ broker.Broker = (*Engine)(nil)
var _ broker.PnLReporter = (*Engine)(nil)

func NewEngine(cfg Config) *Engine {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.AccountID == "" {
		cfg.AccountID = "sim-" + id.New()
	}
	rules := make(map[string]market.InstrumentRules, len(cfg.Rules))
	for k, v := range cfg.Rules {
		rules[k] = v
	}
	return &Engine{
		acct: broker.Account{
			ID:       cfg.AccountID,
			Currency: cfg.Currency,
			Balance:  cfg.Balance,
			Equity:   cfg.Balance,
		},
		slippage: cfg.Slippage,
		rules:    rules,
		series:   make(map[string][]market.Bar),
		open:     make(map[string]*market.Position),
	}
}

// Load installs the bar series of an instrument. visible bars are shown
// immediately; the rest are revealed by Advance.
func (e *Engine) Load(instrument string, bars []market.Bar, visible int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.series[instrument] = bars
	e.cursor = min(max(visible, 0), len(bars))
	e.revalueLocked()
}

// Advance reveals the next bar, triggers stops and targets on it and
// revalues the account. It returns false when the series is exhausted.
func (e *Engine) Advance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	longest := 0
	for _, s := range e.series {
		longest = max(longest, len(s))
	}
	if e.cursor >= longest {
		return false
	}
	e.cursor++

	for instrument, s := range e.series {
		if e.cursor > len(s) {
			continue
		}
		bar := s[e.cursor-1]
		e.triggerLocked(instrument, bar)
	}
	e.revalueLocked()
	return true
}

// SetUnavailable makes every call fail with ErrUnavailable until cleared
// with nil.
func (e *Engine) SetUnavailable(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unavailable = err
}

// RejectNext rejects the next market order with reason.
func (e *Engine) RejectNext(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectNext = reason
}

func (e *Engine) check(op string) error {
	if e.closedConn {
		return fmt.Errorf("%s: %w", op, broker.ErrNotConnected)
	}
	if e.unavailable != nil {
		return broker.Unavailable(op, e.unavailable)
	}
	return nil
}

func (e *Engine) visibleLocked(instrument string) []market.Bar {
	s := e.series[instrument]
	return s[:min(e.cursor, len(s))]
}

func (e *Engine) GetBars(ctx context.Context, instrument string, tf market.Timeframe, count int) ([]market.Bar, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check("get bars"); err != nil {
		return nil, err
	}
	vis := e.visibleLocked(instrument)
	if len(vis) == 0 {
		return nil, broker.Unavailable("get bars", fmt.Errorf("%w for %s", ErrNoBars, instrument))
	}
	if count > 0 && len(vis) > count {
		vis = vis[len(vis)-count:]
	}
	out := make([]market.Bar, len(vis))
	copy(out, vis)
	return out, nil
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check("get account"); err != nil {
		return broker.Account{}, err
	}
	return e.acct, nil
}

func (e *Engine) GetInstrumentRules(ctx context.Context, instrument string) (market.InstrumentRules, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check("get instrument rules"); err != nil {
		return market.InstrumentRules{}, err
	}
	return e.rulesLocked(instrument)
}

func (e *Engine) rulesLocked(instrument string) (market.InstrumentRules, error) {
	if r, ok := e.rules[instrument]; ok {
		return r, nil
	}
	meta, ok := market.Instruments[instrument]
	if !ok {
		return market.InstrumentRules{}, fmt.Errorf("unknown instrument %q", instrument)
	}
	mid := 0.0
	if last, ok := market.Last(e.visibleLocked(instrument)); ok {
		mid = last.Close
	}
	r, err := market.LotRules(meta, e.acct.Currency, mid)
	if err != nil {
		return market.InstrumentRules{}, broker.Unavailable("get instrument rules", err)
	}
	return r, nil
}

func (e *Engine) GetOpenPositions(ctx context.Context, instrument string) ([]market.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check("get open positions"); err != nil {
		return nil, err
	}
	out := []market.Position{}
	for _, p := range e.open {
		if instrument == "" || p.Instrument == instrument {
			out = append(out, *p)
		}
	}
	sortPositions(out)
	return out, nil
}

func (e *Engine) SubmitMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderFill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check("market order"); err != nil {
		return broker.OrderFill{}, err
	}
	if err := req.Validate(); err != nil {
		return broker.OrderFill{}, &broker.RejectionError{Op: "market order", Reason: err.Error()}
	}
	if reason := e.rejectNext; reason != "" {
		e.rejectNext = ""
		return broker.OrderFill{Reason: reason}, &broker.RejectionError{Op: "market order", Reason: reason}
	}

	last, ok := market.Last(e.visibleLocked(req.Instrument))
	if !ok {
		return broker.OrderFill{}, broker.Unavailable("market order", fmt.Errorf("%w for %s", ErrNoBars, req.Instrument))
	}

	price := last.Close + req.Side.Dir()*e.slippage
	orderID := id.At(last.Time)
	p := &market.Position{
		ID:         id.At(last.Time),
		Instrument: req.Instrument,
		Side:       req.Side,
		Volume:     req.Volume,
		EntryPrice: price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   last.Time,
	}
	e.open[p.ID] = p
	e.revalueLocked()

	return broker.OrderFill{
		Accepted:   true,
		OrderID:    orderID,
		PositionID: p.ID,
		Price:      price,
	}, nil
}

func (e *Engine) ModifyPositionStops(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check("modify stops"); err != nil {
		return err
	}
	p, ok := e.open[positionID]
	if !ok {
		return fmt.Errorf("modify stops: %w: %q", ErrPositionNotFound, positionID)
	}
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	return nil
}

// RealizedPnL sums the P/L of trades closed at or after since.
func (e *Engine) RealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check("realized pnl"); err != nil {
		return 0, err
	}
	total := 0.0
	for _, t := range e.closed {
		if !t.CloseTime.Before(since) {
			total += t.RealizedPL
		}
	}
	return total, nil
}

// Trades returns the closed trades in closing order.
func (e *Engine) Trades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Trade, len(e.closed))
	copy(out, e.closed)
	return out
}

// ClosePosition closes a position at the newest close.
func (e *Engine) ClosePosition(ctx context.Context, positionID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check("close position"); err != nil {
		return err
	}
	p, ok := e.open[positionID]
	if !ok {
		return fmt.Errorf("close position: %w: %q", ErrPositionNotFound, positionID)
	}
	last, ok := market.Last(e.visibleLocked(p.Instrument))
	if !ok {
		return broker.Unavailable("close position", ErrNoBars)
	}
	if reason == "" {
		reason = "ManualClose"
	}
	e.closeLocked(p, last.Close, last.Time, reason)
	e.revalueLocked()
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closedConn = true
	return nil
}

// triggerLocked closes positions whose stop or target lies inside bar.
// When both do, the stop wins.
func (e *Engine) triggerLocked(instrument string, bar market.Bar) {
	for _, p := range e.sortedOpenLocked() {
		if p.Instrument != instrument {
			continue
		}
		switch {
		case hitStopLoss(p, bar):
			e.closeLocked(p, p.StopLoss, bar.Time, "StopLoss")
		case hitTakeProfit(p, bar):
			e.closeLocked(p, p.TakeProfit, bar.Time, "TakeProfit")
		}
	}
}

func (e *Engine) closeLocked(p *market.Position, exit float64, at time.Time, reason string) {
	pl := e.plLocked(p, exit)
	e.acct.Balance += pl
	e.closed = append(e.closed, Trade{
		Position:   *p,
		ExitPrice:  exit,
		CloseTime:  at,
		RealizedPL: pl,
		Reason:     reason,
	})
	delete(e.open, p.ID)
}

func (e *Engine) plLocked(p *market.Position, mark float64) float64 {
	r, err := e.rulesLocked(p.Instrument)
	if err != nil || r.TickSize <= 0 {
		return 0
	}
	ticks := (mark - p.EntryPrice) / r.TickSize
	return p.Side.Dir() * ticks * r.TickValue * p.Volume
}

func (e *Engine) revalueLocked() {
	equity := e.acct.Balance
	for _, p := range e.open {
		last, ok := market.Last(e.visibleLocked(p.Instrument))
		if !ok {
			continue
		}
		equity += e.plLocked(p, last.Close)
	}
	e.acct.Equity = equity
}

func (e *Engine) sortedOpenLocked() []*market.Position {
	out := make([]*market.Position, 0, len(e.open))
	for _, p := range e.open {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

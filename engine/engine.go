// Package engine is the bar-driven control loop. It sequences the daily
// loss guard, the position quota, the portfolio risk budget, the strategy,
// sizing and order placement exactly once per newly closed bar.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/strategies"
)

// Mode selects whether accepted orders are sent to the broker.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paper", "":
		return ModePaper, nil
	case "live":
		return ModeLive, nil
	default:
		return "", fmt.Errorf("unknown mode %q (supported: paper, live)", s)
	}
}

// tpTolerance is how close an existing take-profit must be to the exact
// reward multiple for the adjustment to be skipped.
const tpTolerance = 1e-6

var ErrNotConfigured = errors.New("engine: risk settings not configured")

// Metrics is what the engine reports to a metrics backend.
// *metrics.Recorder implements it.
type Metrics interface {
	RecordBar(instrument string)
	RecordDecision(instrument, action, reason string)
	RecordOrder(instrument, side, mode string)
	RecordError(kind string)
	SetEquity(v float64)
	SetUsedRisk(pct float64)
	SetGuardLocked(locked bool)
	ObserveBar(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordBar(string)                      {}
func (nopMetrics) RecordDecision(string, string, string) {}
func (nopMetrics) RecordOrder(string, string, string)    {}
func (nopMetrics) RecordError(string)                    {}
func (nopMetrics) SetEquity(float64)                     {}
func (nopMetrics) SetUsedRisk(float64)                   {}
func (nopMetrics) SetGuardLocked(bool)                   {}
func (nopMetrics) ObserveBar(time.Duration)              {}

// Options wires an Engine. Broker and Strategy are required.
type Options struct {
	Broker     broker.Broker
	Strategy   strategies.Strategy
	Journal    journal.Journal // nil discards
	Metrics    Metrics         // nil discards
	Logger     zerolog.Logger
	Instrument string
	Timeframe  market.Timeframe
	Bars       int           // history requested per poll
	Polling    time.Duration // wait between polls
	Mode       Mode
	Location   *time.Location   // calendar of the daily loss guard
	Clock      func() time.Time // wall clock, time.Now when nil
}

// State is the memory the engine carries from one bar to the next.
type State struct {
	LastBar time.Time
	Guard   risk.DailyGuardState
}

type Engine struct {
	broker     broker.Broker
	strategy   strategies.Strategy
	journal    journal.Journal
	metrics    Metrics
	log        zerolog.Logger
	instrument string
	tf         market.Timeframe
	bars       int
	polling    time.Duration
	mode       Mode
	loc        *time.Location
	now        func() time.Time

	settings   risk.Settings
	configured bool
	guard      *risk.DailyLossGuard
	lastBar    time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Broker == nil {
		return nil, errors.New("engine: broker is required")
	}
	if opts.Strategy == nil {
		return nil, errors.New("engine: strategy is required")
	}
	if opts.Instrument == "" {
		return nil, errors.New("engine: instrument is required")
	}
	tf, err := market.ParseTimeframe(string(opts.Timeframe))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		broker:     opts.Broker,
		strategy:   opts.Strategy,
		journal:    opts.Journal,
		metrics:    opts.Metrics,
		instrument: opts.Instrument,
		tf:         tf,
		bars:       opts.Bars,
		polling:    opts.Polling,
		mode:       mode,
		loc:        opts.Location,
		now:        opts.Clock,
	}
	if e.journal == nil {
		e.journal = journal.Discard
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.bars <= 0 {
		e.bars = 500
	}
	if e.polling <= 0 {
		e.polling = 5 * time.Second
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.log = opts.Logger.With().
		Str("component", "engine").
		Str("instrument", e.instrument).
		Str("strategy", e.strategy.Name()).
		Logger()
	return e, nil
}

// Configure installs the risk settings. It must be called before the
// first bar. Calling it again keeps the guard's state for the day.
func (e *Engine) Configure(s risk.Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("engine: invalid risk settings: %w", err)
	}

	guard := risk.NewDailyLossGuard(s, e.loc, e.log)
	if e.guard != nil {
		guard.SetState(e.guard.State())
	}
	e.settings = s
	e.guard = guard
	e.configured = true

	e.log.Info().
		Bool("risk_sizing", s.UseRiskSizing).
		Float64("risk_pct", s.RiskFraction*100).
		Int("max_positions", s.MaxPositionsPerSymbol).
		Float64("max_total_risk_pct", s.MaxTotalRiskPercent).
		Float64("max_daily_loss_pct", s.MaxDailyLossPercent).
		Float64("max_daily_loss_money", s.MaxDailyLossMoney).
		Msg("risk settings configured")
	return nil
}

func (e *Engine) Settings() risk.Settings { return e.settings }

func (e *Engine) Mode() Mode { return e.mode }

func (e *Engine) State() State {
	st := State{LastBar: e.lastBar}
	if e.guard != nil {
		st.Guard = e.guard.State()
	}
	return st
}

// SetState restores state saved by State. Configure must run first.
func (e *Engine) SetState(st State) {
	e.lastBar = st.LastBar
	if e.guard != nil {
		e.guard.SetState(st.Guard)
	}
}

package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/internal/id"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/strategies"
)

// ActionKind is what the engine did with a bar.
type ActionKind string

const (
	ActionSkipped     ActionKind = "skipped"
	ActionPaperFill   ActionKind = "paper_fill"
	ActionOrderFilled ActionKind = "order_filled"
	ActionRejected    ActionKind = "rejected"
)

// Action is the outcome of OnNewBar.
type Action struct {
	Kind       ActionKind
	Reason     risk.Reason
	DecisionID string
	BarTime    time.Time
	Signal     market.Signal

	Side         market.Side
	Entry        float64
	StopLoss     float64
	TakeProfit   float64
	Volume       float64
	RiskFraction float64
	Equity       float64
	UsedRiskPct  float64

	OrderID    string
	PositionID string
	FillPrice  float64
	Message    string
}

func (a Action) Traded() bool {
	return a.Kind == ActionPaperFill || a.Kind == ActionOrderFilled
}

// barContext holds everything derived once per bar. The logged and the
// enforced numbers both come from here.
type barContext struct {
	bar       market.Bar
	now       time.Time
	account   broker.Account
	rules     market.InstrumentRules
	positions []market.Position // all instruments
	openCount int               // this instrument
	usedPct   float64
}

// OnNewBar runs the decision pipeline for the newest bar of bars. A bar
// that is not newer than the last processed one is a SAME_BAR no-op.
//
// Recoverable conditions are reported through the Action. The error is
// set when broker data could not be fetched; the bar is then left
// unprocessed so the next poll retries it.
func (e *Engine) OnNewBar(ctx context.Context, bars []market.Bar) (Action, error) {
	if !e.configured {
		return Action{}, ErrNotConfigured
	}

	last, ok := market.Last(bars)
	if !ok {
		act := e.dataUnavailable(time.Time{}, "no bars")
		return act, broker.Unavailable("on new bar", fmt.Errorf("empty bar window for %s", e.instrument))
	}
	if !e.lastBar.IsZero() && !last.Time.After(e.lastBar) {
		return Action{Kind: ActionSkipped, Reason: risk.ReasonSameBar, BarTime: last.Time}, nil
	}

	bc, err := e.load(ctx, last)
	if err != nil {
		return e.dataUnavailable(last.Time, err.Error()), err
	}
	e.lastBar = last.Time
	e.metrics.RecordBar(e.instrument)
	e.metrics.SetEquity(bc.account.Equity)
	e.metrics.SetUsedRisk(bc.usedPct)
	e.heartbeat(ctx, bc)

	act := e.decide(ctx, bc, bars)
	act.DecisionID = id.At(bc.bar.Time)
	act.BarTime = bc.bar.Time
	act.Equity = bc.account.Equity
	act.UsedRiskPct = bc.usedPct

	e.record(bc, act)
	return act, nil
}

// load fetches the broker state a decision needs. Nothing is mutated, so
// a failure leaves the bar to be retried.
func (e *Engine) load(ctx context.Context, bar market.Bar) (barContext, error) {
	bc := barContext{bar: bar, now: e.now()}

	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return bc, fmt.Errorf("account: %w", err)
	}
	bc.account = acct

	positions, err := e.broker.GetOpenPositions(ctx, "")
	if err != nil {
		return bc, fmt.Errorf("open positions: %w", err)
	}
	bc.positions = positions
	for _, p := range positions {
		if p.Instrument == e.instrument {
			bc.openCount++
		}
	}

	rules, err := e.broker.GetInstrumentRules(ctx, e.instrument)
	if err != nil {
		return bc, fmt.Errorf("instrument rules: %w", err)
	}
	bc.rules = rules

	cache := map[string]market.InstrumentRules{e.instrument: rules}
	bc.usedPct = risk.PortfolioRiskPercent(positions, acct.Equity, func(instrument string) (market.InstrumentRules, error) {
		if r, ok := cache[instrument]; ok {
			return r, nil
		}
		r, err := e.broker.GetInstrumentRules(ctx, instrument)
		if err != nil {
			return r, err
		}
		cache[instrument] = r
		return r, nil
	})
	return bc, nil
}

func (e *Engine) heartbeat(ctx context.Context, bc barContext) {
	ev := e.log.Info().
		Time("bar", bc.bar.Time).
		Float64("close", bc.bar.Close).
		Float64("equity", bc.account.Equity).
		Float64("used_risk_pct", bc.usedPct).
		Int("open_positions", bc.openCount)

	if pr, ok := e.broker.(broker.PnLReporter); ok {
		pnl, err := pr.RealizedPnL(ctx, bc.now.Add(-24*time.Hour))
		if err != nil {
			e.log.Debug().Err(err).Msg("realized pnl unavailable")
		} else {
			ev = ev.Float64("realized_24h", pnl)
		}
	}
	ev.Msg("new bar")
}

func (e *Engine) decide(ctx context.Context, bc barContext, bars []market.Bar) Action {
	allowed := e.guard.Check(bc.now, bc.account.Equity)
	e.metrics.SetGuardLocked(!allowed)
	if !allowed {
		money, pct := e.guard.Drawdown(bc.account.Equity)
		return skipped(risk.ReasonDailyLossLocked, fmt.Sprintf("daily drawdown %.2f (%.2f%%)", money, pct))
	}

	budget, v := risk.CheckBudget(e.settings, bc.openCount, bc.usedPct)
	if v != nil {
		return skipped(v.Code, v.Msg)
	}
	if budget.RiskFraction < e.settings.RiskFraction {
		e.log.Info().
			Float64("risk_pct", e.settings.RiskFraction*100).
			Float64("effective_pct", budget.RiskFraction*100).
			Float64("used_risk_pct", bc.usedPct).
			Float64("max_total_risk_pct", e.settings.MaxTotalRiskPercent).
			Msg("risk scaled down by portfolio budget")
	}

	sig := e.strategy.Evaluate(bars)
	if !sig.IsTrade() {
		e.noSignal(bc.bar)
		return skipped(risk.ReasonNoSignal, "")
	}

	act := Action{
		Signal:       sig,
		Side:         sig.Side,
		Entry:        sig.Price,
		RiskFraction: budget.RiskFraction,
	}
	if sig.StopLoss == nil {
		act.Kind, act.Reason = ActionSkipped, risk.ReasonNoStop
		act.Message = "signal without stop"
		return act
	}
	act.StopLoss = *sig.StopLoss
	if sig.TakeProfit != nil {
		act.TakeProfit = *sig.TakeProfit
	}

	order, v := risk.PlanOrder(e.settings, sig.Price, act.StopLoss, budget.RiskFraction, bc.account.Equity, bc.rules)
	if v != nil {
		act.Kind, act.Reason, act.Message = ActionSkipped, v.Code, v.Msg
		return act
	}
	act.Volume = order.Volume
	e.log.Debug().
		Float64("raw", order.Sizing.RawVolume).
		Float64("risk_money", order.RiskMoney).
		Float64("risk_of_equity_pct", risk.RiskPct(order.RiskMoney, bc.account.Equity)*100).
		Float64("final", order.Volume).
		Float64("volume_min", bc.rules.VolumeMin).
		Float64("volume_step", bc.rules.VolumeStep).
		Float64("volume_max", bc.rules.VolumeMax).
		Msg("volume")

	if e.mode == ModePaper {
		act.Kind, act.Reason = ActionPaperFill, risk.ReasonPaperFill
		act.OrderID = id.At(bc.bar.Time)
		act.FillPrice = sig.Price
		return act
	}
	return e.submit(ctx, bc, act)
}

func skipped(reason risk.Reason, msg string) Action {
	return Action{Kind: ActionSkipped, Reason: reason, Message: msg}
}

func (e *Engine) noSignal(bar market.Bar) {
	ev := e.log.Debug().
		Float64("close", bar.Close).
		Float64("high", bar.High).
		Float64("low", bar.Low)
	if d, ok := e.strategy.(strategies.Diagnoser); ok {
		diag := d.Diagnostics()
		if diag.HasLevels {
			ev = ev.Float64("donchian_hi", diag.Channel.Upper).
				Float64("donchian_lo", diag.Channel.Lower).
				Float64("atr", diag.ATR)
		}
		if diag.EMA != 0 {
			ev = ev.Float64("ema", diag.EMA)
		}
		if diag.Note != "" {
			ev = ev.Str("note", diag.Note)
		}
	}
	ev.Msg("no signal")
}

// submit places a live market order and, once filled, moves the target
// to the exact reward multiple measured from the real fill price.
func (e *Engine) submit(ctx context.Context, bc barContext, act Action) Action {
	req := broker.MarketOrderRequest{
		Instrument: e.instrument,
		Side:       act.Side,
		Volume:     act.Volume,
		StopLoss:   act.StopLoss,
		TakeProfit: act.TakeProfit,
		Tag:        fmt.Sprintf("%s: risk=%.2f%%", e.strategy.Name(), e.settings.RiskFraction*100),
	}

	fill, err := e.broker.SubmitMarketOrder(ctx, req)
	if err != nil || !fill.Accepted {
		act.Kind, act.Reason = ActionRejected, risk.ReasonOrderRejected
		switch {
		case err != nil:
			act.Message = err.Error()
			if broker.IsUnavailable(err) {
				e.metrics.RecordError("unavailable")
			}
		case fill.Reason != "":
			act.Message = fill.Reason
		default:
			act.Message = "order not accepted"
		}
		e.log.Error().Err(err).Str("side", act.Side.String()).Float64("volume", act.Volume).Msg("order failed")
		return act
	}

	act.Kind, act.Reason = ActionOrderFilled, risk.ReasonOrderFilled
	act.OrderID, act.PositionID, act.FillPrice = fill.OrderID, fill.PositionID, fill.Price
	if act.FillPrice <= 0 {
		act.FillPrice = act.Entry
	}

	if tp, ok := e.adjustTakeProfit(ctx, bc, act); ok {
		act.TakeProfit = tp
	}
	return act
}

// rewardMultiple is the target distance of sig in units of R.
func rewardMultiple(sig market.Signal) (float64, bool) {
	if sig.StopLoss == nil || sig.TakeProfit == nil {
		return 0, false
	}
	m := risk.RR(sig.Price, *sig.StopLoss, *sig.TakeProfit)
	return m, m > 0
}

func (e *Engine) adjustTakeProfit(ctx context.Context, bc barContext, act Action) (float64, bool) {
	multiple, ok := rewardMultiple(act.Signal)
	if !ok {
		return 0, false
	}
	log := e.log.With().Str("position", act.PositionID).Logger()

	pos, ok := e.findPosition(ctx, act.PositionID)
	if !ok {
		log.Warn().Msg("no open position found for take-profit adjustment")
		return 0, false
	}
	fill := pos.EntryPrice
	if fill <= 0 {
		fill = act.FillPrice
	}

	tp, ok := risk.TakeProfitAt(act.Side, fill, act.StopLoss, multiple, bc.rules.MinStopDistance)
	if !ok {
		log.Warn().Float64("fill", fill).Float64("sl", act.StopLoss).Msg("R is 0, take-profit not adjusted")
		return 0, false
	}
	if math.Abs(pos.TakeProfit-tp) <= tpTolerance {
		log.Info().Float64("tp", pos.TakeProfit).Msg("take-profit already at target multiple")
		return pos.TakeProfit, true
	}

	if err := e.broker.ModifyPositionStops(ctx, pos.ID, act.StopLoss, tp); err != nil {
		log.Warn().Err(err).Float64("tp", tp).Msg("take-profit adjustment failed")
		return 0, false
	}
	log.Info().
		Float64("tp", tp).
		Float64("fill", fill).
		Float64("sl", act.StopLoss).
		Float64("r", math.Abs(fill-act.StopLoss)).
		Float64("multiple", multiple).
		Msg("take-profit adjusted from fill")
	return tp, true
}

// findPosition returns the position opened by the fill, or the newest
// position of the instrument when the broker did not report an ID.
func (e *Engine) findPosition(ctx context.Context, positionID string) (market.Position, bool) {
	positions, err := e.broker.GetOpenPositions(ctx, e.instrument)
	if err != nil || len(positions) == 0 {
		return market.Position{}, false
	}
	if positionID != "" {
		for _, p := range positions {
			if p.ID == positionID {
				return p, true
			}
		}
		return market.Position{}, false
	}
	newest := positions[0]
	for _, p := range positions[1:] {
		if p.OpenTime.After(newest.OpenTime) {
			newest = p
		}
	}
	return newest, true
}

func (e *Engine) dataUnavailable(barTime time.Time, msg string) Action {
	e.metrics.RecordDecision(e.instrument, string(ActionSkipped), string(risk.ReasonDataUnavailable))
	e.log.Warn().Time("bar", barTime).Str("reason", string(risk.ReasonDataUnavailable)).Msg(msg)
	return Action{Kind: ActionSkipped, Reason: risk.ReasonDataUnavailable, BarTime: barTime, Message: msg}
}

// record logs, journals and counts a decision.
func (e *Engine) record(bc barContext, act Action) {
	e.metrics.RecordDecision(e.instrument, string(act.Kind), string(act.Reason))

	var ev *zerolog.Event
	switch act.Kind {
	case ActionRejected:
		ev = e.log.Error()
	case ActionPaperFill, ActionOrderFilled:
		ev = e.log.Info()
	default:
		if act.Reason == risk.ReasonNoSignal {
			ev = e.log.Debug()
		} else {
			ev = e.log.Info()
		}
	}
	ev = ev.Str("decision", act.DecisionID).
		Str("action", string(act.Kind)).
		Str("reason", string(act.Reason)).
		Float64("equity", act.Equity).
		Float64("used_risk_pct", act.UsedRiskPct)
	if act.Side != market.SideNone {
		ev = ev.Str("side", act.Side.String()).
			Float64("volume", act.Volume).
			Float64("entry", act.Entry).
			Float64("sl", act.StopLoss).
			Float64("tp", act.TakeProfit)
	}
	if act.Message != "" {
		ev = ev.Str("detail", act.Message)
	}
	ev.Msg("decision")

	d := journal.DecisionRecord{
		ID:          act.DecisionID,
		Time:        bc.now,
		BarTime:     act.BarTime,
		Instrument:  e.instrument,
		Strategy:    e.strategy.Name(),
		Action:      string(act.Kind),
		Reason:      string(act.Reason),
		Entry:       act.Entry,
		StopLoss:    act.StopLoss,
		TakeProfit:  act.TakeProfit,
		Volume:      act.Volume,
		RiskPct:     act.RiskFraction * 100,
		Equity:      act.Equity,
		UsedRiskPct: act.UsedRiskPct,
		Message:     act.Message,
	}
	if act.Side != market.SideNone {
		d.Side = act.Side.String()
	}
	if err := e.journal.RecordDecision(d); err != nil {
		e.metrics.RecordError("journal")
		e.log.Error().Err(err).Msg("journal decision")
	}

	if act.Traded() {
		e.metrics.RecordOrder(e.instrument, act.Side.String(), string(e.mode))
		fill := journal.FillRecord{
			OrderID:    act.OrderID,
			PositionID: act.PositionID,
			DecisionID: act.DecisionID,
			Time:       bc.now,
			Instrument: e.instrument,
			Side:       act.Side.String(),
			Volume:     act.Volume,
			Requested:  act.Entry,
			Price:      act.FillPrice,
			StopLoss:   act.StopLoss,
			TakeProfit: act.TakeProfit,
			Paper:      act.Kind == ActionPaperFill,
		}
		if err := e.journal.RecordFill(fill); err != nil {
			e.metrics.RecordError("journal")
			e.log.Error().Err(err).Msg("journal fill")
		}
	}

	snap := journal.EquitySnapshot{
		Time:        bc.now,
		Balance:     bc.account.Balance,
		Equity:      bc.account.Equity,
		UsedRiskPct: bc.usedPct,
	}
	if err := e.journal.RecordEquity(snap); err != nil {
		e.metrics.RecordError("journal")
		e.log.Error().Err(err).Msg("journal equity")
	}
}

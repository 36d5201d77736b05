package risk

import (
	"time"

	"github.com/rs/zerolog"
)

// DailyGuardState is the persistent state of a DailyLossGuard. Day is
// midnight of the calendar day the baseline was taken on.
type DailyGuardState struct {
	Day            time.Time
	BaselineEquity float64
	Locked         bool
}

// DailyLossGuard is a circuit breaker on intraday drawdown. It is ARMED
// until the drawdown from the day's opening equity reaches either limit,
// then LOCKED until the next calendar day. It only blocks new entries.
type DailyLossGuard struct {
	maxLossPct   float64
	maxLossMoney float64
	loc          *time.Location
	state        DailyGuardState
	log          zerolog.Logger
}

// NewDailyLossGuard builds a guard from the daily loss limits of s. Days
// roll over at midnight in loc (UTC when nil).
func NewDailyLossGuard(s Settings, loc *time.Location, log zerolog.Logger) *DailyLossGuard {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyLossGuard{
		maxLossPct:   s.MaxDailyLossPercent,
		maxLossMoney: s.MaxDailyLossMoney,
		loc:          loc,
		log:          log.With().Str("component", "daily_guard").Logger(),
	}
}

func (g *DailyLossGuard) State() DailyGuardState { return g.state }

func (g *DailyLossGuard) SetState(st DailyGuardState) { g.state = st }

func (g *DailyLossGuard) Enabled() bool {
	return g.maxLossPct > 0 || g.maxLossMoney > 0
}

func (g *DailyLossGuard) day(now time.Time) time.Time {
	y, m, d := now.In(g.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, g.loc)
}

// Check updates the guard with the current equity and reports whether
// new entries are allowed.
func (g *DailyLossGuard) Check(now time.Time, equity float64) bool {
	today := g.day(now)
	if !g.state.Day.Equal(today) {
		g.state = DailyGuardState{Day: today, BaselineEquity: equity}
		g.log.Info().
			Time("day", today).
			Float64("baseline", equity).
			Msg("daily guard reset")
	}

	if g.state.Locked {
		return false
	}
	if !g.Enabled() {
		return true
	}

	// A baseline taken while equity was unavailable is replaced by the
	// first real reading.
	if g.state.BaselineEquity <= 0 {
		g.state.BaselineEquity = equity
		return true
	}

	dd := max(0, g.state.BaselineEquity-equity)
	ddPct := dd / g.state.BaselineEquity * 100

	hitMoney := g.maxLossMoney > 0 && dd >= g.maxLossMoney
	hitPct := g.maxLossPct > 0 && ddPct >= g.maxLossPct
	if hitMoney || hitPct {
		g.state.Locked = true
		g.log.Warn().
			Float64("baseline", g.state.BaselineEquity).
			Float64("equity", equity).
			Float64("drawdown", dd).
			Float64("drawdown_pct", ddPct).
			Msg("daily loss limit reached, trading locked for the day")
		return false
	}
	return true
}

// Drawdown returns the drawdown from the day's baseline in money and percent.
func (g *DailyLossGuard) Drawdown(equity float64) (money, pct float64) {
	if g.state.BaselineEquity <= 0 {
		return 0, 0
	}
	money = max(0, g.state.BaselineEquity-equity)
	return money, money / g.state.BaselineEquity * 100
}

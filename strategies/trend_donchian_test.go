package strategies

import (
	"testing"

	"github.com/rustyeddy/breakout/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrend(t *testing.T, mode BreakoutMode, ema int, floor float64) *TrendDonchian {
	t.Helper()
	s, err := NewTrendDonchian(TrendDonchianConfig{
		Lookback:     5,
		ATRPeriod:    3,
		RR:           2,
		EMAPeriod:    ema,
		Mode:         mode,
		ATRFloorMult: floor,
	})
	require.NoError(t, err)
	return s
}

func TestTrendDonchian_MinBars(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 6, newTestTrend(t, ModeClose, 0, 0).MinBars())
	assert.Equal(t, 52, newTestTrend(t, ModeClose, 50, 0).MinBars())

	s := newTestTrend(t, ModeClose, 0, 0)
	// lookback+1 bars pass the history check but the channel still needs
	// lookback+2
	bars := next(flatBars(5, 1.1, 0.001), 1.1, 1.2, 1.09, 1.19)
	assert.Equal(t, market.NoSignal, s.Evaluate(bars))
}

func TestTrendDonchian_Buy(t *testing.T) {
	t.Parallel()

	for _, ema := range []int{0, 5} {
		s := newTestTrend(t, ModeClose, ema, 0)
		bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1040, 1.0995, 1.1030)

		sig := s.Evaluate(bars)
		require.Equal(t, market.SideBuy, sig.Side, "ema=%d", ema)

		atr := (0.002 + 0.002 + 0.0045) / 3
		assert.InDelta(t, 1.1030, sig.Price, 1e-12)
		assert.InDelta(t, 1.1030-atr, *sig.StopLoss, 1e-9)
		assert.InDelta(t, 1.1030+2*atr, *sig.TakeProfit, 1e-9)
	}
}

func TestTrendDonchian_Sell(t *testing.T) {
	t.Parallel()

	s := newTestTrend(t, ModeClose, 5, 0)
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1005, 1.0960, 1.0970)

	sig := s.Evaluate(bars)
	require.Equal(t, market.SideSell, sig.Side)
	atr := (0.002 + 0.002 + 0.0045) / 3
	assert.InDelta(t, 1.0970+atr, *sig.StopLoss, 1e-9)
	assert.InDelta(t, 1.0970-2*atr, *sig.TakeProfit, 1e-9)
}

func TestTrendDonchian_FilterBlocksCounterTrend(t *testing.T) {
	t.Parallel()

	// a rising market drops below the last five lows but stays above a
	// slow EMA: shorts are not permitted
	bars := rampBars(60, 1.0, 0.001)
	prev := bars[len(bars)-1].Close
	bars = next(bars, prev, prev, prev-0.0065, prev-0.006)

	filtered := newTestTrend(t, ModeClose, 50, 0)
	assert.Equal(t, market.NoSignal, filtered.Evaluate(bars))
	assert.Greater(t, bars[len(bars)-1].Close, filtered.Diagnostics().EMA)

	unfiltered := newTestTrend(t, ModeClose, 0, 0)
	assert.Equal(t, market.SideSell, unfiltered.Evaluate(bars).Side)
}

func TestTrendDonchian_PriceOnEMABlocksBoth(t *testing.T) {
	t.Parallel()

	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1050, 1.0950, 1.1)

	s := newTestTrend(t, ModeIntrabar, 5, 0)
	assert.Equal(t, market.NoSignal, s.Evaluate(bars))
	assert.Contains(t, s.Diagnostics().Note, "ema")

	s = newTestTrend(t, ModeIntrabar, 0, 0)
	assert.Equal(t, market.SideBuy, s.Evaluate(bars).Side)
}

func TestTrendDonchian_ATRFloor(t *testing.T) {
	t.Parallel()

	bars := flatBars(10, 1.1, 0)
	bars = next(bars, 1.1, 1.1001, 1.1, 1.1001)

	s := newTestTrend(t, ModeClose, 0, 1)
	sig := s.Evaluate(bars)
	require.Equal(t, market.SideBuy, sig.Side)

	floor := 1.1001 / 10000
	assert.InDelta(t, 1.1001-floor, *sig.StopLoss, 1e-12)
	assert.InDelta(t, 1.1001+2*floor, *sig.TakeProfit, 1e-12)
}

func TestTrendDonchian_ZeroATR(t *testing.T) {
	t.Parallel()

	// no range at all: the channel is never broken and atr is zero
	s := newTestTrend(t, ModeClose, 0, 0)
	assert.Equal(t, market.NoSignal, s.Evaluate(flatBars(12, 1.1, 0)))
}

func TestNewTrendDonchian_Invalid(t *testing.T) {
	t.Parallel()

	cfg := TrendDonchianConfigDefaults()
	cfg.RR = 0
	_, err := NewTrendDonchian(cfg)
	assert.Error(t, err)

	cfg = TrendDonchianConfigDefaults()
	cfg.EMAPeriod = -1
	_, err = NewTrendDonchian(cfg)
	assert.Error(t, err)
}

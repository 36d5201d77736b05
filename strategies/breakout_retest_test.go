package strategies

import (
	"math"
	"testing"

	"github.com/rustyeddy/breakout/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreakout(t *testing.T, mode BreakoutMode, maxAdds int) *BreakoutRetest {
	t.Helper()
	s, err := NewBreakoutRetest(BreakoutRetestConfig{
		Lookback:      5,
		SwingLookback: 3,
		ATRPeriod:     3,
		ATRFloorMult:  0.25,
		Mode:          mode,
		RetestEntries: true,
		RetestWindow:  5,
		MaxAdds:       maxAdds,
	})
	require.NoError(t, err)
	return s
}

func TestBreakoutRetest_InsufficientHistory(t *testing.T) {
	t.Parallel()

	s := newTestBreakout(t, ModeClose, 1)
	assert.Equal(t, 7, s.MinBars())

	bars := next(flatBars(5, 1.1, 0.001), 1.1, 1.2, 1.09, 1.19)
	assert.Equal(t, market.NoSignal, s.Evaluate(bars))
	assert.Contains(t, s.Diagnostics().Note, "insufficient history")
	assert.False(t, s.State().HasBreakout)
}

func TestBreakoutRetest_CloseBuyBreakout(t *testing.T) {
	t.Parallel()

	s := newTestBreakout(t, ModeClose, 1)
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1040, 1.0995, 1.1030)

	sig := s.Evaluate(bars)
	require.Equal(t, market.SideBuy, sig.Side)
	require.NotNil(t, sig.StopLoss)
	require.NotNil(t, sig.TakeProfit)

	atr := (0.002 + 0.002 + 0.0045) / 3
	stop := 1.1030 - 0.25*atr
	assert.InDelta(t, 1.1030, sig.Price, 1e-12)
	assert.InDelta(t, stop, *sig.StopLoss, 1e-9)
	assert.InDelta(t, 1.1030+2*(1.1030-stop), *sig.TakeProfit, 1e-9)
	assert.Equal(t, "breakout", sig.Reason)

	st := s.State()
	assert.True(t, st.HasBreakout)
	assert.Equal(t, market.SideBuy, st.LastBreakoutSide)
	assert.InDelta(t, 1.1010, st.LastBreakoutPrice, 1e-12)
	assert.Equal(t, bars[len(bars)-1].Time, st.LastBreakoutBar)
	assert.Equal(t, 0, st.AddsTaken)

	d := s.Diagnostics()
	assert.True(t, d.HasLevels)
	assert.InDelta(t, 1.1010, d.Channel.Upper, 1e-12)
	assert.InDelta(t, 1.0990, d.Channel.Lower, 1e-12)
}

func TestBreakoutRetest_CloseSellBreakout(t *testing.T) {
	t.Parallel()

	s := newTestBreakout(t, ModeClose, 1)
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1005, 1.0960, 1.0970)

	sig := s.Evaluate(bars)
	require.Equal(t, market.SideSell, sig.Side)

	atr := (0.002 + 0.002 + 0.0045) / 3
	stop := 1.0970 + 0.25*atr
	assert.InDelta(t, stop, *sig.StopLoss, 1e-9)
	assert.InDelta(t, 1.0970-2*(stop-1.0970), *sig.TakeProfit, 1e-9)
	assert.InDelta(t, 1.0990, s.State().LastBreakoutPrice, 1e-12)
}

func TestBreakoutRetest_SwingStopWhenTighter(t *testing.T) {
	t.Parallel()

	// a long breakout bar inflates the ATR and pushes the floor below
	// the swing low, which becomes the more protective stop
	s := newTestBreakout(t, ModeClose, 1)
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1040, 1.0500, 1.1030)

	sig := s.Evaluate(bars)
	require.Equal(t, market.SideBuy, sig.Side)
	assert.InDelta(t, 1.0990, *sig.StopLoss, 1e-12)
}

func TestBreakoutRetest_IntrabarInvalidStop(t *testing.T) {
	t.Parallel()

	s, err := NewBreakoutRetest(BreakoutRetestConfig{
		Lookback: 10, SwingLookback: 3, ATRPeriod: 3, ATRFloorMult: 0.25,
		Mode: ModeIntrabar, RetestEntries: true, RetestWindow: 5, MaxAdds: 1,
	})
	require.NoError(t, err)

	// three bars pinned at the channel top make the swing low equal the
	// intrabar entry, so no stop strictly below entry exists
	bars := flatBars(9, 1.1, 0.001)
	for i := 0; i < 3; i++ {
		bars = next(bars, 1.1010, 1.1010, 1.1010, 1.1010)
	}
	bars = next(bars, 1.1010, 1.1020, 1.1000, 1.1005)

	sig := s.Evaluate(bars)
	assert.Equal(t, market.NoSignal, sig)
	assert.False(t, s.State().HasBreakout)
	assert.Contains(t, s.Diagnostics().Note, "discarded")
}

func TestBreakoutRetest_IntrabarEntryAtLevel(t *testing.T) {
	t.Parallel()

	s := newTestBreakout(t, ModeIntrabar, 1)
	// wick above the channel, close back inside
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1030, 1.0995, 1.1005)

	sig := s.Evaluate(bars)
	require.Equal(t, market.SideBuy, sig.Side)
	assert.InDelta(t, 1.1010, sig.Price, 1e-12, "entry is the broken level when close is back inside")
}

func TestBreakoutRetest_BuyTakesPrecedence(t *testing.T) {
	t.Parallel()

	s := newTestBreakout(t, ModeIntrabar, 1)
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1050, 1.0950, 1.1000)

	sig := s.Evaluate(bars)
	assert.Equal(t, market.SideBuy, sig.Side)
	assert.Equal(t, market.SideBuy, s.State().LastBreakoutSide)
}

func TestBreakoutRetest_RetestAndAddsCap(t *testing.T) {
	t.Parallel()

	s := newTestBreakout(t, ModeClose, 1)
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1040, 1.0995, 1.1030)
	require.Equal(t, "breakout", s.Evaluate(bars).Reason)

	// next bar trades back through 1.1010
	bars = next(bars, 1.1030, 1.1035, 1.1005, 1.1025)
	sig := s.Evaluate(bars)
	require.Equal(t, market.SideBuy, sig.Side)
	assert.Equal(t, "retest", sig.Reason)
	assert.InDelta(t, 1.1025, sig.Price, 1e-12)
	assert.Less(t, *sig.StopLoss, sig.Price)
	assert.InDelta(t, sig.Price+2*sig.Risk(), *sig.TakeProfit, 1e-12)
	assert.Equal(t, 1, s.State().AddsTaken)

	// max adds reached
	bars = next(bars, 1.1025, 1.1030, 1.1005, 1.1020)
	assert.Equal(t, market.NoSignal, s.Evaluate(bars))
	assert.Equal(t, 1, s.State().AddsTaken)

	// a fresh breakout resets the sequence
	bars = next(bars, 1.1020, 1.1060, 1.1015, 1.1055)
	sig = s.Evaluate(bars)
	require.Equal(t, "breakout", sig.Reason)
	assert.Equal(t, 0, s.State().AddsTaken)
	assert.InDelta(t, 1.1040, s.State().LastBreakoutPrice, 1e-12)
}

func TestBreakoutRetest_RetestWindowExpires(t *testing.T) {
	t.Parallel()

	s := newTestBreakout(t, ModeClose, 1)
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1040, 1.0995, 1.1030)
	require.True(t, s.Evaluate(bars).IsTrade())

	// six quiet bars above the level, then a retest on bar 7
	for i := 0; i < 6; i++ {
		bars = next(bars, 1.1030, 1.1035, 1.1025, 1.1030)
		require.False(t, s.Evaluate(bars).IsTrade())
	}
	bars = next(bars, 1.1030, 1.1035, 1.1005, 1.1025)
	assert.Equal(t, market.NoSignal, s.Evaluate(bars))
}

func TestBreakoutRetest_RetestDisabled(t *testing.T) {
	t.Parallel()

	s := newTestBreakout(t, ModeClose, 1)
	s.cfg.RetestEntries = false
	bars := next(flatBars(10, 1.1, 0.001), 1.1, 1.1040, 1.0995, 1.1030)
	require.True(t, s.Evaluate(bars).IsTrade())

	bars = next(bars, 1.1030, 1.1035, 1.1005, 1.1025)
	assert.Equal(t, market.NoSignal, s.Evaluate(bars))
}

func TestBreakoutRetest_Invariants(t *testing.T) {
	t.Parallel()

	const maxAdds = 2
	s := newTestBreakout(t, ModeIntrabar, maxAdds)

	bars := flatBars(1, 1.1, 0.001)
	for i := 1; i < 400; i++ {
		c := 1.1 + 0.01*math.Sin(float64(i)/7) + 0.002*math.Sin(float64(i)/1.3)
		prev := bars[len(bars)-1].Close
		bars = next(bars, prev, math.Max(prev, c)+0.0008, math.Min(prev, c)-0.0008, c)

		sig := s.Evaluate(bars)
		st := s.State()
		now := bars[len(bars)-1].Time

		assert.LessOrEqual(t, st.AddsTaken, maxAdds)
		switch sig.Reason {
		case "breakout":
			assert.Equal(t, now, st.LastBreakoutBar)
			assert.Equal(t, 0, st.AddsTaken)
		case "retest":
			assert.NotEqual(t, now, st.LastBreakoutBar, "retest on a breakout bar")
			assert.Equal(t, st.LastBreakoutSide, sig.Side)
		}
		if sig.IsTrade() {
			assert.Greater(t, sig.Risk(), 0.0)
		}
	}
}

func TestNewBreakoutRetest_Invalid(t *testing.T) {
	t.Parallel()

	cfg := BreakoutRetestConfigDefaults()
	cfg.Lookback = 0
	_, err := NewBreakoutRetest(cfg)
	assert.Error(t, err)

	cfg = BreakoutRetestConfigDefaults()
	cfg.Mode = "wick"
	_, err = NewBreakoutRetest(cfg)
	assert.Error(t, err)

	cfg = BreakoutRetestConfigDefaults()
	cfg.MaxAdds = -1
	_, err = NewBreakoutRetest(cfg)
	assert.Error(t, err)
}

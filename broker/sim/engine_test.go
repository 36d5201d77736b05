package sim

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/market"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) market.Bar {
	return market.Bar{Time: t0.Add(time.Duration(i) * 15 * time.Minute), Open: o, High: h, Low: l, Close: c}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	e := NewEngine(Config{AccountID: "test", Balance: 10000})
	e.Load("EUR_USD", []market.Bar{
		bar(0, 1.1000, 1.1010, 1.0990, 1.1000),
		bar(1, 1.1000, 1.1020, 1.0995, 1.1010),
		bar(2, 1.1010, 1.1060, 1.1005, 1.1050), // buy TP hit
		bar(3, 1.1050, 1.1055, 1.0940, 1.0950), // buy SL hit
	}, 2)
	return e
}

func TestEngine_GetBarsWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t)

	bars, err := e.GetBars(ctx, "EUR_USD", "M15", 10)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.1010, bars[1].Close)

	require.True(t, e.Advance())
	bars, err = e.GetBars(ctx, "EUR_USD", "M15", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.1050, bars[1].Close)

	require.True(t, e.Advance())
	assert.False(t, e.Advance())

	_, err = e.GetBars(ctx, "GBP_USD", "M15", 10)
	assert.True(t, broker.IsUnavailable(err))
}

func TestEngine_OrderAndTakeProfit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t)

	fill, err := e.SubmitMarketOrder(ctx, broker.MarketOrderRequest{
		Instrument: "EUR_USD",
		Side:       market.SideBuy,
		Volume:     1,
		StopLoss:   1.0980,
		TakeProfit: 1.1040,
	})
	require.NoError(t, err)
	assert.True(t, fill.Accepted)
	assert.Equal(t, 1.1010, fill.Price)
	assert.NotEmpty(t, fill.PositionID)

	open, err := e.GetOpenPositions(ctx, "EUR_USD")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, fill.PositionID, open[0].ID)

	require.True(t, e.Advance())

	open, err = e.GetOpenPositions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, open)

	trades := e.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "TakeProfit", trades[0].Reason)
	// 30 pips at $10 a pip on one lot
	assert.InDelta(t, 300, trades[0].RealizedPL, 1e-6)

	acct, err := e.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10300, acct.Balance, 1e-6)
	assert.InDelta(t, 10300, acct.Equity, 1e-6)

	pnl, err := e.RealizedPnL(ctx, t0)
	require.NoError(t, err)
	assert.InDelta(t, 300, pnl, 1e-6)
}

func TestEngine_StopLossAndModify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t)

	fill, err := e.SubmitMarketOrder(ctx, broker.MarketOrderRequest{
		Instrument: "EUR_USD",
		Side:       market.SideBuy,
		Volume:     0.5,
		StopLoss:   1.0960,
	})
	require.NoError(t, err)

	require.NoError(t, e.ModifyPositionStops(ctx, fill.PositionID, 1.0960, 1.1200))
	open, _ := e.GetOpenPositions(ctx, "EUR_USD")
	require.Len(t, open, 1)
	assert.Equal(t, 1.1200, open[0].TakeProfit)

	// marked at the 1.1050 close
	require.True(t, e.Advance())
	acct, _ := e.GetAccount(ctx)
	assert.InDelta(t, 10200, acct.Equity, 1e-6)

	require.True(t, e.Advance())
	trades := e.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "StopLoss", trades[0].Reason)
	assert.InDelta(t, -250, trades[0].RealizedPL, 1e-6)

	err = e.ModifyPositionStops(ctx, fill.PositionID, 1, 2)
	assert.True(t, errors.Is(err, ErrPositionNotFound))
}

func TestEngine_SellSlippage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := NewEngine(Config{Balance: 10000, Slippage: 0.0002})
	e.Load("EUR_USD", []market.Bar{bar(0, 1.1, 1.1, 1.1, 1.1000)}, 1)

	fill, err := e.SubmitMarketOrder(ctx, broker.MarketOrderRequest{
		Instrument: "EUR_USD",
		Side:       market.SideSell,
		Volume:     1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0998, fill.Price, 1e-12)
}

func TestEngine_FailureModes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(t)

	e.RejectNext("MARKET_HALTED")
	_, err := e.SubmitMarketOrder(ctx, broker.MarketOrderRequest{Instrument: "EUR_USD", Side: market.SideBuy, Volume: 1})
	rej, ok := broker.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, "MARKET_HALTED", rej.Reason)

	_, err = e.SubmitMarketOrder(ctx, broker.MarketOrderRequest{Instrument: "EUR_USD", Side: market.SideBuy})
	_, ok = broker.AsRejection(err)
	assert.True(t, ok)

	e.SetUnavailable(errors.New("maintenance"))
	_, err = e.GetAccount(ctx)
	assert.True(t, broker.IsUnavailable(err))
	e.SetUnavailable(nil)

	require.NoError(t, e.Close())
	_, err = e.GetAccount(ctx)
	assert.True(t, errors.Is(err, broker.ErrNotConnected))
}

func TestEngine_DerivedRules(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	r, err := e.GetInstrumentRules(context.Background(), "EUR_USD")
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, r.TickSize, 1e-12)
	assert.InDelta(t, 10.0, r.TickValue, 1e-9)
	assert.Equal(t, 0.01, r.VolumeStep)

	_, err = e.GetInstrumentRules(context.Background(), "XXX_YYY")
	assert.Error(t, err)
}

func TestReadBarsCSV(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"time,open,high,low,close,volume",
		"2024-03-04T08:00:00Z,1.1000,1.1010,1.0990,1.1005,120",
		"",
		"1709540100,1.1005,1.1020,1.1000,1.1015,",
	}, "\n")

	bars, err := ReadBarsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, t0, bars[0].Time)
	assert.Equal(t, 120.0, bars[0].Volume)
	assert.Equal(t, t0.Add(15*time.Minute), bars[1].Time)
	assert.Equal(t, 1.1015, bars[1].Close)
}

func TestReadBarsCSV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"bad time", "yesterday,1,1,1,1"},
		{"bad price", "2024-03-04T08:00:00Z,1,x,1,1"},
		{"short row", "2024-03-04T08:00:00Z,1,1"},
		{"high below low", "2024-03-04T08:00:00Z,1,0.9,1.1,1"},
		{"not increasing", "2024-03-04T08:00:00Z,1,1,1,1\n2024-03-04T08:00:00Z,1,1,1,1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadBarsCSV(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

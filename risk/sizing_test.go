package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/market"
)

func eurusdRules() market.InstrumentRules {
	return market.InstrumentRules{
		Instrument: "EUR_USD",
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
		TickSize:   0.0001,
		TickValue:  1.0,
	}
}

func TestCalcVolume_FiftyPipStop(t *testing.T) {
	t.Parallel()

	got, err := CalcVolume(SizingRequest{
		Entry:        1.1000,
		Stop:         1.0950,
		RiskFraction: 0.01,
		Equity:       10000,
		Rules:        eurusdRules(),
	})
	require.NoError(t, err)

	assert.InDelta(t, 100.0, got.RiskMoney, 1e-9)
	assert.InDelta(t, 50.0, got.Ticks, 1e-6)
	assert.InDelta(t, 50.0, got.LossPerLot, 1e-6)
	assert.InDelta(t, 2.0, got.RawVolume, 1e-6)
	assert.Equal(t, 2.0, got.Volume)
}

func TestCalcVolume_Unavailable(t *testing.T) {
	t.Parallel()

	base := SizingRequest{
		Entry:        1.1000,
		Stop:         1.0950,
		RiskFraction: 0.01,
		Equity:       10000,
		Rules:        eurusdRules(),
	}

	tests := []struct {
		name string
		mod  func(r *SizingRequest)
	}{
		{"zero tick value", func(r *SizingRequest) { r.Rules.TickValue = 0 }},
		{"zero tick size", func(r *SizingRequest) { r.Rules.TickSize = 0 }},
		{"zero risk fraction", func(r *SizingRequest) { r.RiskFraction = 0 }},
		{"stop equals entry", func(r *SizingRequest) { r.Stop = r.Entry }},
		{"no equity", func(r *SizingRequest) { r.Equity = 0 }},
		{"rounds to zero", func(r *SizingRequest) {
			r.Rules.VolumeMin = 0
			r.Equity = 1
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := base
			tt.mod(&req)
			_, err := CalcVolume(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSizingUnavailable), "got %v", err)
		})
	}
}

func TestCalcVolume_ApproximatesRiskMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		equity, fraction, entry, stop, tickValue float64
	}{
		{10000, 0.01, 1.1000, 1.0950, 1.0},
		{25000, 0.005, 1.2731, 1.2690, 1.0},
		{5000, 0.02, 1.0812, 1.0890, 0.92},
		{100000, 0.0075, 1.3333, 1.3207, 1.0},
		{7300, 0.013, 1.0501, 1.0499, 1.0},
	}

	rules := eurusdRules()
	for _, tt := range tests {
		rules.TickValue = tt.tickValue
		got, err := CalcVolume(SizingRequest{
			Entry:        tt.entry,
			Stop:         tt.stop,
			RiskFraction: tt.fraction,
			Equity:       tt.equity,
			Rules:        rules,
		})
		require.NoError(t, err)

		want := tt.equity * tt.fraction
		// one step of volume is worth VolumeStep × loss per lot
		tol := rules.VolumeStep*got.LossPerLot + 1e-6
		if got.Volume == rules.VolumeMax || got.Volume == rules.VolumeMin {
			continue
		}
		assert.InDelta(t, want, got.Volume*got.LossPerLot, tol)
	}
}

func TestRoundToStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    float64
		step float64
		want float64
	}{
		{"down", 0.123, 0.01, 0.12},
		{"up", 0.125001, 0.01, 0.13},
		{"aligned", 2.0, 0.01, 2.0},
		{"tenth", 1.26, 0.1, 1.3},
		{"no step", 0.1234, 0, 0.1234},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, RoundToStep(tt.v, tt.step), 1e-12)
		})
	}
}

func TestRoundToStep_Idempotent(t *testing.T) {
	t.Parallel()

	for _, step := range []float64{0.01, 0.1, 1, 0.001} {
		for _, v := range []float64{0.01, 0.07, 0.3, 1.11, 2.57, 19.99, 33.333, 99.5} {
			once := RoundToStep(v, step)
			assert.Equal(t, once, RoundToStep(once, step), "v=%v step=%v", v, step)
		}
	}
}

func TestNormalizeVolume(t *testing.T) {
	t.Parallel()

	r := eurusdRules()
	assert.Equal(t, 0.01, NormalizeVolume(0.001, r))
	assert.Equal(t, 100.0, NormalizeVolume(250, r))
	assert.Equal(t, 0.75, NormalizeVolume(0.7512, r))

	r.VolumeMin = 0
	assert.Equal(t, 0.0, NormalizeVolume(0.004, r))

	r.VolumeMax = 0
	assert.Equal(t, 250.0, NormalizeVolume(250, r))
}

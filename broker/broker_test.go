package broker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/market"
)

func TestUnavailable_Wraps(t *testing.T) {
	t.Parallel()

	err := Unavailable("get bars", errors.New("connection reset"))
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "connection reset")

	wrapped := fmt.Errorf("tick: %w", err)
	assert.True(t, IsUnavailable(wrapped))
	assert.False(t, IsUnavailable(errors.New("other")))
}

func TestAsRejection(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("submit: %w", &RejectionError{Op: "market order", Reason: "MARKET_HALTED"})
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, "MARKET_HALTED", rej.Reason)
	assert.Equal(t, "market order rejected: MARKET_HALTED", rej.Error())

	_, ok = AsRejection(ErrUnavailable)
	assert.False(t, ok)
}

func TestMarketOrderRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     MarketOrderRequest
		wantErr bool
	}{
		{"ok", MarketOrderRequest{Instrument: "EUR_USD", Side: market.SideBuy, Volume: 0.1}, false},
		{"no instrument", MarketOrderRequest{Side: market.SideBuy, Volume: 0.1}, true},
		{"no side", MarketOrderRequest{Instrument: "EUR_USD", Volume: 0.1}, true},
		{"zero volume", MarketOrderRequest{Instrument: "EUR_USD", Side: market.SideSell}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// Package broker defines what the engine needs from a market data and
// execution venue.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/breakout/market"
)

var (
	// ErrUnavailable marks transient failures: the tick is skipped and
	// retried on the next poll.
	ErrUnavailable = errors.New("broker unavailable")

	// ErrNotConnected is returned when a session could not be
	// established. It is fatal at startup.
	ErrNotConnected = errors.New("broker not connected")
)

// RejectionError is returned when the broker declines an order or a
// stop/target modification.
type RejectionError struct {
	Op     string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

// Unavailable wraps err with ErrUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Broker is the single collaborator of the engine.
type Broker interface {
	GetBars(ctx context.Context, instrument string, tf market.Timeframe, count int) ([]market.Bar, error)
	GetAccount(ctx context.Context) (Account, error)
	GetInstrumentRules(ctx context.Context, instrument string) (market.InstrumentRules, error)
	// GetOpenPositions lists open positions, all of them when instrument
	// is empty.
	GetOpenPositions(ctx context.Context, instrument string) ([]market.Position, error)
	SubmitMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderFill, error)
	ModifyPositionStops(ctx context.Context, positionID string, stopLoss, takeProfit float64) error
	Close() error
}

// PnLReporter is implemented by brokers that can report realised P/L.
type PnLReporter interface {
	RealizedPnL(ctx context.Context, since time.Time) (float64, error)
}

type Account struct {
	ID       string
	Currency string
	Balance  float64
	Equity   float64
}

type MarketOrderRequest struct {
	Instrument string
	Side       market.Side
	Volume     float64 // lots
	StopLoss   float64
	TakeProfit float64
	Tag        string
}

func (r MarketOrderRequest) Validate() error {
	if r.Instrument == "" {
		return errors.New("instrument is required")
	}
	if r.Side != market.SideBuy && r.Side != market.SideSell {
		return fmt.Errorf("invalid side %s", r.Side)
	}
	if r.Volume <= 0 {
		return fmt.Errorf("volume must be positive, got %v", r.Volume)
	}
	return nil
}

// OrderFill is the broker's answer to a market order. Price is the
// actual fill price.
type OrderFill struct {
	Accepted   bool
	OrderID    string
	PositionID string
	Price      float64
	Reason     string
}

// IsUnavailable reports whether err is a transient broker failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// AsRejection unwraps a RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

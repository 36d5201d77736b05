package oanda

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/market"
)

type Config struct {
	Env       string // practice | live
	BaseURL   string // overrides Env
	Token     string
	AccountID string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 keeps the default
	RateBurst int
}

// Broker trades one v20 account. Volumes are lots; one lot is the
// instrument's contract size in units (100k for FX pairs).
type Broker struct {
	client    *Client
	accountID string
	currency  string
	log       zerolog.Logger

	mu          sync.Mutex
	instruments map[string]Instrument
}

var _ broker.Broker = (*Broker)(nil)
var _ broker.PnLReporter = (*Broker)(nil)

// Connect verifies the account and returns a ready Broker. Any failure
// wraps broker.ErrNotConnected.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*Broker, error) {
	if cfg.Token == "" || cfg.AccountID == "" {
		return nil, fmt.Errorf("%w: oanda token and account id are required", broker.ErrNotConnected)
	}
	base := cfg.BaseURL
	if base == "" {
		var err error
		if base, err = BaseURL(cfg.Env); err != nil {
			return nil, fmt.Errorf("%w: %v", broker.ErrNotConnected, err)
		}
	}

	c := NewClient(base, cfg.Token)
	if cfg.Timeout > 0 {
		c.HTTP.Timeout = cfg.Timeout
	}
	if cfg.RateLimit > 0 {
		c.SetRateLimit(cfg.RateLimit, cfg.RateBurst)
	}

	acct, err := c.AccountSummary(ctx, cfg.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %v", broker.ErrNotConnected, cfg.AccountID, err)
	}

	b := &Broker{
		client:      c,
		accountID:   acct.ID,
		currency:    acct.Currency,
		log:         log.With().Str("component", "oanda").Logger(),
		instruments: make(map[string]Instrument),
	}
	b.log.Info().
		Str("account", acct.ID).
		Str("currency", acct.Currency).
		Float64("nav", acct.NAV).
		Str("url", base).
		Msg("connected")
	return b, nil
}

func (b *Broker) GetBars(ctx context.Context, instrument string, tf market.Timeframe, count int) ([]market.Bar, error) {
	return b.client.GetCandles(ctx, instrument, tf, count)
}

func (b *Broker) GetAccount(ctx context.Context) (broker.Account, error) {
	a, err := b.client.AccountSummary(ctx, b.accountID)
	if err != nil {
		return broker.Account{}, err
	}
	return broker.Account{ID: a.ID, Currency: a.Currency, Balance: a.Balance, Equity: a.NAV}, nil
}

// instrument returns the cached instrument record, fetching it on first
// use. Only the precisions are read from it.
func (b *Broker) instrument(ctx context.Context, name string) (Instrument, error) {
	b.mu.Lock()
	in, ok := b.instruments[name]
	b.mu.Unlock()
	if ok {
		return in, nil
	}
	return b.fetchInstrument(ctx, name)
}

// fetchInstrument always asks the API and refreshes the cache.
func (b *Broker) fetchInstrument(ctx context.Context, name string) (Instrument, error) {
	in, err := b.client.Instrument(ctx, b.accountID, name)
	if err != nil {
		return Instrument{}, err
	}
	b.mu.Lock()
	b.instruments[name] = in
	b.mu.Unlock()
	return in, nil
}

// contractSize is the number of units in one lot.
func contractSize(instrument string) float64 {
	if meta, ok := market.Instruments[instrument]; ok && meta.ContractSize > 0 {
		return meta.ContractSize
	}
	return 100_000
}

// GetInstrumentRules fetches the rules on every call; they may change
// between polls.
func (b *Broker) GetInstrumentRules(ctx context.Context, instrument string) (market.InstrumentRules, error) {
	in, err := b.fetchInstrument(ctx, instrument)
	if err != nil {
		return market.InstrumentRules{}, err
	}

	base, quote, ok := strings.Cut(instrument, "_")
	if !ok {
		return market.InstrumentRules{}, fmt.Errorf("cannot split instrument %q into currencies", instrument)
	}
	meta := market.InstrumentMeta{Name: instrument, BaseCurrency: base, QuoteCurrency: quote, PipLocation: in.PipLocation}

	mid := 0.0
	if base == b.currency {
		bars, err := b.client.GetCandles(ctx, instrument, "M1", 2)
		if err != nil {
			return market.InstrumentRules{}, err
		}
		if last, ok := market.Last(bars); ok {
			mid = last.Close
		}
	}
	rate, err := market.QuoteToAccountRate(meta, b.currency, mid)
	if err != nil {
		return market.InstrumentRules{}, err
	}

	contract := contractSize(instrument)
	pip := market.PipSize(in.PipLocation)
	step := math.Pow(10, -float64(in.TradeUnitsPrecision)) / contract

	r := market.InstrumentRules{
		Instrument:      instrument,
		VolumeMin:       math.Max(in.MinimumTradeSize/contract, step),
		VolumeMax:       in.MaximumOrderUnits / contract,
		VolumeStep:      step,
		TickSize:        pip,
		TickValue:       pip * contract * rate,
		// v20 has no stops level; the trailing stop minimum approximates it
		MinStopDistance: in.MinimumTrailingStopDistance,
	}
	return r, nil
}

func (b *Broker) GetOpenPositions(ctx context.Context, instrument string) ([]market.Position, error) {
	trades, err := b.client.OpenTrades(ctx, b.accountID, instrument)
	if err != nil {
		return nil, err
	}

	out := make([]market.Position, 0, len(trades))
	for _, t := range trades {
		side := market.SideBuy
		if t.Units < 0 {
			side = market.SideSell
		}
		out = append(out, market.Position{
			ID:         t.ID,
			Instrument: t.Instrument,
			Side:       side,
			Volume:     math.Abs(t.Units) / contractSize(t.Instrument),
			EntryPrice: t.Price,
			StopLoss:   t.StopLoss,
			TakeProfit: t.TakeProfit,
			OpenTime:   t.OpenTime,
		})
	}
	return out, nil
}

func (b *Broker) precision(ctx context.Context, instrument string) (price, units int) {
	in, err := b.instrument(ctx, instrument)
	if err != nil || in.DisplayPrecision == 0 {
		return 5, 0
	}
	return in.DisplayPrecision, in.TradeUnitsPrecision
}

func (b *Broker) SubmitMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderFill, error) {
	if err := req.Validate(); err != nil {
		return broker.OrderFill{}, &broker.RejectionError{Op: "market order", Reason: err.Error()}
	}

	pricePrec, unitsPrec := b.precision(ctx, req.Instrument)
	units := req.Side.Dir() * req.Volume * contractSize(req.Instrument)

	res, err := b.client.SubmitMarketOrder(ctx, b.accountID, MarketOrder{
		Instrument:     req.Instrument,
		Units:          units,
		StopLoss:       req.StopLoss,
		TakeProfit:     req.TakeProfit,
		Comment:        req.Tag,
		PricePrecision: pricePrec,
		UnitsPrecision: unitsPrec,
	})
	if err != nil {
		if ae, ok := asAPIError(err); ok && !ae.temporary() {
			return broker.OrderFill{Reason: ae.Message}, &broker.RejectionError{Op: "market order", Reason: ae.Message}
		}
		return broker.OrderFill{}, err
	}
	if res.CancelReason != "" {
		return broker.OrderFill{OrderID: res.OrderID, Reason: res.CancelReason},
			&broker.RejectionError{Op: "market order", Reason: res.CancelReason}
	}

	return broker.OrderFill{
		Accepted:   true,
		OrderID:    res.OrderID,
		PositionID: res.TradeID,
		Price:      res.Price,
	}, nil
}

func (b *Broker) ModifyPositionStops(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	prec := 5
	if trades, err := b.client.OpenTrades(ctx, b.accountID, ""); err == nil {
		for _, t := range trades {
			if t.ID == positionID {
				prec, _ = b.precision(ctx, t.Instrument)
				break
			}
		}
	}

	err := b.client.SetTradeOrders(ctx, b.accountID, positionID, stopLoss, takeProfit, prec)
	if ae, ok := asAPIError(err); ok && !ae.temporary() {
		return &broker.RejectionError{Op: "modify stops", Reason: ae.Message}
	}
	return err
}

func (b *Broker) RealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	return b.client.RealizedPL(ctx, b.accountID, since)
}

func (b *Broker) Close() error {
	b.client.HTTP.CloseIdleConnections()
	b.log.Info().Msg("disconnected")
	return nil
}

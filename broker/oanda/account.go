package oanda

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type AccountSummary struct {
	ID       string
	Currency string
	Balance  float64
	NAV      float64
}

type accountResponse struct {
	Account struct {
		ID       string `json:"id"`
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
		NAV      string `json:"NAV"`
	} `json:"account"`
}

func (c *Client) AccountSummary(ctx context.Context, accountID string) (AccountSummary, error) {
	var resp accountResponse
	if err := c.do(ctx, "GET", fmt.Sprintf("/v3/accounts/%s/summary", accountID), nil, nil, &resp); err != nil {
		return AccountSummary{}, err
	}

	a := resp.Account
	bal, err := parseFloat(a.Balance)
	if err != nil {
		return AccountSummary{}, fmt.Errorf("parse balance: %w", err)
	}
	nav, err := parseFloat(a.NAV)
	if err != nil {
		return AccountSummary{}, fmt.Errorf("parse NAV: %w", err)
	}
	return AccountSummary{ID: a.ID, Currency: a.Currency, Balance: bal, NAV: nav}, nil
}

// Instrument is the tradeable-instrument record of an account.
type Instrument struct {
	Name                        string
	PipLocation                 int
	DisplayPrecision            int
	TradeUnitsPrecision         int
	MinimumTradeSize            float64
	MaximumOrderUnits           float64
	MinimumTrailingStopDistance float64
}

type instrumentsResponse struct {
	Instruments []struct {
		Name                        string `json:"name"`
		PipLocation                 int    `json:"pipLocation"`
		DisplayPrecision            int    `json:"displayPrecision"`
		TradeUnitsPrecision         int    `json:"tradeUnitsPrecision"`
		MinimumTradeSize            string `json:"minimumTradeSize"`
		MaximumOrderUnits           string `json:"maximumOrderUnits"`
		MinimumTrailingStopDistance string `json:"minimumTrailingStopDistance"`
	} `json:"instruments"`
}

func (c *Client) Instrument(ctx context.Context, accountID, name string) (Instrument, error) {
	q := url.Values{}
	q.Set("instruments", name)

	var resp instrumentsResponse
	if err := c.do(ctx, "GET", fmt.Sprintf("/v3/accounts/%s/instruments", accountID), q, nil, &resp); err != nil {
		return Instrument{}, err
	}
	for _, in := range resp.Instruments {
		if in.Name != name {
			continue
		}
		out := Instrument{
			Name:                in.Name,
			PipLocation:         in.PipLocation,
			DisplayPrecision:    in.DisplayPrecision,
			TradeUnitsPrecision: in.TradeUnitsPrecision,
		}
		var err error
		if out.MinimumTradeSize, err = parseFloat(in.MinimumTradeSize); err != nil {
			return Instrument{}, fmt.Errorf("parse minimumTradeSize: %w", err)
		}
		if out.MaximumOrderUnits, err = parseFloat(in.MaximumOrderUnits); err != nil {
			return Instrument{}, fmt.Errorf("parse maximumOrderUnits: %w", err)
		}
		if out.MinimumTrailingStopDistance, err = parseFloat(in.MinimumTrailingStopDistance); err != nil {
			return Instrument{}, fmt.Errorf("parse minimumTrailingStopDistance: %w", err)
		}
		return out, nil
	}
	return Instrument{}, fmt.Errorf("instrument %s not tradeable on account %s", name, accountID)
}

type closedTradesResponse struct {
	Trades []struct {
		RealizedPL string `json:"realizedPL"`
		CloseTime  string `json:"closeTime"`
	} `json:"trades"`
}

// RealizedPL sums the realised P/L of trades closed since the given time,
// looking at the most recent 500 closed trades.
func (c *Client) RealizedPL(ctx context.Context, accountID string, since time.Time) (float64, error) {
	q := url.Values{}
	q.Set("state", "CLOSED")
	q.Set("count", "500")

	var resp closedTradesResponse
	if err := c.do(ctx, "GET", fmt.Sprintf("/v3/accounts/%s/trades", accountID), q, nil, &resp); err != nil {
		return 0, err
	}

	total := 0.0
	for _, t := range resp.Trades {
		ct, err := time.Parse(time.RFC3339Nano, t.CloseTime)
		if err != nil || ct.Before(since) {
			continue
		}
		pl, err := parseFloat(t.RealizedPL)
		if err != nil {
			return 0, fmt.Errorf("parse realizedPL: %w", err)
		}
		total += pl
	}
	return total, nil
}

// parseFloat parses a v20 decimal string. An empty string is 0.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

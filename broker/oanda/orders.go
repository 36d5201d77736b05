package oanda

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Trade is an open v20 trade. Units are signed: negative is short.
type Trade struct {
	ID         string
	Instrument string
	Units      float64
	Price      float64
	OpenTime   time.Time
	StopLoss   float64
	TakeProfit float64
}

type priceRef struct {
	Price string `json:"price"`
}

type openTradesResponse struct {
	Trades []struct {
		ID              string    `json:"id"`
		Instrument      string    `json:"instrument"`
		CurrentUnits    string    `json:"currentUnits"`
		Price           string    `json:"price"`
		OpenTime        string    `json:"openTime"`
		StopLossOrder   *priceRef `json:"stopLossOrder,omitempty"`
		TakeProfitOrder *priceRef `json:"takeProfitOrder,omitempty"`
	} `json:"trades"`
}

// OpenTrades lists the open trades, for one instrument when instrument is
// not empty.
func (c *Client) OpenTrades(ctx context.Context, accountID, instrument string) ([]Trade, error) {
	var q url.Values
	path := fmt.Sprintf("/v3/accounts/%s/openTrades", accountID)
	if instrument != "" {
		path = fmt.Sprintf("/v3/accounts/%s/trades", accountID)
		q = url.Values{}
		q.Set("state", "OPEN")
		q.Set("instrument", instrument)
	}

	var resp openTradesResponse
	if err := c.do(ctx, "GET", path, q, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Trade, 0, len(resp.Trades))
	for _, at := range resp.Trades {
		t := Trade{ID: at.ID, Instrument: at.Instrument}
		var err error
		if t.Units, err = parseFloat(at.CurrentUnits); err != nil {
			return nil, fmt.Errorf("trade %s: parse units: %w", at.ID, err)
		}
		if t.Price, err = parseFloat(at.Price); err != nil {
			return nil, fmt.Errorf("trade %s: parse price: %w", at.ID, err)
		}
		if at.OpenTime != "" {
			if t.OpenTime, err = time.Parse(time.RFC3339Nano, at.OpenTime); err != nil {
				return nil, fmt.Errorf("trade %s: parse openTime: %w", at.ID, err)
			}
		}
		if at.StopLossOrder != nil {
			if t.StopLoss, err = parseFloat(at.StopLossOrder.Price); err != nil {
				return nil, fmt.Errorf("trade %s: parse stop loss: %w", at.ID, err)
			}
		}
		if at.TakeProfitOrder != nil {
			if t.TakeProfit, err = parseFloat(at.TakeProfitOrder.Price); err != nil {
				return nil, fmt.Errorf("trade %s: parse take profit: %w", at.ID, err)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// MarketOrder is a FOK market order with optional stop and target.
// Prices of 0 are omitted.
type MarketOrder struct {
	Instrument string
	Units      float64
	StopLoss   float64
	TakeProfit float64
	Comment    string

	// PricePrecision is the number of decimals prices are sent with.
	PricePrecision int
	// UnitsPrecision is the number of decimals units are sent with.
	UnitsPrecision int
}

type clientExtensions struct {
	Comment string `json:"comment,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

type marketOrderBody struct {
	Order struct {
		Type             string            `json:"type"`
		Instrument       string            `json:"instrument"`
		Units            string            `json:"units"`
		TimeInForce      string            `json:"timeInForce"`
		PositionFill     string            `json:"positionFill"`
		StopLossOnFill   *priceRef         `json:"stopLossOnFill,omitempty"`
		TakeProfitOnFill *priceRef         `json:"takeProfitOnFill,omitempty"`
		ClientExtensions *clientExtensions `json:"clientExtensions,omitempty"`
	} `json:"order"`
}

type orderResponse struct {
	OrderCreateTransaction *struct {
		ID string `json:"id"`
	} `json:"orderCreateTransaction"`
	OrderFillTransaction *struct {
		ID          string `json:"id"`
		OrderID     string `json:"orderID"`
		Price       string `json:"price"`
		TradeOpened *struct {
			TradeID string `json:"tradeID"`
			Price   string `json:"price"`
		} `json:"tradeOpened"`
	} `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
}

// MarketOrderResult is the outcome of a market order. CancelReason is set
// when the order was created but cancelled instead of filled.
type MarketOrderResult struct {
	OrderID      string
	TradeID      string
	Price        float64
	CancelReason string
}

func formatPrice(p float64, prec int) *priceRef {
	if p == 0 {
		return nil
	}
	return &priceRef{Price: strconv.FormatFloat(p, 'f', prec, 64)}
}

func (c *Client) SubmitMarketOrder(ctx context.Context, accountID string, o MarketOrder) (MarketOrderResult, error) {
	var body marketOrderBody
	body.Order.Type = "MARKET"
	body.Order.Instrument = o.Instrument
	body.Order.Units = strconv.FormatFloat(o.Units, 'f', o.UnitsPrecision, 64)
	body.Order.TimeInForce = "FOK"
	body.Order.PositionFill = "DEFAULT"
	body.Order.StopLossOnFill = formatPrice(o.StopLoss, o.PricePrecision)
	body.Order.TakeProfitOnFill = formatPrice(o.TakeProfit, o.PricePrecision)
	if o.Comment != "" {
		body.Order.ClientExtensions = &clientExtensions{Comment: o.Comment}
	}

	var resp orderResponse
	if err := c.do(ctx, "POST", fmt.Sprintf("/v3/accounts/%s/orders", accountID), nil, body, &resp); err != nil {
		return MarketOrderResult{}, err
	}

	var res MarketOrderResult
	if resp.OrderCreateTransaction != nil {
		res.OrderID = resp.OrderCreateTransaction.ID
	}
	if cancel := resp.OrderCancelTransaction; cancel != nil {
		res.CancelReason = cancel.Reason
		return res, nil
	}
	fill := resp.OrderFillTransaction
	if fill == nil {
		res.CancelReason = "no fill transaction"
		return res, nil
	}
	if fill.OrderID != "" {
		res.OrderID = fill.OrderID
	}
	price := fill.Price
	if fill.TradeOpened != nil {
		res.TradeID = fill.TradeOpened.TradeID
		if fill.TradeOpened.Price != "" {
			price = fill.TradeOpened.Price
		}
	}
	p, err := parseFloat(price)
	if err != nil {
		return res, fmt.Errorf("parse fill price: %w", err)
	}
	res.Price = p
	return res, nil
}

type tradeOrdersBody struct {
	StopLoss   *priceRef `json:"stopLoss,omitempty"`
	TakeProfit *priceRef `json:"takeProfit,omitempty"`
}

// SetTradeOrders replaces the stop loss and take profit of an open trade.
// Prices of 0 are left unchanged.
func (c *Client) SetTradeOrders(ctx context.Context, accountID, tradeID string, stopLoss, takeProfit float64, prec int) error {
	body := tradeOrdersBody{
		StopLoss:   formatPrice(stopLoss, prec),
		TakeProfit: formatPrice(takeProfit, prec),
	}
	return c.do(ctx, "PUT", fmt.Sprintf("/v3/accounts/%s/trades/%s/orders", accountID, tradeID), nil, body, nil)
}

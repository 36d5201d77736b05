package oanda

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rustyeddy/breakout/market"
)

// granularities maps timeframes to v20 candle granularities.
var granularities = map[market.Timeframe]string{
	"M1":  "M1",
	"M5":  "M5",
	"M15": "M15",
	"M30": "M30",
	"H1":  "H1",
	"H4":  "H4",
	"D1":  "D",
}

func Granularity(tf market.Timeframe) (string, error) {
	g, ok := granularities[tf]
	if !ok {
		return "", fmt.Errorf("no OANDA granularity for timeframe %q", tf)
	}
	return g, nil
}

type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool       `json:"complete"`
	Volume   int        `json:"volume"`
	Time     string     `json:"time"`
	Mid      candleData `json:"mid"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// GetCandles fetches up to count mid candles and returns the complete
// ones, oldest first. The forming candle is dropped.
func (c *Client) GetCandles(ctx context.Context, instrument string, tf market.Timeframe, count int) ([]market.Bar, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	g, err := Granularity(tf)
	if err != nil {
		return nil, err
	}
	if count <= 0 || count > 5000 {
		return nil, fmt.Errorf("count must be in 1..5000, got %d", count)
	}

	q := url.Values{}
	q.Set("price", "M")
	q.Set("granularity", g)
	q.Set("count", strconv.Itoa(count))

	var resp candlesResponse
	if err := c.do(ctx, "GET", fmt.Sprintf("/v3/instruments/%s/candles", instrument), q, nil, &resp); err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(resp.Candles))
	for _, ac := range resp.Candles {
		if !ac.Complete {
			continue
		}
		b, err := ac.bar()
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func (ac apiCandle) bar() (market.Bar, error) {
	t, err := time.Parse(time.RFC3339Nano, ac.Time)
	if err != nil {
		return market.Bar{}, fmt.Errorf("parse time %s: %w", ac.Time, err)
	}

	var vals [4]float64
	for i, s := range []string{ac.Mid.O, ac.Mid.H, ac.Mid.L, ac.Mid.C} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse price %q: %w", s, err)
		}
		vals[i] = v
	}

	return market.Bar{
		Time:   t.UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: float64(ac.Volume),
	}, nil
}

// Package oanda adapts the OANDA v20 REST API to broker.Broker.
package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rustyeddy/breakout/broker"
)

const (
	PracticeURL = "https://api-fxpractice.oanda.com"
	LiveURL     = "https://api-fxtrade.oanda.com"

	// OANDA allows 100 requests per second per connection; stay well below.
	DefaultRateLimit = 20
	DefaultRateBurst = 5
)

// BaseURL maps an environment name to its REST endpoint.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "practice", "demo", "":
		return PracticeURL, nil
	case "live":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst),
	}
}

// SetRateLimit replaces the request limiter. A non-positive perSec
// disables limiting.
func (c *Client) SetRateLimit(perSec float64, burst int) {
	if perSec <= 0 {
		c.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
}

// apiError is the error body of a v20 response.
type apiError struct {
	Status  int
	Message string `json:"errorMessage"`
	Code    string `json:"errorCode"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("oanda http %d: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("oanda http %d: %s", e.Status, e.Message)
}

func (e *apiError) temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// do sends a request and decodes a 2xx JSON body into out. Transport
// failures and 5xx/429 answers are wrapped with broker.ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return broker.Unavailable(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		ae := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(b, ae) != nil || ae.Message == "" {
			ae.Message = strings.TrimSpace(string(b))
		}
		if ae.temporary() {
			return broker.Unavailable(method+" "+path, ae)
		}
		return ae
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return broker.Unavailable(method+" "+path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func asAPIError(err error) (*apiError, bool) {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Package binance fetches public market data from a Binance-compatible
// REST API: 24h tickers, klines, order-book depth and last prices.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"gainer-scanner/internal/breaker"
)

// Config controls endpoints, timeouts and result sizes.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration

	QuoteAsset  string
	TopN        int
	CandleLimit int
	DepthLimit  int
	// DepthLevels caps how many levels per side enter the imbalance
	// ratio; 0 uses everything returned.
	DepthLevels int
}

// DefaultConfig targets the public Binance spot API.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.binance.com",
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
		QuoteAsset:    "USDT",
		TopN:          35,
		CandleLimit:   200,
		DepthLimit:    100,
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.Status, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	cb   *breaker.Breaker

	// OnFailure, if set, is called once per request that exhausted its
	// retries or was rejected by the breaker.
	OnFailure func(endpoint string, err error)
	// OnSuccess, if set, is called after each successful request.
	OnSuccess func(endpoint string)
}

// New creates a client. All requests share one circuit breaker.
func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
		cb:   breaker.New("binance", 8, 30*time.Second),
	}
}

// Breaker returns the breaker shared by all requests.
func (c *Client) Breaker() *breaker.Breaker { return c.cb }

// Config returns the client configuration.
func (c *Client) Config() Config { return c.cfg }

// getJSON issues GET path?params and decodes the body into out, retrying
// transport errors and retryable statuses with a fixed delay.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	attempts := max(c.cfg.RetryAttempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		// client errors say nothing about the API's health
		var callErr error
		err = c.cb.Execute(func() error {
			callErr = c.do(ctx, path, endpoint, out)
			if clientError(callErr) {
				return nil
			}
			return callErr
		})
		if err == nil {
			err = callErr
		}
		if err == nil {
			if c.OnSuccess != nil {
				c.OnSuccess(path)
			}
			return nil
		}
		if !retryable(ctx, err) {
			break
		}
		log.Printf("[binance] %s attempt %d/%d: %v", path, i+1, attempts, err)
	}

	if c.OnFailure != nil && ctx.Err() == nil {
		c.OnFailure(path, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, path, endpoint string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Endpoint: path, Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &formatError{path: path, err: err}
	}
	return nil
}

// formatError marks a body that did not match the expected shape.
type formatError struct {
	path string
	err  error
}

func (e *formatError) Error() string { return fmt.Sprintf("%s: decode: %v", e.path, e.err) }
func (e *formatError) Unwrap() error { return e.err }

func clientError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && !ae.Retryable()
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, breaker.ErrOpen) {
		return false
	}
	var fe *formatError
	if errors.As(err, &fe) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return true
}

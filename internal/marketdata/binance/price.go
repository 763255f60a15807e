package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// FetchLastPrice returns the latest traded price for symbol.
func (c *Client) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.getJSON(ctx, "/api/v3/ticker/price", params, &resp); err != nil {
		return 0, err
	}
	px, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%s price %q: %w", symbol, resp.Price, err)
	}
	if px <= 0 {
		return 0, fmt.Errorf("%s: non-positive price %v", symbol, px)
	}
	return px, nil
}

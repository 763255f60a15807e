package binance

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"gainer-scanner/internal/model"
)

const (
	neutralImbalance = 1.0
	minImbalance     = 0.1
	maxImbalance     = 10.0
)

type rawDepth struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// FetchOrderBook returns the depth snapshot for symbol.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (model.OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(c.cfg.DepthLimit))

	var raw rawDepth
	if err := c.getJSON(ctx, "/api/v3/depth", params, &raw); err != nil {
		return model.OrderBook{}, err
	}
	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return model.OrderBook{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return model.OrderBook{}, fmt.Errorf("asks: %w", err)
	}
	return model.OrderBook{Bids: bids, Asks: asks}, nil
}

// FetchOrderBookImbalance returns bid volume over ask volume, clamped to
// [0.1, 10]. A failed fetch or an empty book reads neutral (1.0); an
// empty ask side with resting bids reads the upper clamp.
func (c *Client) FetchOrderBookImbalance(ctx context.Context, symbol string) float64 {
	book, err := c.FetchOrderBook(ctx, symbol)
	if err != nil {
		log.Printf("[binance] %s depth: %v", symbol, err)
		return neutralImbalance
	}
	return Imbalance(book, c.cfg.DepthLevels)
}

// Imbalance applies the clamp and empty-side rules to book.
func Imbalance(book model.OrderBook, levels int) float64 {
	ratio, bidQty, askQty := book.Imbalance(levels)
	switch {
	case bidQty <= 0 && askQty <= 0:
		return neutralImbalance
	case askQty <= 0:
		return maxImbalance
	}
	return min(max(ratio, minImbalance), maxImbalance)
}

func parseLevels(raw [][]string) ([]model.Level, error) {
	out := make([]model.Level, 0, len(raw))
	for i, lv := range raw {
		if len(lv) < 2 {
			return nil, fmt.Errorf("level %d: %d fields", i, len(lv))
		}
		px, err := strconv.ParseFloat(lv[0], 64)
		if err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		qty, err := strconv.ParseFloat(lv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("level %d qty: %w", i, err)
		}
		out = append(out, model.Level{Price: px, Qty: qty})
	}
	return out, nil
}

package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"gainer-scanner/internal/model"
)

// FetchCandles fetches each interval for symbol. Intervals that fail to
// fetch or parse are logged and left out of the set; the call itself
// never fails.
func (c *Client) FetchCandles(ctx context.Context, symbol string, intervals []model.Interval) model.CandleSet {
	set := make(model.CandleSet, len(intervals))
	for _, iv := range intervals {
		if ctx.Err() != nil {
			break
		}
		candles, err := c.fetchKlines(ctx, symbol, iv)
		if err != nil {
			log.Printf("[binance] %s %s klines: %v", symbol, iv, err)
			continue
		}
		set[iv] = candles
	}
	return set
}

func (c *Client) fetchKlines(ctx context.Context, symbol string, iv model.Interval) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(iv))
	params.Set("limit", strconv.Itoa(c.cfg.CandleLimit))

	var rows [][]json.RawMessage
	if err := c.getJSON(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}
	return parseKlines(rows)
}

// parseKlines converts kline rows (open time ms, then OHLCV as decimal
// strings). Any malformed row fails the whole series; rows whose open
// time does not advance are dropped.
func parseKlines(rows [][]json.RawMessage) ([]model.Candle, error) {
	out := make([]model.Candle, 0, len(rows))
	var last int64 = -1
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("row %d: %d fields", i, len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("row %d open time: %w", i, err)
		}
		var vals [5]float64
		for j := range vals {
			var s string
			if err := json.Unmarshal(row[j+1], &s); err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", i, j+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}
		if openMs <= last {
			continue
		}
		last = openMs
		out = append(out, model.Candle{
			OpenTime: time.UnixMilli(openMs).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return out, nil
}

package binance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gainer-scanner/internal/model"
)

// pegged base assets never worth scanning for momentum.
var skipBases = []string{
	"USDC", "BUSD", "TUSD", "USDP", "FDUSD", "USDT", "DAI", "PAXG", "PAX", "USDK",
	"SUSD", "GUSD", "HUSD", "USDN", "UST", "FRAX", "LUSD", "TRIBE", "FEI", "ALUSD",
	"CUSD", "GOLD", "XAUT",
}

const (
	minTickerPrice = 0.00001
	minChangePct   = -95.0
	maxChangePct   = 5000.0
)

type rawTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Count              int64  `json:"count"`
}

// FetchTickerSnapshot returns the top gainers quoted in the configured
// asset, best performer first.
func (c *Client) FetchTickerSnapshot(ctx context.Context) ([]model.Ticker, error) {
	var raw []rawTicker
	if err := c.getJSON(ctx, "/api/v3/ticker/24hr", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}

	tickers := make([]model.Ticker, 0, len(raw))
	for _, r := range raw {
		t, ok := r.parse()
		if !ok {
			continue
		}
		tickers = append(tickers, t)
	}
	return SelectGainers(tickers, c.cfg.QuoteAsset, c.cfg.TopN), nil
}

func (r rawTicker) parse() (model.Ticker, bool) {
	var nums [6]float64
	for i, s := range []string{r.LastPrice, r.PriceChangePercent, r.Volume, r.QuoteVolume, r.HighPrice, r.LowPrice} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Ticker{}, false
		}
		nums[i] = v
	}
	return model.Ticker{
		Symbol:        r.Symbol,
		LastPrice:     nums[0],
		ChangePercent: nums[1],
		Volume:        nums[2],
		QuoteVolume:   nums[3],
		High:          nums[4],
		Low:           nums[5],
		Trades:        r.Count,
	}, true
}

// SelectGainers keeps symbols quoted in quote whose base is not a pegged
// asset, drops dust prices and implausible changes, sorts by 24h change
// descending and truncates to topN (no limit when topN <= 0). Coin is
// filled with the base asset.
func SelectGainers(tickers []model.Ticker, quote string, topN int) []model.Ticker {
	out := make([]model.Ticker, 0, len(tickers))
	for _, t := range tickers {
		base, ok := strings.CutSuffix(t.Symbol, quote)
		if !ok || base == "" || pegged(base) {
			continue
		}
		if t.LastPrice <= minTickerPrice || t.ChangePercent <= minChangePct || t.ChangePercent >= maxChangePct {
			continue
		}
		t.Coin = base
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangePercent > out[j].ChangePercent })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func pegged(base string) bool {
	for _, s := range skipBases {
		if strings.Contains(base, s) {
			return true
		}
	}
	return false
}

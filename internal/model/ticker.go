package model

// Ticker is the 24h rolling statistics for one symbol.
type Ticker struct {
	Symbol        string  `json:"symbol"`
	Coin          string  `json:"coin"`
	LastPrice     float64 `json:"last_price"`
	Volume        float64 `json:"volume"`
	QuoteVolume   float64 `json:"quote_volume"`
	ChangePercent float64 `json:"change_percent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Trades        int64   `json:"trades"`
}

// Level is one price level of an order book side.
type Level struct {
	Price float64
	Qty   float64
}

// OrderBook is a depth snapshot, bids best-first and asks best-first.
type OrderBook struct {
	Bids []Level
	Asks []Level
}

// Imbalance returns total bid quantity over total ask quantity across
// the first depth levels of each side (all levels when depth <= 0).
// ratio is 0 when the ask side is empty; callers decide the fallback.
func (b OrderBook) Imbalance(depth int) (ratio float64, bidQty, askQty float64) {
	bidQty = sumQty(b.Bids, depth)
	askQty = sumQty(b.Asks, depth)
	if askQty > 0 {
		ratio = bidQty / askQty
	}
	return ratio, bidQty, askQty
}

func sumQty(levels []Level, depth int) float64 {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	var total float64
	for _, l := range levels {
		total += l.Qty
	}
	return total
}

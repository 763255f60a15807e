// Package api serves a read-mostly JSON view of the scanner: open and
// closed positions, trade statistics, the current gainer list, per-symbol
// condition breakdowns and recent signals.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gainer-scanner/internal/indicator"
	"gainer-scanner/internal/model"
	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/scanner"
	"gainer-scanner/internal/strategy"
)

// Positions is the read side of the position ledger.
type Positions interface {
	Active() []portfolio.Position
	Closed() []portfolio.Position
	Stats() portfolio.Statistics
	Get(symbol string) (portfolio.Position, bool)
}

// ScanView is the read side of the scanner state.
type ScanView interface {
	CycleID() int64
	Current() string
	Gainers() []model.Ticker
	Latest(symbol string) (scanner.Evaluation, bool)
	RecentSignals() []strategy.Signal
	Stats() scanner.ScanStats
}

// Closer closes a position by hand.
type Closer interface {
	Close(ctx context.Context, symbol string) (portfolio.Event, error)
}

// Deps are the components the router reads from. Closer may be nil, in
// which case the close endpoint is not registered.
type Deps struct {
	Positions Positions
	Scan      ScanView
	Closer    Closer
	Version   string
}

// NewRouter sets up the /api/v1 routes.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":  "ok",
			"version": d.Version,
			"cycle":   d.Scan.CycleID(),
		})
	})

	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statsResponse{
			Trades: d.Positions.Stats(),
			Scan:   newScanStats(d.Scan.Stats()),
			Active: len(d.Positions.Active()),
		})
	})

	mux.HandleFunc("GET /api/v1/positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Positions.Active())
	})

	mux.HandleFunc("GET /api/v1/positions/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		sym := strings.ToUpper(r.PathValue("symbol"))
		p, ok := d.Positions.Get(sym)
		if !ok {
			httpErrorJSON(w, http.StatusNotFound, "no position for "+sym)
			return
		}
		writeJSON(w, p)
	})

	mux.HandleFunc("GET /api/v1/trades", func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryLimit(r, 50)
		if err != nil {
			httpErrorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, tail(d.Positions.Closed(), limit))
	})

	mux.HandleFunc("GET /api/v1/signals", func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryLimit(r, 0)
		if err != nil {
			httpErrorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, tail(d.Scan.RecentSignals(), limit))
	})

	mux.HandleFunc("GET /api/v1/scan", func(w http.ResponseWriter, r *http.Request) {
		resp := scanResponse{
			Cycle:   d.Scan.CycleID(),
			Current: d.Scan.Current(),
		}
		for _, t := range d.Scan.Gainers() {
			g := gainerRow{Symbol: t.Symbol, ChangePercent: t.ChangePercent, QuoteVolume: t.QuoteVolume, LastPrice: t.LastPrice}
			if ev, ok := d.Scan.Latest(t.Symbol); ok {
				g.Score = ev.Conditions.Score
				g.CoreMet = ev.Conditions.CoreMet()
				g.Reason = string(ev.Reason)
				g.Cycle = ev.Cycle
			}
			resp.Gainers = append(resp.Gainers, g)
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("GET /api/v1/scan/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		sym := strings.ToUpper(r.PathValue("symbol"))
		ev, ok := d.Scan.Latest(sym)
		if !ok {
			httpErrorJSON(w, http.StatusNotFound, "no evaluation for "+sym)
			return
		}
		writeJSON(w, evaluationResponse{
			Symbol:     sym,
			Cycle:      ev.Cycle,
			Snapshot:   ev.Snapshot,
			Conditions: ev.Conditions,
			CoreMet:    ev.Conditions.CoreMet(),
			Strength:   ev.Conditions.Strength(),
			Reason:     string(ev.Reason),
			Imbalance:  ev.Imbalance,
		})
	})

	if d.Closer != nil {
		mux.HandleFunc("POST /api/v1/positions/{symbol}/close", func(w http.ResponseWriter, r *http.Request) {
			sym := strings.ToUpper(r.PathValue("symbol"))
			ev, err := d.Closer.Close(r.Context(), sym)
			switch {
			case errors.Is(err, portfolio.ErrUnknownPosition):
				httpErrorJSON(w, http.StatusNotFound, err.Error())
				return
			case err != nil:
				httpErrorJSON(w, http.StatusInternalServerError, err.Error())
				return
			}
			log.Printf("[api] %s closed by request (%s)", sym, ev.Position.Status)
			writeJSON(w, ev.Position)
		})
	}

	return mux
}

type statsResponse struct {
	Trades portfolio.Statistics `json:"trades"`
	Scan   scanStats            `json:"scan"`
	Active int                  `json:"active_positions"`
}

type scanStats struct {
	Cycles         int64     `json:"cycles"`
	SymbolsScanned int64     `json:"symbols_scanned"`
	SignalsFound   int64     `json:"signals_found"`
	LastScan       time.Time `json:"last_scan"`
	LastDurationMs int64     `json:"last_duration_ms"`
}

func newScanStats(s scanner.ScanStats) scanStats {
	return scanStats{
		Cycles:         s.Cycles,
		SymbolsScanned: s.SymbolsScanned,
		SignalsFound:   s.SignalsFound,
		LastScan:       s.LastScan,
		LastDurationMs: s.LastDuration.Milliseconds(),
	}
}

type gainerRow struct {
	Symbol        string  `json:"symbol"`
	ChangePercent float64 `json:"change_percent"`
	QuoteVolume   float64 `json:"quote_volume"`
	LastPrice     float64 `json:"last_price"`
	Score         float64 `json:"score"`
	CoreMet       int     `json:"core_met"`
	Reason        string  `json:"reason,omitempty"`
	Cycle         int64   `json:"evaluated_cycle,omitempty"`
}

type scanResponse struct {
	Cycle   int64       `json:"cycle"`
	Current string      `json:"current,omitempty"`
	Gainers []gainerRow `json:"gainers"`
}

type evaluationResponse struct {
	Symbol     string              `json:"symbol"`
	Cycle      int64               `json:"cycle"`
	Snapshot   indicator.Snapshot  `json:"snapshot"`
	Conditions strategy.Conditions `json:"conditions"`
	CoreMet    int                 `json:"core_met"`
	Strength   int                 `json:"strength"`
	Reason     string              `json:"reason,omitempty"`
	Imbalance  float64             `json:"imbalance,omitempty"`
}

// queryLimit parses ?limit=N. Zero means no limit.
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	if items == nil {
		return []T{}
	}
	return items
}

func httpErrorJSON(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

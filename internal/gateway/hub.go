// Package gateway streams scanner activity to WebSocket clients: position
// events, signals, statistics and per-cycle scan summaries. A client that
// connects late first receives the latest value of every retained key.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/scanner"
	"gainer-scanner/internal/strategy"
)

// Channels carried in Envelope.Channel.
const (
	ChannelPosition = "position"
	ChannelSignal   = "signal"
	ChannelStats    = "stats"
	ChannelScan     = "scan"
)

const clientBuffer = 256

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope wraps every message sent to clients. Seq increases by one per
// broadcast so clients can detect gaps.
type Envelope struct {
	Channel string          `json:"channel"`
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	Initial bool            `json:"initial,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Hub tracks connected clients and the latest retained messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string]Envelope
	seq     int64
	closed  bool
	now     func() time.Time

	// OnDrop is called when a slow client misses a message.
	OnDrop func()
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		latest:  make(map[string]Envelope),
		now:     time.Now,
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer), hub: h}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.sendInitialLocked(c)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	go c.writePump()
	go c.readPump()
}

// sendInitialLocked queues the retained messages, oldest first.
func (h *Hub) sendInitialLocked(c *client) {
	entries := make([]Envelope, 0, len(h.latest))
	for _, e := range h.latest {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	for _, env := range entries {
		env.Initial = true
		buf, err := json.Marshal(env)
		if err != nil {
			continue
		}
		select {
		case c.send <- buf:
		default:
		}
	}
}

// Broadcast sends v on channel to every client. A non-empty key retains
// the message for clients that connect later.
func (h *Hub) Broadcast(channel, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] %s: marshal: %v", channel, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	env := Envelope{Channel: channel, Seq: h.seq, TS: h.now().UTC(), Data: data}
	buf, err := json.Marshal(env)
	if err != nil {
		return
	}
	if key != "" {
		h.latest[key] = env
	}

	for c := range h.clients {
		select {
		case c.send <- buf:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// forget drops a retained key.
func (h *Hub) forget(key string) {
	h.mu.Lock()
	delete(h.latest, key)
	h.mu.Unlock()
}

// PublishEvent streams a ledger event. Open positions stay retained until
// they close; the statistics carried by a close are retained as well.
func (h *Hub) PublishEvent(ev portfolio.Event) {
	key := ChannelPosition + ":" + ev.Symbol
	h.Broadcast(ChannelPosition, key, ev)
	if ev.Kind == portfolio.EventClosed {
		h.forget(key)
	}
	if ev.Stats != nil {
		h.Broadcast(ChannelStats, ChannelStats, ev.Stats)
	}
}

// PublishSignal streams an accepted signal. The last one is retained.
func (h *Hub) PublishSignal(sig strategy.Signal) {
	h.Broadcast(ChannelSignal, ChannelSignal, sig)
}

// Run streams ledger events until events is closed or ctx is cancelled,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context, events <-chan portfolio.Event) {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.PublishEvent(ev)
		}
	}
}

// ScanSource is the part of the scanner state summarised per cycle.
type ScanSource interface {
	CycleID() int64
	Current() string
	Stats() scanner.ScanStats
}

// ScanUpdate summarises the scan loop after a completed cycle.
type ScanUpdate struct {
	Cycle          int64     `json:"cycle"`
	Current        string    `json:"current,omitempty"`
	SymbolsScanned int64     `json:"symbols_scanned"`
	SignalsFound   int64     `json:"signals_found"`
	LastScan       time.Time `json:"last_scan"`
	LastDurationMs int64     `json:"last_duration_ms"`
}

// RunScanUpdates polls src every interval and broadcasts a summary each
// time a new cycle has completed.
func (h *Hub) RunScanUpdates(ctx context.Context, src ScanSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := src.Stats()
			if st.Cycles == last {
				continue
			}
			last = st.Cycles
			h.Broadcast(ChannelScan, ChannelScan, ScanUpdate{
				Cycle:          src.CycleID(),
				Current:        src.Current(),
				SymbolsScanned: st.SymbolsScanned,
				SignalsFound:   st.SignalsFound,
				LastScan:       st.LastScan,
				LastDurationMs: st.LastDuration.Milliseconds(),
			})
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// remove unregisters c. It is a no-op once Close has run.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		log.Printf("[gateway] ws client disconnected (%d left)", count)
	}
}

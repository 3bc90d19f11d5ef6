// Package gateway serves the live websocket feed of signal events and scan
// logs to operator clients.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pierrenik/signalauto/internal/model"
)

// TypeScanLog tags scan-log envelopes. Signal events use their EventKind.
const TypeScanLog = "SCAN_LOG"

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Envelope is the wire format of every feed message.
type Envelope struct {
	Type  string          `json:"type"`
	Seq   int64           `json:"seq"`
	TS    time.Time       `json:"ts"`
	Asset string          `json:"asset,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Hub manages websocket clients and fans feed envelopes out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	replay *ReplayBuffer
	log    *slog.Logger
	now    func() time.Time

	// OnClientCount is called whenever a client connects or disconnects.
	OnClientCount func(n int)
}

// NewHub creates a hub keeping the last replaySize envelopes for backfill.
func NewHub(replaySize int, l *slog.Logger) *Hub {
	if l == nil {
		l = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		log:     l.With("component", "gateway"),
		now:     time.Now,
	}
}

// Notify publishes a signal lifecycle event. It never blocks on slow clients.
func (h *Hub) Notify(_ context.Context, ev model.SignalEvent) error {
	return h.Publish(string(ev.Kind), ev.Signal.Asset, ev)
}

// PublishScanLog publishes an operator scan-log entry.
func (h *Hub) PublishScanLog(e model.ScanLogEntry) error {
	return h.Publish(TypeScanLog, e.Asset, e)
}

// Publish stamps payload with the next seq, stores it for replay and sends it
// to every client whose filter accepts asset. Clients with a full send queue
// miss the message and can backfill on reconnect.
func (h *Hub) Publish(typ, asset string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.seq++
	env := Envelope{Type: typ, Seq: h.seq, TS: h.now().UTC(), Asset: asset, Data: data}
	buf, err := json.Marshal(env)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.replay.Push(env.Seq, asset, buf)
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.wants(asset) {
			continue
		}
		c.trySend(buf)
	}
	return nil
}

// ServeHTTP upgrades the request and registers the client. The optional
// since_seq query parameter replays buffered envelopes after that seq, and
// assets (comma-separated symbols) sets the initial subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	var since int64 = -1
	if v := r.URL.Query().Get("since_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = n
		}
	}
	c := newClient(h, conn)
	if v := r.URL.Query().Get("assets"); v != "" {
		c.setAssets(strings.Split(v, ","))
	}
	h.register(c, since)
}

func (h *Hub) register(c *Client, since int64) {
	c.conn.EnableWriteCompression(true)

	h.mu.Lock()
	// Backfill under the hub lock so no envelope is both replayed and missed.
	if since >= 0 {
		entries, gap := h.replay.Since(since)
		if gap {
			h.log.Warn("replay gap, client missed evicted events", "since_seq", since)
		}
		for _, e := range entries {
			if c.wants(e.Asset) {
				c.trySend(e.Data)
			}
		}
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go c.writePump()
	go c.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	c.closeSend()
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "clients", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the seq of the last published envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}

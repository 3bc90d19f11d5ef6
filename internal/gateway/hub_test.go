package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pierrenik/signalauto/internal/model"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, raw)
	}
	return env
}

func openedEvent(asset string) model.SignalEvent {
	return model.SignalEvent{
		Kind:   model.EventOpened,
		Signal: model.Signal{ID: "sig-" + asset, Asset: asset, Direction: model.Long, Status: model.StatusOpen},
		At:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestHubBroadcastsSignalEvents(t *testing.T) {
	h := NewHub(16, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)

	if err := h.Notify(context.Background(), openedEvent("EURUSD=X")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != string(model.EventOpened) || env.Seq != 1 || env.Asset != "EURUSD=X" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var ev model.SignalEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("data: %v", err)
	}
	if ev.Signal.ID != "sig-EURUSD=X" {
		t.Errorf("signal id = %q", ev.Signal.ID)
	}
}

func TestHubReplaysSinceSeq(t *testing.T) {
	h := NewHub(16, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, a := range []string{"A", "B", "C"} {
		h.Notify(context.Background(), openedEvent(a))
	}
	h.PublishScanLog(model.ScanLogEntry{ID: "log-1", Asset: "C", Outcome: model.OutcomeRejected})

	conn := dial(t, srv, "?since_seq=2")
	got := []int64{readEnvelope(t, conn).Seq, readEnvelope(t, conn).Seq}
	if got[0] != 3 || got[1] != 4 {
		t.Fatalf("replayed seqs = %v, want [3 4]", got)
	}
}

func TestHubAssetFilter(t *testing.T) {
	h := NewHub(16, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)

	if err := conn.WriteJSON(map[string]any{"type": "SUBSCRIBE", "assets": []string{"BTC-USD"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// The subscribe is processed asynchronously; the pong proves it was read.
	conn.WriteJSON(map[string]any{"ping": 7})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, raw, err := conn.ReadMessage(); err != nil || !strings.Contains(string(raw), `"pong"`) {
		t.Fatalf("expected pong, got %s (%v)", raw, err)
	}

	h.Notify(context.Background(), openedEvent("EURUSD=X"))
	h.Notify(context.Background(), openedEvent("BTC-USD"))

	env := readEnvelope(t, conn)
	if env.Asset != "BTC-USD" || env.Seq != 2 {
		t.Errorf("filtered client got %+v, want only BTC-USD seq 2", env)
	}
}

func TestHubReplayHonoursAssetsQuery(t *testing.T) {
	h := NewHub(16, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, a := range []string{"A", "B", "A"} {
		h.Notify(context.Background(), openedEvent(a))
	}

	conn := dial(t, srv, "?since_seq=0&assets=A")
	got := []Envelope{readEnvelope(t, conn), readEnvelope(t, conn)}
	if got[0].Seq != 1 || got[1].Seq != 3 || got[1].Asset != "A" {
		t.Fatalf("replayed = %+v, want seqs 1 and 3 for A", got)
	}
}

func TestHubRemovesClientOnDisconnect(t *testing.T) {
	h := NewHub(16, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	conn.Close()
	waitClients(t, h, 0)

	// Publishing after disconnect must not panic on the closed send queue.
	if err := h.Notify(context.Background(), openedEvent("GC=F")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

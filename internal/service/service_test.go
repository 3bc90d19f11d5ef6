package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pierrenik/signalauto/config"
	"github.com/pierrenik/signalauto/internal/model"
	"github.com/pierrenik/signalauto/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		HTTPAddr:     "127.0.0.1:0",
		StoreBackend: "memory",
		SQLitePath:   filepath.Join(t.TempDir(), "signals.db"),
		ScanLogSize:  50,
		KafkaTopic:   "signal-events",
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNew_MemoryBackend(t *testing.T) {
	svc, err := New(testConfig(t), quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer svc.closeStore()

	if got := len(svc.universe.Active()); got != 15 {
		t.Errorf("active assets = %d, want 15", got)
	}
	if id := svc.scanner.Params().ID; id != config.DefaultStrategyID {
		t.Errorf("strategy = %q", id)
	}
	if svc.kafka != nil {
		t.Error("kafka notifier should be disabled without brokers")
	}
}

func TestNew_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "nested", "signals.db")

	svc, err := New(cfg, quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer svc.closeStore()
	if svc.sqlite == nil {
		t.Fatal("sqlite store not opened")
	}
	if _, err := os.Stat(cfg.SQLitePath); err != nil {
		t.Errorf("database file: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	cases := map[string]func(*config.Config){
		"backend":  func(c *config.Config) { c.StoreBackend = "mongo" },
		"strategy": func(c *config.Config) { c.ActiveStrategy = "missing" },
		"assets":   func(c *config.Config) { c.Assets = "BTC-USD" },
		"file":     func(c *config.Config) { c.StrategiesPath = "/nonexistent/strategies.yaml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)
			if _, err := New(cfg, quiet()); err == nil {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}

func TestNew_CustomUniverseAndStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	doc := "active: tight\nstrategies:\n  - id: tight\n    stop_loss_atr_multiplier: 1.5\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.StrategiesPath = path
	cfg.Assets = "BTC-USD:CRYPTO:Bitcoin,EURUSD=X:FOREX"

	svc, err := New(cfg, quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer svc.closeStore()
	if p := svc.scanner.Params(); p.ID != "tight" || p.StopLossATRMultiplier != 1.5 {
		t.Errorf("params = %+v", p)
	}
	if n := len(svc.universe.All()); n != 2 {
		t.Errorf("universe = %d assets", n)
	}
}

// outageStore fails signal writes while down is set.
type outageStore struct {
	*store.Memory
	mu   sync.Mutex
	down bool
}

func (o *outageStore) setDown(v bool) {
	o.mu.Lock()
	o.down = v
	o.mu.Unlock()
}

func (o *outageStore) SaveOpen(ctx context.Context, s model.Signal) error {
	o.mu.Lock()
	down := o.down
	o.mu.Unlock()
	if down {
		return errors.New("store down")
	}
	return o.Memory.SaveOpen(ctx, s)
}

func queued(t *testing.T, st *outageStore) *store.Outbox {
	t.Helper()
	out := store.NewOutbox(st, store.NewCircuitBreaker(100, time.Minute), 0)
	sig := model.Signal{ID: "s1", Asset: "EURUSD=X", Status: model.StatusOpen, CreatedAt: time.Now()}
	st.setDown(true)
	out.Apply(context.Background(), store.Op{Kind: store.OpSaveOpen, Signal: sig})
	if out.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", out.Pending())
	}
	return out
}

func TestFlushPending_WritesQueuedOpsOnShutdown(t *testing.T) {
	st := &outageStore{Memory: store.NewMemory(10)}
	out := queued(t, st)
	st.setDown(false)

	if n := flushPending(context.Background(), out, quiet()); n != 0 {
		t.Fatalf("remaining = %d, want 0", n)
	}
	open, _ := st.LoadOpen(context.Background())
	if len(open) != 1 {
		t.Errorf("open rows = %d, want 1", len(open))
	}
}

func TestFlushPending_LogsLostWrites(t *testing.T) {
	st := &outageStore{Memory: store.NewMemory(10)}
	out := queued(t, st)

	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	if n := flushPending(context.Background(), out, l); n != 1 {
		t.Fatalf("remaining = %d, want 1", n)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) || !strings.Contains(buf.String(), `"pending":1`) {
		t.Errorf("expected an error line with the pending count, got %s", buf.String())
	}
}

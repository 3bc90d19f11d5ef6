package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
)

// flakyStore fails every write while down is set.
type flakyStore struct {
	*Memory
	mu    sync.Mutex
	down  bool
	calls []OpKind
}

var errDown = errors.New("store down")

func (f *flakyStore) record(k OpKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	f.calls = append(f.calls, k)
	return nil
}

func (f *flakyStore) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *flakyStore) SaveOpen(ctx context.Context, s model.Signal) error {
	if err := f.record(OpSaveOpen); err != nil {
		return err
	}
	return f.Memory.SaveOpen(ctx, s)
}

func (f *flakyStore) DeleteOpen(ctx context.Context, id string) error {
	if err := f.record(OpDeleteOpen); err != nil {
		return err
	}
	return f.Memory.DeleteOpen(ctx, id)
}

func (f *flakyStore) AppendHistory(ctx context.Context, s model.Signal) error {
	if err := f.record(OpAppendHistory); err != nil {
		return err
	}
	return f.Memory.AppendHistory(ctx, s)
}

func (f *flakyStore) AppendScanLog(ctx context.Context, e model.ScanLogEntry) error {
	if err := f.record(OpAppendScanLog); err != nil {
		return err
	}
	return f.Memory.AppendScanLog(ctx, e)
}

func sig(id string) model.Signal {
	return model.Signal{ID: id, Asset: "X", Status: model.StatusOpen, CreatedAt: time.Now()}
}

func TestOutbox_QueuesAndReplaysInOrder(t *testing.T) {
	fs := &flakyStore{Memory: NewMemory(10)}
	ob := NewOutbox(fs, NewCircuitBreaker(100, time.Minute), 0)
	ctx := context.Background()

	var flushed int
	ob.OnFlush = func(n int) { flushed = n }

	fs.setDown(true)
	closed := sig("a")
	closed.Status = model.StatusWin
	err := ob.Apply(ctx,
		Op{Kind: OpSaveOpen, Signal: sig("a")},
		Op{Kind: OpDeleteOpen, ID: "a"},
		Op{Kind: OpAppendHistory, Signal: closed},
	)
	if !errors.Is(err, errDown) {
		t.Fatalf("Apply err = %v, want errDown", err)
	}
	if ob.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", ob.Pending())
	}

	fs.setDown(false)
	if err := ob.Apply(ctx, Op{Kind: OpAppendScanLog, Entry: model.ScanLogEntry{ID: "l1"}}); err != nil {
		t.Fatalf("Apply after recovery: %v", err)
	}
	if ob.Pending() != 0 || flushed != 3 {
		t.Fatalf("pending = %d flushed = %d, want 0 and 3", ob.Pending(), flushed)
	}

	want := []OpKind{OpSaveOpen, OpDeleteOpen, OpAppendHistory, OpAppendScanLog}
	if len(fs.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", fs.calls, want)
	}
	for i := range want {
		if fs.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", fs.calls, want)
		}
	}

	open, _ := fs.LoadOpen(ctx)
	hist, _ := fs.LoadHistory(ctx)
	if len(open) != 0 || len(hist) != 1 {
		t.Errorf("open=%d history=%d, want 0 and 1", len(open), len(hist))
	}
}

func TestOutbox_BreakerOpenQueuesWithoutCallingStore(t *testing.T) {
	fs := &flakyStore{Memory: NewMemory(10)}
	ob := NewOutbox(fs, NewCircuitBreaker(1, time.Hour), 0)
	ctx := context.Background()

	fs.setDown(true)
	ob.Apply(ctx, Op{Kind: OpSaveOpen, Signal: sig("a")})
	fs.setDown(false)

	err := ob.Apply(ctx, Op{Kind: OpSaveOpen, Signal: sig("b")})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if len(fs.calls) != 0 {
		t.Errorf("store called while breaker open: %v", fs.calls)
	}
	if ob.Pending() != 2 {
		t.Errorf("pending = %d, want 2", ob.Pending())
	}
}

// abandoningStore cancels the caller's context mid-write, like a shutdown
// racing a slow store.
type abandoningStore struct {
	*Memory
	cancel context.CancelFunc
}

func (a *abandoningStore) SaveOpen(ctx context.Context, s model.Signal) error {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		return ctx.Err()
	}
	return a.Memory.SaveOpen(ctx, s)
}

func TestOutbox_CancelledCallerDoesNotTripBreaker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	as := &abandoningStore{Memory: NewMemory(10), cancel: cancel}
	cb := NewCircuitBreaker(1, time.Hour)
	ob := NewOutbox(as, cb, 0)

	err := ob.Apply(ctx, Op{Kind: OpSaveOpen, Signal: sig("a")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("breaker = %s, want closed", cb.CurrentState())
	}
	if ob.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", ob.Pending())
	}

	// Already-cancelled callers never reach the store.
	if err := ob.Apply(ctx, Op{Kind: OpSaveOpen, Signal: sig("b")}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if cb.CurrentState() != StateClosed || ob.Pending() != 2 {
		t.Errorf("breaker=%s pending=%d, want closed and 2", cb.CurrentState(), ob.Pending())
	}

	if err := ob.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	open, _ := as.LoadOpen(context.Background())
	if len(open) != 2 {
		t.Errorf("open rows = %d, want 2", len(open))
	}
}

func TestOutbox_TrimDropsScanLogsFirst(t *testing.T) {
	fs := &flakyStore{Memory: NewMemory(10)}
	ob := NewOutbox(fs, NewCircuitBreaker(1000, time.Minute), 2)
	fs.setDown(true)

	ob.Apply(context.Background(),
		Op{Kind: OpAppendScanLog, Entry: model.ScanLogEntry{ID: "1"}},
		Op{Kind: OpSaveOpen, Signal: sig("a")},
		Op{Kind: OpAppendScanLog, Entry: model.ScanLogEntry{ID: "2"}},
		Op{Kind: OpSaveOpen, Signal: sig("b")},
	)
	if ob.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", ob.Pending())
	}
	for _, op := range ob.pending {
		if op.Kind != OpSaveOpen {
			t.Errorf("kept %s, want only signal writes", op.Kind)
		}
	}
}

func TestMemory_HistoryIdempotentAndCooldownExpiry(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s := sig("a")
	s.PnLR = 1
	m.AppendHistory(ctx, s)
	s.PnLR = 2
	m.AppendHistory(ctx, s)
	hist, _ := m.LoadHistory(ctx)
	if len(hist) != 1 || hist[0].PnLR != 1 {
		t.Errorf("history = %+v, want first insert only", hist)
	}

	m.SaveCooldown(ctx, "X", now.Add(time.Minute))
	m.SaveCooldown(ctx, "Y", now.Add(-time.Minute))
	cd, _ := m.LoadCooldowns(ctx)
	if _, ok := cd["X"]; !ok || len(cd) != 1 {
		t.Errorf("cooldowns = %v, want only X", cd)
	}

	for _, id := range []string{"1", "2", "3"} {
		m.AppendScanLog(ctx, model.ScanLogEntry{ID: id})
	}
	logs, _ := m.LoadScanLogs(ctx, 10)
	if len(logs) != 2 || logs[0].ID != "3" || logs[1].ID != "2" {
		t.Errorf("logs = %+v, want [3 2]", logs)
	}
}

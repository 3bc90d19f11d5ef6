package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
)

// OpKind identifies a queued store write.
type OpKind string

const (
	OpSaveOpen      OpKind = "save_open"
	OpDeleteOpen    OpKind = "delete_open"
	OpAppendHistory OpKind = "append_history"
	OpSaveCooldown  OpKind = "save_cooldown"
	OpAppendScanLog OpKind = "append_scan_log"
)

// Op is one pending write. Only the fields relevant to Kind are set.
type Op struct {
	Kind   OpKind
	Signal model.Signal
	ID     string
	Symbol string
	Until  time.Time
	Entry  model.ScanLogEntry
}

// Outbox fronts a SignalStore with a circuit breaker. Writes that fail are
// queued in order and replayed before any later write, so a store outage
// delays persistence but never reorders or drops signal writes.
type Outbox struct {
	store model.SignalStore
	cb    *CircuitBreaker

	mu         sync.Mutex
	pending    []Op
	maxPending int

	// Callbacks
	OnQueue func(pending int) // called after ops are queued (for metrics)
	OnFlush func(count int)   // called after queued ops were replayed
}

// NewOutbox wraps s. When more than maxPending ops are queued the oldest
// scan-log writes are discarded first; signal writes are never discarded.
func NewOutbox(s model.SignalStore, cb *CircuitBreaker, maxPending int) *Outbox {
	if maxPending <= 0 {
		maxPending = 10000
	}
	return &Outbox{store: s, cb: cb, maxPending: maxPending}
}

// Store returns the wrapped store, for reads.
func (o *Outbox) Store() model.SignalStore { return o.store }

// Apply replays anything pending and then performs ops in order. On the
// first failure the failing op and everything after it are queued and the
// error is returned.
func (o *Outbox) Apply(ctx context.Context, ops ...Op) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	backlog := len(o.pending)
	queue := append(o.pending, ops...)
	o.pending = nil

	done, err := o.drain(ctx, queue)
	if replayed := min(done, backlog); replayed > 0 && o.OnFlush != nil {
		o.OnFlush(replayed)
	}
	if err == nil {
		return nil
	}

	o.pending = append(o.pending, queue[done:]...)
	o.trim()
	log.Printf("[outbox] store unavailable, %d writes pending: %v", len(o.pending), err)
	if o.OnQueue != nil {
		o.OnQueue(len(o.pending))
	}
	return fmt.Errorf("store write deferred: %w", err)
}

// Flush replays pending ops. It is a no-op when nothing is queued.
func (o *Outbox) Flush(ctx context.Context) error {
	return o.Apply(ctx)
}

// Pending returns the number of queued ops.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Outbox) drain(ctx context.Context, ops []Op) (int, error) {
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		err := o.cb.ExecuteContext(ctx, func() error { return o.exec(ctx, op) })
		if err != nil {
			return i, err
		}
	}
	return len(ops), nil
}

func (o *Outbox) exec(ctx context.Context, op Op) error {
	switch op.Kind {
	case OpSaveOpen:
		return o.store.SaveOpen(ctx, op.Signal)
	case OpDeleteOpen:
		return o.store.DeleteOpen(ctx, op.ID)
	case OpAppendHistory:
		return o.store.AppendHistory(ctx, op.Signal)
	case OpSaveCooldown:
		return o.store.SaveCooldown(ctx, op.Symbol, op.Until)
	case OpAppendScanLog:
		return o.store.AppendScanLog(ctx, op.Entry)
	default:
		log.Printf("[outbox] dropping unknown op kind %q", op.Kind)
		return nil
	}
}

// trim enforces maxPending by dropping the oldest scan-log ops.
func (o *Outbox) trim() {
	over := len(o.pending) - o.maxPending
	if over <= 0 {
		return
	}
	kept := o.pending[:0]
	for _, op := range o.pending {
		if over > 0 && op.Kind == OpAppendScanLog {
			over--
			continue
		}
		kept = append(kept, op)
	}
	o.pending = kept
}

// Package portfolio owns the open-signal set and the cooldown registry.
//
// Book is the only writer of that state. Every transition returns the
// effects (records to persist, events to publish) and leaves I/O to the
// caller.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
)

var (
	ErrDuplicateOpen  = errors.New("portfolio: asset already has an open signal")
	ErrMuted          = errors.New("portfolio: asset is under cooldown")
	ErrSignalNotFound = errors.New("portfolio: signal not found")
	ErrAlreadyClosed  = errors.New("portfolio: signal already closed")
	ErrInvalidSignal  = errors.New("portfolio: invalid signal")
)

// Effects describes the side effects of a transition.
type Effects struct {
	Upsert    []model.Signal
	Delete    []string
	Archive   []model.Signal
	Cooldowns map[string]time.Time
	Events    []model.SignalEvent
}

// Empty reports whether the transition produced nothing to persist or publish.
func (e Effects) Empty() bool {
	return len(e.Upsert) == 0 && len(e.Delete) == 0 && len(e.Archive) == 0 &&
		len(e.Cooldowns) == 0 && len(e.Events) == 0
}

// Merge appends o's effects to e.
func (e *Effects) Merge(o Effects) {
	e.Upsert = append(e.Upsert, o.Upsert...)
	e.Delete = append(e.Delete, o.Delete...)
	e.Archive = append(e.Archive, o.Archive...)
	for k, v := range o.Cooldowns {
		if e.Cooldowns == nil {
			e.Cooldowns = make(map[string]time.Time)
		}
		e.Cooldowns[k] = v
	}
	e.Events = append(e.Events, o.Events...)
}

// Transition reports the outcome of one price update.
type Transition struct {
	Signal model.Signal
	Closed bool
}

// Option configures a Book.
type Option func(*Book)

// WithCooldown sets the dismissal cooldown. Values below DefaultCooldown are raised to it.
func WithCooldown(d time.Duration) Option {
	return func(b *Book) {
		if d > DefaultCooldown {
			b.cooldown = d
		}
	}
}

// WithRatchet makes live exit levels only ever tighten, like the backtest.
func WithRatchet(on bool) Option {
	return func(b *Book) { b.ratchet = on }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// Book tracks open signals (at most one per asset), terminal ids, closed
// history and the cooldown registry.
type Book struct {
	mu        sync.RWMutex
	open      map[string]*model.Signal // key = asset symbol
	terminal  map[string]struct{}      // closed or dismissed ids
	history   []model.Signal
	cooldowns map[string]time.Time
	locks     map[string]*sync.Mutex

	cooldown time.Duration
	ratchet  bool
	now      func() time.Time
}

// NewBook creates an empty Book.
func NewBook(opts ...Option) *Book {
	b := &Book{
		open:      make(map[string]*model.Signal),
		terminal:  make(map[string]struct{}),
		cooldowns: make(map[string]time.Time),
		locks:     make(map[string]*sync.Mutex),
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// LockAsset enters the per-asset critical section and returns its release.
// Callers hold it across read-decide-write for one asset.
func (b *Book) LockAsset(symbol string) func() {
	b.mu.Lock()
	l, ok := b.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		b.locks[symbol] = l
	}
	b.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// OpenFor returns the open signal for symbol, if any.
func (b *Book) OpenFor(symbol string) (model.Signal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.open[symbol]; ok {
		return s.Clone(), true
	}
	return model.Signal{}, false
}

// Muted reports whether symbol is under a non-expired cooldown, and until when.
func (b *Book) Muted(symbol string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	until, ok := b.cooldowns[symbol]
	if !ok || !b.now().Before(until) {
		return time.Time{}, false
	}
	return until, true
}

// Open registers a freshly accepted signal.
func (b *Book) Open(sig model.Signal) (Effects, error) {
	if sig.ID == "" || sig.Asset == "" || !sig.IsOpen() {
		return Effects{}, fmt.Errorf("%w: id=%q asset=%q status=%s", ErrInvalidSignal, sig.ID, sig.Asset, sig.Status)
	}
	if sig.Setup.RiskDistance() <= 0 {
		return Effects{}, fmt.Errorf("%w: zero risk distance for %s", ErrInvalidSignal, sig.Asset)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.terminal[sig.ID]; ok {
		return Effects{}, fmt.Errorf("%w: %s", ErrAlreadyClosed, sig.ID)
	}
	if cur, ok := b.open[sig.Asset]; ok {
		return Effects{}, fmt.Errorf("%w: %s (%s)", ErrDuplicateOpen, sig.Asset, cur.ID)
	}
	if until, ok := b.cooldowns[sig.Asset]; ok && b.now().Before(until) {
		return Effects{}, fmt.Errorf("%w: %s until %s", ErrMuted, sig.Asset, until.Format(time.RFC3339))
	}

	s := sig.Clone()
	b.open[s.Asset] = &s
	return Effects{
		Upsert: []model.Signal{s.Clone()},
		Events: []model.SignalEvent{{Kind: model.EventOpened, Signal: s.Clone(), At: s.CreatedAt}},
	}, nil
}

// Update applies one price observation to the open signal on symbol.
// exitLevel is the trailing-exit level from the fresh indicator snapshot.
func (b *Book) Update(symbol string, price, exitLevel float64, at time.Time) (Transition, Effects) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.open[symbol]
	if !ok {
		return Transition{}, Effects{}
	}

	level := exitLevel
	if b.ratchet {
		level = Tighten(s.Direction, s.TrailingExit, exitLevel)
	}

	if !ExitTriggered(s.Direction, price, level) {
		if level == s.TrailingExit {
			return Transition{Signal: s.Clone()}, Effects{}
		}
		s.TrailingExit = level
		return Transition{Signal: s.Clone()}, Effects{Upsert: []model.Signal{s.Clone()}}
	}

	closedAt := at
	s.TrailingExit = level
	s.ClosePrice = price
	s.ClosedAt = &closedAt
	s.PnLR = RealizedR(s.Direction, s.Setup.EntryPrice, s.Setup.StopLoss, price)
	s.Status = Classify(s.PnLR)

	rec := s.Clone()
	delete(b.open, symbol)
	b.terminal[rec.ID] = struct{}{}
	b.history = append(b.history, rec)

	return Transition{Signal: rec.Clone(), Closed: true}, Effects{
		Delete:  []string{rec.ID},
		Archive: []model.Signal{rec.Clone()},
		Events:  []model.SignalEvent{{Kind: model.EventClosed, Signal: rec.Clone(), At: at}},
	}
}

// Dismiss removes an open signal without archiving it and mutes its asset.
func (b *Book) Dismiss(id string) (Effects, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.terminal[id]; ok {
		return Effects{}, fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
	}
	var sym string
	for k, s := range b.open {
		if s.ID == id {
			sym = k
			break
		}
	}
	if sym == "" {
		return Effects{}, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}

	s := b.open[sym]
	now := b.now()
	until := now.Add(b.cooldown)
	delete(b.open, sym)
	b.terminal[id] = struct{}{}
	b.cooldowns[sym] = until

	return Effects{
		Delete:    []string{id},
		Cooldowns: map[string]time.Time{sym: until},
		Events:    []model.SignalEvent{{Kind: model.EventDismissed, Signal: s.Clone(), At: now}},
	}, nil
}

// Restore rebuilds the in-memory state from persisted records. Open records
// already present in history, or surplus opens for an asset (only the newest
// is kept), are returned as deletions so the store converges.
func (b *Book) Restore(open []model.Signal, cooldowns map[string]time.Time, history []model.Signal) Effects {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open = make(map[string]*model.Signal)
	b.terminal = make(map[string]struct{})
	b.cooldowns = make(map[string]time.Time)
	b.history = b.history[:0]

	hist := append([]model.Signal(nil), history...)
	sort.SliceStable(hist, func(i, j int) bool { return closedTime(hist[i]).Before(closedTime(hist[j])) })
	for _, h := range hist {
		if _, dup := b.terminal[h.ID]; dup {
			continue
		}
		b.terminal[h.ID] = struct{}{}
		b.history = append(b.history, h.Clone())
	}

	now := b.now()
	for sym, until := range cooldowns {
		if now.Before(until) {
			b.cooldowns[sym] = until
		}
	}

	var fx Effects
	sorted := append([]model.Signal(nil), open...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	for _, s := range sorted {
		if _, closed := b.terminal[s.ID]; closed {
			fx.Delete = append(fx.Delete, s.ID)
			continue
		}
		if _, taken := b.open[s.Asset]; taken {
			fx.Delete = append(fx.Delete, s.ID)
			continue
		}
		c := s.Clone()
		c.Status = model.StatusOpen
		b.open[c.Asset] = &c
	}
	return fx
}

// Snapshot returns the open signals, newest first.
func (b *Book) Snapshot() []model.Signal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Signal, 0, len(b.open))
	for _, s := range b.open {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// History returns closed signals, most recently closed first.
func (b *Book) History() []model.Signal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Signal, len(b.history))
	for i, s := range b.history {
		out[len(b.history)-1-i] = s.Clone()
	}
	return out
}

// Cooldowns returns the non-expired cooldown entries.
func (b *Book) Cooldowns() map[string]time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	now := b.now()
	out := make(map[string]time.Time, len(b.cooldowns))
	for k, v := range b.cooldowns {
		if now.Before(v) {
			out[k] = v
		}
	}
	return out
}

func closedTime(s model.Signal) time.Time {
	if s.ClosedAt != nil {
		return *s.ClosedAt
	}
	return s.CreatedAt
}

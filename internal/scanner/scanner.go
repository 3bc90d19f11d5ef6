// Package scanner drives periodic scan cycles over the asset universe:
// fetch, compute indicators, manage the open signal or look for a new one,
// persist the resulting transitions and publish events.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pierrenik/signalauto/internal/indicator"
	"github.com/pierrenik/signalauto/internal/logger"
	"github.com/pierrenik/signalauto/internal/metrics"
	"github.com/pierrenik/signalauto/internal/model"
	"github.com/pierrenik/signalauto/internal/notification"
	"github.com/pierrenik/signalauto/internal/portfolio"
	"github.com/pierrenik/signalauto/internal/ringbuf"
	"github.com/pierrenik/signalauto/internal/store"
	"github.com/pierrenik/signalauto/internal/strategy"
)

// StaleAfter is how long after the last finished cycle the engine counts as offline.
const StaleAfter = 30 * time.Minute

// DefaultInterval is the cycle period used when Run gets a non-positive one.
const DefaultInterval = time.Minute

const (
	notifyTimeout = 5 * time.Second
	storeTimeout  = 10 * time.Second
)

// Config controls cycle pacing.
type Config struct {
	BatchSize    int           // assets evaluated concurrently
	BatchPause   time.Duration // pause between batches
	FetchTimeout time.Duration // per-asset fetch bound
	LogSize      int           // scan-log ring capacity
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.LogSize <= 0 {
		c.LogSize = 50
	}
}

// CycleReport summarises one cycle.
type CycleReport struct {
	ID        string        `json:"id"`
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Success   int           `json:"success"`
	Rejected  int           `json:"rejected"`
	Errors    int           `json:"errors"`
	Opened    int           `json:"opened"`
	Closed    int           `json:"closed"`
	Cancelled bool          `json:"cancelled"`
}

// Status is the operator view of the engine.
type Status struct {
	State         string    `json:"state"` // ACTIVE or OFFLINE
	Progress      float64   `json:"progress"`
	LastCycle     time.Time `json:"last_cycle"`
	Running       int       `json:"running"`
	OpenSignals   int       `json:"open_signals"`
	PendingWrites int       `json:"pending_writes"`
	Strategy      string    `json:"strategy"`
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithNotifier sets the event sink. Delivery failures are logged only.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Scanner) { s.notify = n }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.prom = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// WithScanLogHook is called with every new scan-log entry.
func WithScanLogHook(fn func(model.ScanLogEntry)) Option {
	return func(s *Scanner) { s.onLog = fn }
}

// WithProgress is called with the cycle completion percentage after each asset.
func WithProgress(fn func(pct float64)) Option {
	return func(s *Scanner) { s.onProgress = fn }
}

// Scanner is the scan orchestrator. Book holds the authoritative in-memory
// state; the outbox makes every transition durable.
type Scanner struct {
	cfg    Config
	src    model.MarketDataSource
	book   *portfolio.Book
	out    *store.Outbox
	notify notification.Notifier
	prom   *metrics.Metrics
	log    *slog.Logger
	now    func() time.Time
	logs   *ringbuf.Ring[model.ScanLogEntry]

	onLog      func(model.ScanLogEntry)
	onProgress func(pct float64)

	mu        sync.RWMutex
	params    model.StrategyParams
	progress  float64
	lastCycle time.Time
	running   int
}

// New creates a Scanner that evaluates assets with params.
func New(cfg Config, src model.MarketDataSource, book *portfolio.Book, out *store.Outbox, params model.StrategyParams, opts ...Option) *Scanner {
	cfg.applyDefaults()
	s := &Scanner{
		cfg:    cfg,
		src:    src,
		book:   book,
		out:    out,
		params: params,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "scanner")
	s.logs = ringbuf.New[model.ScanLogEntry](cfg.LogSize)
	return s
}

// SetParams replaces the active strategy. Running cycles keep the set they started with.
func (s *Scanner) SetParams(p model.StrategyParams) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
}

// Params returns the active strategy.
func (s *Scanner) Params() model.StrategyParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Book returns the lifecycle state owner.
func (s *Scanner) Book() *portfolio.Book { return s.book }

// Rehydrate rebuilds the in-memory state from the store. Stale open rows
// found during the rebuild are deleted.
func (s *Scanner) Rehydrate(ctx context.Context) error {
	st := s.out.Store()
	open, err := st.LoadOpen(ctx)
	if err != nil {
		return fmt.Errorf("load open signals: %w", err)
	}
	history, err := st.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	cooldowns, err := st.LoadCooldowns(ctx)
	if err != nil {
		return fmt.Errorf("load cooldowns: %w", err)
	}
	logs, err := st.LoadScanLogs(ctx, s.logs.Cap())
	if err != nil {
		s.log.Warn("scan log restore failed", "err", err)
	}
	for i := len(logs) - 1; i >= 0; i-- {
		s.logs.Push(logs[i])
	}

	fx := s.book.Restore(open, cooldowns, history)
	if len(fx.Delete) > 0 {
		s.log.Info("dropping stale open signals", "count", len(fx.Delete))
		if err := s.out.Apply(ctx, opsFor(fx)...); err != nil {
			s.log.Warn("stale signal cleanup deferred", "err", err)
		}
	}
	s.setOpenGauge()
	s.log.Info("state restored",
		"open", len(s.book.Snapshot()),
		"history", len(s.book.History()),
		"cooldowns", len(s.book.Cooldowns()),
	)
	return nil
}

// RunCycle evaluates every active asset once. Per-asset failures never abort
// the cycle; cancelling ctx stops it between batches. A cycle whose ctx was
// cancelled at any point is reported as cancelled and does not count as a
// finished cycle.
func (s *Scanner) RunCycle(ctx context.Context, assets []model.Asset) CycleReport {
	started := s.now()
	rep := CycleReport{ID: logger.GenerateCycleID(started), Started: started}
	ctx = logger.WithCycleID(ctx, rep.ID)
	params := s.Params()

	active := make([]model.Asset, 0, len(assets))
	for _, a := range assets {
		if a.Active {
			active = append(active, a)
		}
	}
	rep.Total = len(active)

	s.mu.Lock()
	s.running++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()

	if pending := s.out.Pending(); pending > 0 {
		if err := s.out.Flush(ctx); err != nil {
			s.log.Warn("pending writes still deferred", append(logger.LogWithCycle(ctx), "pending", s.out.Pending(), "err", err)...)
		}
	}

	s.setProgress(0)
	var (
		completed atomic.Int64
		repMu     sync.Mutex
	)

	for start := 0; start < len(active); start += s.cfg.BatchSize {
		if start > 0 && s.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.BatchPause):
			}
		}
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}

		end := min(start+s.cfg.BatchSize, len(active))
		var wg sync.WaitGroup
		for _, asset := range active[start:end] {
			wg.Add(1)
			go func(asset model.Asset) {
				defer wg.Done()
				res := s.evaluate(ctx, asset, params)

				repMu.Lock()
				switch res.outcome {
				case model.OutcomeSuccess:
					rep.Success++
				case model.OutcomeRejected:
					rep.Rejected++
				default:
					rep.Errors++
				}
				if res.opened {
					rep.Opened++
				}
				if res.closed {
					rep.Closed++
				}
				repMu.Unlock()

				done := completed.Add(1)
				s.setProgress(float64(done) / float64(len(active)) * 100)
			}(asset)
		}
		wg.Wait()
	}

	if ctx.Err() != nil {
		rep.Cancelled = true
	}
	rep.Completed = int(completed.Load())
	rep.Finished = s.now()
	rep.Duration = rep.Finished.Sub(started)
	if !rep.Cancelled {
		s.setProgress(100)
		s.mu.Lock()
		s.lastCycle = rep.Finished
		s.mu.Unlock()
	}
	if s.prom != nil {
		s.prom.CyclesTotal.Inc()
		s.prom.CycleDuration.Observe(rep.Duration.Seconds())
	}
	s.log.Info("scan cycle finished", append(logger.LogWithCycle(ctx),
		"total", rep.Total,
		"success", rep.Success,
		"rejected", rep.Rejected,
		"errors", rep.Errors,
		"opened", rep.Opened,
		"closed", rep.Closed,
		"duration", rep.Duration.String(),
		"cancelled", rep.Cancelled,
	)...)
	return rep
}

// Run starts a cycle immediately and then every interval until ctx is
// cancelled. A tick that fires while a cycle is still running starts another
// one; per-asset locks keep them consistent.
func (s *Scanner) Run(ctx context.Context, interval time.Duration, universe *Universe) {
	if interval <= 0 {
		s.log.Warn("invalid scan interval, using default", "interval", interval.String(), "default", DefaultInterval.String())
		interval = DefaultInterval
	}
	var wg sync.WaitGroup
	launch := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunCycle(ctx, universe.Active())
		}()
	}

	launch()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			launch()
		}
	}
}

// Dismiss force-closes an open signal without archiving it and mutes its asset.
func (s *Scanner) Dismiss(ctx context.Context, id string) (model.Signal, error) {
	var sig model.Signal
	for _, o := range s.book.Snapshot() {
		if o.ID == id {
			sig = o
			break
		}
	}
	if sig.Asset != "" {
		release := s.book.LockAsset(sig.Asset)
		defer release()
	}

	fx, err := s.book.Dismiss(id)
	if err != nil {
		return model.Signal{}, err
	}
	if len(fx.Events) > 0 {
		sig = fx.Events[0].Signal
	}
	if s.prom != nil {
		s.prom.SignalsDismissed.Inc()
	}
	s.setOpenGauge()
	s.log.Info("signal dismissed", "signal_id", id, "asset", sig.Asset)
	s.persist(ctx, fx)
	s.publish(ctx, fx.Events)
	return sig, nil
}

// Logs returns up to limit scan-log entries, newest first. limit <= 0 returns all.
func (s *Scanner) Logs(limit int) []model.ScanLogEntry {
	all := s.logs.Snapshot()
	if limit > 0 && limit < len(all) {
		return all[:limit]
	}
	return all
}

// Progress returns the completion percentage of the most recent cycle.
func (s *Scanner) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// LastCycle returns when the last uncancelled cycle finished.
func (s *Scanner) LastCycle() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCycle
}

// Status reports liveness: ACTIVE when a cycle finished within StaleAfter.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	st := Status{
		State:     "OFFLINE",
		Progress:  s.progress,
		LastCycle: s.lastCycle,
		Running:   s.running,
		Strategy:  s.params.ID,
	}
	s.mu.RUnlock()

	if !st.LastCycle.IsZero() && s.now().Sub(st.LastCycle) < StaleAfter {
		st.State = "ACTIVE"
	}
	st.OpenSignals = len(s.book.Snapshot())
	st.PendingWrites = s.out.Pending()
	return st
}

type assetResult struct {
	outcome model.ScanOutcome
	opened  bool
	closed  bool
}

// evaluate runs the full pipeline for one asset and records a scan-log entry.
func (s *Scanner) evaluate(ctx context.Context, asset model.Asset, params model.StrategyParams) assetResult {
	sym := asset.Symbol
	attrs := append(logger.LogWithCycle(ctx), "asset", sym)

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	fetchStart := time.Now()
	series, err := s.src.Fetch(fetchCtx, asset)
	cancel()
	if s.prom != nil {
		s.prom.FetchDuration.WithLabelValues(string(asset.Class)).Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		if s.prom != nil {
			s.prom.FetchErrors.WithLabelValues(string(asset.Class)).Inc()
		}
		s.log.Warn("fetch failed", append(attrs, "err", err)...)
		return s.record(ctx, sym, model.OutcomeError, "fetch failed: "+err.Error())
	}

	ind, err := indicator.Compute(series, params)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			return s.record(ctx, sym, model.OutcomeRejected, err.Error())
		}
		s.log.Error("indicator compute failed", append(attrs, "err", err)...)
		return s.record(ctx, sym, model.OutcomeError, err.Error())
	}
	price := ind.Price
	now := s.now()

	release := s.book.LockAsset(sym)
	defer release()

	if _, ok := s.book.OpenFor(sym); ok {
		return s.manage(ctx, sym, price, ind, now, attrs)
	}

	if until, muted := s.book.Muted(sym); muted {
		return s.record(ctx, sym, model.OutcomeRejected,
			fmt.Sprintf("cooldown active until %s", until.UTC().Format(time.RFC3339)))
	}

	dec, err := strategy.Evaluate(price, ind, params)
	if err != nil {
		s.log.Error("evaluation failed", append(attrs, "err", err)...)
		return s.record(ctx, sym, model.OutcomeError, err.Error())
	}
	if !dec.Accepted {
		s.log.Debug("rejected", append(attrs, "reason", string(dec.Reason))...)
		return s.record(ctx, sym, model.OutcomeRejected, dec.Diagnostic)
	}

	sig := dec.NewSignal(asset, params.ID, ind, now)
	fx, err := s.book.Open(sig)
	if err != nil {
		s.log.Error("open rejected by book", append(attrs, "err", err)...)
		return s.record(ctx, sym, model.OutcomeError, err.Error())
	}
	if s.prom != nil {
		s.prom.SignalsOpened.Inc()
	}
	s.setOpenGauge()
	s.log.Info("signal opened", append(attrs,
		"signal_id", sig.ID,
		"direction", string(sig.Direction),
		"confidence", sig.Confidence,
		"entry", sig.Setup.EntryPrice,
		"stop", sig.Setup.StopLoss,
		"target", sig.Setup.TakeProfit,
	)...)
	s.persist(ctx, fx)
	res := s.record(ctx, sym, model.OutcomeSuccess, fmt.Sprintf("%s signal opened (confidence %d): %s",
		sig.Direction, sig.Confidence, dec.Diagnostic))
	s.publish(ctx, fx.Events)
	res.opened = true
	return res
}

// manage applies the live exit rule to the open signal on sym. Caller holds the asset lock.
func (s *Scanner) manage(ctx context.Context, sym string, price float64, ind model.Indicators, now time.Time, attrs []any) assetResult {
	tr, fx := s.book.Update(sym, price, ind.TrailingExit, now)
	s.persist(ctx, fx)

	if !tr.Closed {
		return s.record(ctx, sym, model.OutcomeSuccess, fmt.Sprintf("managing %s: price %.5f exit %.5f",
			tr.Signal.Direction, price, tr.Signal.TrailingExit))
	}

	sig := tr.Signal
	if s.prom != nil {
		s.prom.SignalsClosed.WithLabelValues(string(sig.Status)).Inc()
		s.prom.RealizedR.Observe(sig.PnLR)
	}
	s.setOpenGauge()
	s.log.Info("signal closed", append(attrs,
		"signal_id", sig.ID,
		"direction", string(sig.Direction),
		"outcome", string(sig.Status),
		"pnl_r", sig.PnLR,
	)...)
	res := s.record(ctx, sym, model.OutcomeSuccess, fmt.Sprintf("%s closed %s at %.5f (%+.2fR)",
		sig.Direction, sig.Status, sig.ClosePrice, sig.PnLR))
	s.publish(ctx, fx.Events)
	res.closed = true
	return res
}

// record appends a scan-log entry to the ring and the store.
func (s *Scanner) record(ctx context.Context, sym string, outcome model.ScanOutcome, msg string) assetResult {
	e := model.ScanLogEntry{
		ID:      uuid.NewString(),
		TS:      s.now(),
		Asset:   sym,
		Outcome: outcome,
		Message: msg,
	}
	s.logs.Push(e)
	if s.prom != nil {
		s.prom.OutcomesTotal.WithLabelValues(string(outcome)).Inc()
	}
	wctx, cancel := storeContext(ctx)
	defer cancel()
	if err := s.out.Apply(wctx, store.Op{Kind: store.OpAppendScanLog, Entry: e}); err != nil {
		s.log.Debug("scan log write deferred", "asset", sym, "err", err)
	}
	if s.onLog != nil {
		s.onLog(e)
	}
	return assetResult{outcome: outcome}
}

// persist writes transition effects. A store failure leaves the writes
// queued in the outbox; the in-memory transition stands.
func (s *Scanner) persist(ctx context.Context, fx portfolio.Effects) {
	ops := opsFor(fx)
	if len(ops) == 0 {
		return
	}
	wctx, cancel := storeContext(ctx)
	defer cancel()
	if err := s.out.Apply(wctx, ops...); err != nil {
		s.log.Warn("state write deferred", append(logger.LogWithCycle(ctx), "pending", s.out.Pending(), "err", err)...)
	}
}

// storeContext bounds a write of a transition that already happened in
// memory. It outlives cycle cancellation so the store keeps up with the book.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

// publish delivers events best effort. It runs detached from ctx so a
// cancelled cycle still announces transitions it already made.
func (s *Scanner) publish(ctx context.Context, events []model.SignalEvent) {
	if s.notify == nil || len(events) == 0 {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	for _, ev := range events {
		if err := s.notify.Notify(nctx, ev); err != nil {
			if s.prom != nil {
				s.prom.NotifyErrors.Inc()
			}
			s.log.Warn("notify failed", "kind", string(ev.Kind), "signal_id", ev.Signal.ID, "err", err)
		}
	}
}

func (s *Scanner) setProgress(pct float64) {
	s.mu.Lock()
	s.progress = pct
	s.mu.Unlock()
	if s.prom != nil {
		s.prom.CycleProgress.Set(pct)
	}
	if s.onProgress != nil {
		s.onProgress(pct)
	}
}

func (s *Scanner) setOpenGauge() {
	if s.prom != nil {
		s.prom.OpenSignals.Set(float64(len(s.book.Snapshot())))
	}
}

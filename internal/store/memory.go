package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
)

// Memory is a process-local SignalStore. State is lost on restart.
type Memory struct {
	mu        sync.RWMutex
	open      map[string]model.Signal
	history   map[string]model.Signal
	cooldowns map[string]time.Time
	logs      []model.ScanLogEntry
	maxLogs   int
	now       func() time.Time
}

// NewMemory creates an empty in-memory store retaining up to maxLogs scan logs.
func NewMemory(maxLogs int) *Memory {
	if maxLogs <= 0 {
		maxLogs = 500
	}
	return &Memory{
		open:      make(map[string]model.Signal),
		history:   make(map[string]model.Signal),
		cooldowns: make(map[string]time.Time),
		maxLogs:   maxLogs,
		now:       time.Now,
	}
}

func (m *Memory) SaveOpen(_ context.Context, sig model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[sig.ID] = sig.Clone()
	return nil
}

func (m *Memory) DeleteOpen(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, id)
	return nil
}

func (m *Memory) AppendHistory(_ context.Context, sig model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.history[sig.ID]; !ok {
		m.history[sig.ID] = sig.Clone()
	}
	return nil
}

func (m *Memory) SaveCooldown(_ context.Context, symbol string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[symbol] = until
	return nil
}

func (m *Memory) AppendScanLog(_ context.Context, e model.ScanLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, e)
	if over := len(m.logs) - m.maxLogs; over > 0 {
		m.logs = append([]model.ScanLogEntry(nil), m.logs[over:]...)
	}
	return nil
}

func (m *Memory) LoadOpen(_ context.Context) ([]model.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Signal, 0, len(m.open))
	for _, s := range m.open {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) LoadHistory(_ context.Context) ([]model.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Signal, 0, len(m.history))
	for _, s := range m.history {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return closedAt(out[i]).Before(closedAt(out[j])) })
	return out, nil
}

func (m *Memory) LoadCooldowns(_ context.Context) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	out := make(map[string]time.Time, len(m.cooldowns))
	for k, v := range m.cooldowns {
		if v.After(now) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) LoadScanLogs(_ context.Context, limit int) ([]model.ScanLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.logs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ScanLogEntry, 0, n)
	for i := len(m.logs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.logs[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func closedAt(s model.Signal) time.Time {
	if s.ClosedAt != nil {
		return *s.ClosedAt
	}
	return s.CreatedAt
}

package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// The core talks to the outside world only through these. Concrete adapters
// live in internal/marketdata and internal/store.

// MarketDataSource fetches the recent bar history of an asset.
type MarketDataSource interface {
	// Fetch returns a chronologically ordered series. Transient network
	// failures are returned as errors wrapping marketdata.ErrUnavailable;
	// implementations never panic.
	Fetch(ctx context.Context, asset Asset) (MarketSeries, error)
}

// SignalWriter persists signal state transitions.
type SignalWriter interface {
	// SaveOpen inserts or replaces an OPEN signal keyed by ID.
	SaveOpen(ctx context.Context, sig Signal) error

	// DeleteOpen removes an OPEN signal. Deleting a missing ID is not an error.
	DeleteOpen(ctx context.Context, id string) error

	// AppendHistory stores a closed signal. Re-inserting the same ID is a no-op.
	AppendHistory(ctx context.Context, sig Signal) error

	// SaveCooldown records a suppression window for an asset.
	SaveCooldown(ctx context.Context, symbol string, until time.Time) error

	// AppendScanLog stores an operator log entry.
	AppendScanLog(ctx context.Context, entry ScanLogEntry) error
}

// SignalReader reads back persisted state for startup rehydration.
type SignalReader interface {
	LoadOpen(ctx context.Context) ([]Signal, error)
	LoadHistory(ctx context.Context) ([]Signal, error)

	// LoadCooldowns returns only non-expired entries.
	LoadCooldowns(ctx context.Context) (map[string]time.Time, error)

	// LoadScanLogs returns up to limit entries, newest first.
	LoadScanLogs(ctx context.Context, limit int) ([]ScanLogEntry, error)
}

// SignalStore is the persistent source of truth across restarts.
type SignalStore interface {
	SignalWriter
	SignalReader

	// Close releases underlying resources.
	Close() error
}

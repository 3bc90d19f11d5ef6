package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// StaleAfter is how long after the last completed cycle the engine is
// reported OFFLINE.
const StaleAfter = 30 * time.Minute

// HealthStatus represents the engine's health.
type HealthStatus struct {
	mu sync.RWMutex

	Backend        string    `json:"backend"`
	StoreOK        bool      `json:"store_ok"`
	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`

	now func() time.Time
}

// NewHealthStatus returns a default health status for the given store backend.
func NewHealthStatus(backend string) *HealthStatus {
	return &HealthStatus{
		Backend:   backend,
		StartedAt: time.Now(),
		now:       time.Now,
	}
}

func (h *HealthStatus) SetStoreOK(v bool) {
	h.mu.Lock()
	h.StoreOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycle(t time.Time) {
	h.mu.Lock()
	h.LastCycleAt = t
	h.mu.Unlock()
}

// EngineStatus is ACTIVE when a cycle completed within StaleAfter.
func (h *HealthStatus) EngineStatus() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engineStatus()
}

func (h *HealthStatus) engineStatus() string {
	if h.LastCycleAt.IsZero() || h.now().Sub(h.LastCycleAt) >= StaleAfter {
		return "OFFLINE"
	}
	return "ACTIVE"
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	h.record(err, time.Since(start))
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	h.record(err, time.Since(start))
}

func (h *HealthStatus) record(err error, latency time.Duration) {
	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic store checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(checkCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(checkCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the health endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	engine := h.engineStatus()
	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.StoreOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	lastCycle := ""
	if !h.LastCycleAt.IsZero() {
		lastCycle = h.LastCycleAt.Format(time.RFC3339)
	}

	status := struct {
		Status         string  `json:"status"`
		Engine         string  `json:"engine"`
		Uptime         string  `json:"uptime"`
		Backend        string  `json:"backend"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		LastCycleAt    string  `json:"last_cycle_at"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Engine:         engine,
		Uptime:         h.now().Sub(h.StartedAt).Round(time.Second).String(),
		Backend:        h.Backend,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		LastCycleAt:    lastCycle,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

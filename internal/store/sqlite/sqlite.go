// Package sqlite persists signal state in a local SQLite database (WAL mode).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pierrenik/signalauto/internal/model"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
}

// Store implements model.SignalStore on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS open_signals (
			id         TEXT    PRIMARY KEY,
			asset      TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			data       TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS signal_history (
			id         TEXT    PRIMARY KEY,
			asset      TEXT    NOT NULL,
			status     TEXT    NOT NULL,
			pnl_r      REAL    NOT NULL,
			closed_at  INTEGER NOT NULL,
			data       TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_history_closed ON signal_history (closed_at);

		CREATE TABLE IF NOT EXISTS cooldowns (
			symbol     TEXT    PRIMARY KEY,
			until      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scan_logs (
			id         TEXT    PRIMARY KEY,
			ts         INTEGER NOT NULL,
			asset      TEXT    NOT NULL,
			outcome    TEXT    NOT NULL,
			message    TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_scan_logs_ts ON scan_logs (ts);
	`)
	return err
}

// SaveOpen inserts or replaces an open signal.
func (s *Store) SaveOpen(ctx context.Context, sig model.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("sqlite marshal signal %s: %w", sig.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO open_signals (id, asset, created_at, data)
		VALUES (?, ?, ?, ?)
	`, sig.ID, sig.Asset, sig.CreatedAt.UnixMilli(), string(data))
	if err != nil {
		return fmt.Errorf("sqlite save open %s: %w", sig.ID, err)
	}
	return nil
}

// DeleteOpen removes an open signal.
func (s *Store) DeleteOpen(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM open_signals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite delete open %s: %w", id, err)
	}
	return nil
}

// AppendHistory archives a closed signal. Duplicate ids are ignored.
func (s *Store) AppendHistory(ctx context.Context, sig model.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("sqlite marshal signal %s: %w", sig.ID, err)
	}
	closed := sig.CreatedAt
	if sig.ClosedAt != nil {
		closed = *sig.ClosedAt
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signal_history (id, asset, status, pnl_r, closed_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.Asset, string(sig.Status), sig.PnLR, closed.UnixMilli(), string(data))
	if err != nil {
		return fmt.Errorf("sqlite append history %s: %w", sig.ID, err)
	}
	return nil
}

// SaveCooldown records (or extends) a cooldown for symbol.
func (s *Store) SaveCooldown(ctx context.Context, symbol string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cooldowns (symbol, until) VALUES (?, ?)
	`, symbol, until.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite save cooldown %s: %w", symbol, err)
	}
	return nil
}

// AppendScanLog stores a scan-log entry.
func (s *Store) AppendScanLog(ctx context.Context, e model.ScanLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO scan_logs (id, ts, asset, outcome, message)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.TS.UnixMilli(), e.Asset, string(e.Outcome), e.Message)
	if err != nil {
		return fmt.Errorf("sqlite append scan log: %w", err)
	}
	return nil
}

// LoadOpen returns open signals ordered by creation time.
func (s *Store) LoadOpen(ctx context.Context) ([]model.Signal, error) {
	return s.querySignals(ctx, `SELECT data FROM open_signals ORDER BY created_at ASC`)
}

// LoadHistory returns closed signals ordered by close time.
func (s *Store) LoadHistory(ctx context.Context) ([]model.Signal, error) {
	return s.querySignals(ctx, `SELECT data FROM signal_history ORDER BY closed_at ASC`)
}

func (s *Store) querySignals(ctx context.Context, query string) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		var sig model.Signal
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			log.Printf("[sqlite] skipping corrupt signal row: %v", err)
			continue
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// LoadCooldowns returns the cooldowns that have not expired yet.
func (s *Store) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, until FROM cooldowns WHERE until > ?`, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query cooldowns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var sym string
		var until int64
		if err := rows.Scan(&sym, &until); err != nil {
			return nil, fmt.Errorf("sqlite scan cooldown: %w", err)
		}
		out[sym] = time.UnixMilli(until).UTC()
	}
	return out, rows.Err()
}

// LoadScanLogs returns up to limit entries, newest first.
func (s *Store) LoadScanLogs(ctx context.Context, limit int) ([]model.ScanLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, asset, outcome, message FROM scan_logs
		ORDER BY ts DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query scan logs: %w", err)
	}
	defer rows.Close()

	var out []model.ScanLogEntry
	for rows.Next() {
		var e model.ScanLogEntry
		var ts int64
		var outcome string
		if err := rows.Scan(&e.ID, &ts, &e.Asset, &outcome, &e.Message); err != nil {
			return nil, fmt.Errorf("sqlite scan log row: %w", err)
		}
		e.TS = time.UnixMilli(ts).UTC()
		e.Outcome = model.ScanOutcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneScanLogs deletes scan logs older than cutoff.
func (s *Store) PruneScanLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_logs WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune scan logs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

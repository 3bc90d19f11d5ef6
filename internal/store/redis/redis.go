// Package redis persists signal state in Redis.
//
// Keys (all under Config.Prefix):
//
//	signals:open          HASH  id → signal JSON
//	signals:history       HASH  id → signal JSON (HSETNX, write-once)
//	signals:history:idx   ZSET  id scored by close time (ms)
//	cooldown:{symbol}     STRING until (ms), expires with the cooldown
//	scanlogs              LIST  newest first, trimmed to MaxScanLogs
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/pierrenik/signalauto/internal/model"
)

// Config configures the Redis store.
type Config struct {
	Addr        string // Redis address, e.g. "localhost:6379"
	Password    string
	DB          int
	Prefix      string // key prefix, default "signalauto:"
	MaxScanLogs int64  // default 500
}

// Store implements model.SignalStore on Redis.
type Store struct {
	client  *goredis.Client
	prefix  string
	maxLogs int64
	now     func() time.Time
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New creates a Redis store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return newStore(client, cfg), nil
}

func newStore(client *goredis.Client, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "signalauto:"
	}
	maxLogs := cfg.MaxScanLogs
	if maxLogs <= 0 {
		maxLogs = 500
	}
	return &Store{client: client, prefix: prefix, maxLogs: maxLogs, now: time.Now}
}

func (s *Store) openKey() string       { return s.prefix + "signals:open" }
func (s *Store) historyKey() string    { return s.prefix + "signals:history" }
func (s *Store) historyIdxKey() string { return s.prefix + "signals:history:idx" }
func (s *Store) scanLogKey() string    { return s.prefix + "scanlogs" }
func (s *Store) cooldownKey(symbol string) string {
	return s.prefix + "cooldown:" + symbol
}

// SaveOpen inserts or replaces an open signal.
func (s *Store) SaveOpen(ctx context.Context, sig model.Signal) error {
	if err := s.client.HSet(ctx, s.openKey(), sig.ID, sig.JSON()).Err(); err != nil {
		return fmt.Errorf("redis save open %s: %w", sig.ID, err)
	}
	return nil
}

// DeleteOpen removes an open signal.
func (s *Store) DeleteOpen(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.openKey(), id).Err(); err != nil {
		return fmt.Errorf("redis delete open %s: %w", id, err)
	}
	return nil
}

// AppendHistory archives a closed signal. The first write for an id wins.
func (s *Store) AppendHistory(ctx context.Context, sig model.Signal) error {
	closed := sig.CreatedAt
	if sig.ClosedAt != nil {
		closed = *sig.ClosedAt
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSetNX(ctx, s.historyKey(), sig.ID, sig.JSON())
		pipe.ZAddNX(ctx, s.historyIdxKey(), &goredis.Z{Score: float64(closed.UnixMilli()), Member: sig.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append history %s: %w", sig.ID, err)
	}
	return nil
}

// SaveCooldown stores until with a TTL so expired cooldowns vanish on their own.
func (s *Store) SaveCooldown(ctx context.Context, symbol string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	err := s.client.Set(ctx, s.cooldownKey(symbol), strconv.FormatInt(until.UnixMilli(), 10), ttl).Err()
	if err != nil {
		return fmt.Errorf("redis save cooldown %s: %w", symbol, err)
	}
	return nil
}

// AppendScanLog pushes an entry and trims the list.
func (s *Store) AppendScanLog(ctx context.Context, e model.ScanLogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis marshal scan log: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.scanLogKey(), data)
	pipe.LTrim(ctx, s.scanLogKey(), 0, s.maxLogs-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append scan log: %w", err)
	}
	return nil
}

// LoadOpen returns all open signals ordered by creation time.
func (s *Store) LoadOpen(ctx context.Context) ([]model.Signal, error) {
	vals, err := s.client.HVals(ctx, s.openKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load open: %w", err)
	}
	out := decodeSignals(vals)
	sortByCreated(out)
	return out, nil
}

// LoadHistory returns closed signals ordered by close time.
func (s *Store) LoadHistory(ctx context.Context) ([]model.Signal, error) {
	ids, err := s.client.ZRange(ctx, s.historyIdxKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := s.client.HMGet(ctx, s.historyKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load history: %w", err)
	}
	vals := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			vals = append(vals, str)
		}
	}
	return decodeSignals(vals), nil
}

// LoadCooldowns scans cooldown keys. Redis drops expired ones itself.
func (s *Store) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	pattern := s.cooldownKey("*")
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan cooldowns: %w", err)
	}

	out := make(map[string]time.Time, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("redis load cooldowns: %w", err)
	}

	now := s.now()
	for i, cmd := range cmds {
		ms, err := cmd.Int64()
		if err != nil {
			continue
		}
		until := time.UnixMilli(ms).UTC()
		if until.After(now) {
			out[strings.TrimPrefix(keys[i], s.cooldownKey(""))] = until
		}
	}
	return out, nil
}

// LoadScanLogs returns up to limit entries, newest first.
func (s *Store) LoadScanLogs(ctx context.Context, limit int) ([]model.ScanLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	vals, err := s.client.LRange(ctx, s.scanLogKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load scan logs: %w", err)
	}
	out := make([]model.ScanLogEntry, 0, len(vals))
	for _, v := range vals {
		var e model.ScanLogEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			log.Printf("[redis] skipping corrupt scan log: %v", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decodeSignals(vals []string) []model.Signal {
	out := make([]model.Signal, 0, len(vals))
	for _, v := range vals {
		var sig model.Signal
		if err := json.Unmarshal([]byte(v), &sig); err != nil {
			log.Printf("[redis] skipping corrupt signal: %v", err)
			continue
		}
		out = append(out, sig)
	}
	return out
}

func sortByCreated(sigs []model.Signal) {
	sort.SliceStable(sigs, func(i, j int) bool { return sigs[i].CreatedAt.Before(sigs[j].CreatedAt) })
}

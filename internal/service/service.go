// Package service wires the signal engine together: store, lifecycle book,
// market data, scanner, event fan-out and the HTTP surface.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pierrenik/signalauto/config"
	"github.com/pierrenik/signalauto/internal/api"
	"github.com/pierrenik/signalauto/internal/gateway"
	"github.com/pierrenik/signalauto/internal/marketdata"
	"github.com/pierrenik/signalauto/internal/metrics"
	"github.com/pierrenik/signalauto/internal/model"
	"github.com/pierrenik/signalauto/internal/notification"
	"github.com/pierrenik/signalauto/internal/portfolio"
	"github.com/pierrenik/signalauto/internal/scanner"
	"github.com/pierrenik/signalauto/internal/store"
	redisstore "github.com/pierrenik/signalauto/internal/store/redis"
	sqlitestore "github.com/pierrenik/signalauto/internal/store/sqlite"
)

const (
	livenessInterval = 10 * time.Second
	pruneInterval    = time.Hour
	replayBuffer     = 256
	flushTimeout     = 5 * time.Second
)

// Service is the top-level orchestrator for the signal engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	store    model.SignalStore
	out      *store.Outbox
	sqlite   *sqlitestore.Store
	redis    *redisstore.Store
	kafka    *notification.KafkaNotifier
	universe *scanner.Universe
	scanner  *scanner.Scanner
	hub      *gateway.Hub
	health   *metrics.HealthStatus
	prom     *metrics.Metrics
	server   *api.Server
}

// New builds a Service from cfg. It opens the configured store and loads
// the strategy set; nothing runs until Run.
func New(cfg *config.Config, l *slog.Logger) (*Service, error) {
	if l == nil {
		l = slog.Default()
	}
	svc := &Service{cfg: cfg, log: l}

	strategies, err := config.LoadStrategies(cfg.StrategiesPath)
	if err != nil {
		return nil, err
	}
	params, err := strategies.ActiveParams(cfg.ActiveStrategy)
	if err != nil {
		return nil, err
	}
	assets, err := config.ParseAssets(cfg.Assets)
	if err != nil {
		return nil, err
	}
	svc.universe = scanner.NewUniverse(assets)

	// ---- Store ----
	if err := svc.openStore(); err != nil {
		return nil, err
	}

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc.prom = metrics.New(reg)
	svc.health = metrics.NewHealthStatus(cfg.StoreBackend)

	cb := store.NewCircuitBreaker(3, 30*time.Second)
	cb.OnStateChange = func(from, to store.State) {
		svc.prom.StoreCircuitState.Set(float64(to))
		if to == store.StateOpen {
			svc.prom.StoreCircuitTrips.Inc()
		}
		svc.log.Warn("store circuit breaker transition", "from", from.String(), "to", to.String())
	}
	out := store.NewOutbox(svc.store, cb, 0)
	svc.out = out
	out.OnQueue = func(n int) { svc.prom.StorePendingWrites.Set(float64(n)) }
	out.OnFlush = func(n int) {
		svc.prom.StoreReplayed.Add(float64(n))
		svc.prom.StorePendingWrites.Set(float64(out.Pending()))
	}

	// ---- Market data ----
	src := &marketdata.Router{
		Crypto:  marketdata.NewBinance(marketdata.BinanceConfig{Interval: cfg.MarketInterval, Timeout: cfg.FetchTimeout}),
		Default: marketdata.NewYahoo(marketdata.YahooConfig{Interval: cfg.MarketInterval, Timeout: cfg.FetchTimeout}),
	}

	// ---- Event fan-out ----
	svc.hub = gateway.NewHub(replayBuffer, l)
	svc.hub.OnClientCount = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	sinks := notification.Multi{svc.hub, notification.NewLogNotifier(l)}
	if len(cfg.KafkaBrokers) > 0 {
		svc.kafka, err = notification.NewKafkaNotifier(notification.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			svc.closeStore()
			return nil, err
		}
		sinks = append(sinks, svc.kafka)
	}

	book := portfolio.NewBook(
		portfolio.WithCooldown(cfg.Cooldown),
		portfolio.WithRatchet(cfg.RatchetLiveExit),
	)
	svc.scanner = scanner.New(scanner.Config{
		BatchSize:    cfg.BatchSize,
		BatchPause:   cfg.BatchPause,
		FetchTimeout: cfg.FetchTimeout,
		LogSize:      cfg.ScanLogSize,
	}, src, book, out, params,
		scanner.WithLogger(l),
		scanner.WithMetrics(svc.prom),
		scanner.WithNotifier(sinks),
		scanner.WithScanLogHook(func(e model.ScanLogEntry) {
			if err := svc.hub.PublishScanLog(e); err != nil {
				svc.log.Debug("scan log publish failed", "err", err)
			}
		}),
		scanner.WithProgress(func(pct float64) {
			if pct >= 100 {
				svc.health.SetLastCycle(time.Now())
			}
		}),
	)

	// ---- HTTP ----
	router := api.NewRouter(api.Deps{
		Scanner:  svc.scanner,
		Universe: svc.universe,
		Feed:     svc.hub,
		Health:   svc.health,
		Metrics:  metrics.Handler(reg),
	})
	svc.server = api.NewServer(cfg.HTTPAddr, router, l)
	return svc, nil
}

func (svc *Service) openStore() error {
	switch svc.cfg.StoreBackend {
	case "memory":
		svc.store = store.NewMemory(svc.cfg.ScanLogSize * 10)
	case "redis":
		rs, err := redisstore.New(redisstore.Config{
			Addr:     svc.cfg.RedisAddr,
			Password: svc.cfg.RedisPassword,
			DB:       svc.cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		svc.redis, svc.store = rs, rs
	case "sqlite":
		if dir := filepath.Dir(svc.cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
		}
		ss, err := sqlitestore.New(sqlitestore.Config{DBPath: svc.cfg.SQLitePath})
		if err != nil {
			return err
		}
		svc.sqlite, svc.store = ss, ss
	default:
		return fmt.Errorf("unknown store backend %q", svc.cfg.StoreBackend)
	}
	return nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info("starting signal engine")

	// ---- Restore state ----
	if err := svc.scanner.Rehydrate(ctx); err != nil {
		return err
	}

	// ---- Liveness ----
	var rdb *goredis.Client
	var db *sql.DB
	if svc.redis != nil {
		rdb = svc.redis.Client()
	}
	if svc.sqlite != nil {
		db = svc.sqlite.DB()
		go svc.pruneLoop(ctx)
	}
	if rdb == nil && db == nil {
		svc.health.SetStoreOK(true)
	} else {
		svc.health.StartLivenessChecker(ctx, rdb, db, livenessInterval)
	}

	svc.server.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.scanner.Run(ctx, cfg.ScanInterval, svc.universe)
	}()

	p := svc.scanner.Params()
	svc.log.Info("all systems running",
		"strategy", p.ID,
		"assets", len(svc.universe.Active()),
		"interval", cfg.ScanInterval.String(),
		"store", cfg.StoreBackend,
		"http", cfg.HTTPAddr,
		"kafka", svc.kafka != nil,
	)

	<-ctx.Done()
	<-done

	svc.shutdown()
	return nil
}

// shutdown stops the listener and closes connections.
func (svc *Service) shutdown() {
	svc.log.Info("shutdown signal received")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.server.Stop(shutCtx); err != nil {
		svc.log.Warn("http shutdown", "err", err)
	}
	svc.hub.Close()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
	flushPending(flushCtx, svc.out, svc.log)
	flushCancel()

	if svc.kafka != nil {
		if err := svc.kafka.Close(); err != nil {
			svc.log.Warn("kafka close", "err", err)
		}
	}
	svc.closeStore()
	svc.log.Info("shutdown complete")
}

// flushPending makes a last attempt to write queued store ops and returns
// how many are still pending. Those are lost with the process.
func flushPending(ctx context.Context, out *store.Outbox, l *slog.Logger) int {
	if out.Pending() == 0 {
		return 0
	}
	if err := out.Flush(ctx); err != nil {
		l.Warn("final store flush failed", "err", err)
	}
	n := out.Pending()
	if n > 0 {
		l.Error("store writes lost on shutdown", "pending", n)
	} else {
		l.Info("pending store writes flushed")
	}
	return n
}

func (svc *Service) closeStore() {
	if svc.store == nil {
		return
	}
	if err := svc.store.Close(); err != nil {
		svc.log.Warn("store close", "err", err)
	}
}

// pruneLoop trims old sqlite scan logs; the other backends cap them on write.
func (svc *Service) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.sqlite.PruneScanLogs(ctx, time.Now().Add(-svc.cfg.ScanLogRetain))
			if err != nil {
				svc.log.Warn("scan log prune failed", "err", err)
				continue
			}
			if n > 0 {
				svc.log.Info("pruned scan logs", "rows", n)
			}
		}
	}
}

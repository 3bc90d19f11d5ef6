// cmd/backtest fetches recent bars for the asset universe and replays them
// through every configured strategy, printing a ranking by net R.
//
// Usage:
//
//	go run ./cmd/backtest --strategies=strategies.yaml --interval=15m --range=60d
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pierrenik/signalauto/config"
	"github.com/pierrenik/signalauto/internal/backtest"
	"github.com/pierrenik/signalauto/internal/logger"
	"github.com/pierrenik/signalauto/internal/marketdata"
	"github.com/pierrenik/signalauto/internal/model"
)

func main() {
	// Flags
	strategiesPath := flag.String("strategies", "", "YAML strategy set (default: built-in)")
	assetsSpec := flag.String("assets", "", "Assets: SYMBOL:CLASS[:Name],... (default: built-in universe)")
	interval := flag.String("interval", "15m", "Bar interval")
	rng := flag.String("range", "60d", "Yahoo history range")
	limit := flag.Int("limit", 1000, "Binance kline limit")
	workers := flag.Int("workers", 0, "Simulation workers (0=GOMAXPROCS)")
	outPath := flag.String("out", "", "Write full results as JSON to this path")
	level := flag.String("log", "info", "Log level")
	flag.Parse()

	log := logger.Init("backtest", logger.ParseLevel(*level))

	set, err := config.LoadStrategies(*strategiesPath)
	if err != nil {
		log.Error("strategies", "err", err)
		os.Exit(1)
	}
	assets, err := config.ParseAssets(*assetsSpec)
	if err != nil {
		log.Error("assets", "err", err)
		os.Exit(1)
	}

	// Setup context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	src := &marketdata.Router{
		Crypto:  marketdata.NewBinance(marketdata.BinanceConfig{Interval: *interval, Limit: *limit}),
		Default: marketdata.NewYahoo(marketdata.YahooConfig{Interval: *interval, Range: *rng}),
	}

	var series []model.MarketSeries
	for _, a := range assets {
		if ctx.Err() != nil {
			break
		}
		fetchCtx, fetchCancel := context.WithTimeout(ctx, 20*time.Second)
		s, err := src.Fetch(fetchCtx, a)
		fetchCancel()
		if err != nil {
			log.Warn("fetch failed, skipping asset", "asset", a.Symbol, "err", err)
			continue
		}
		log.Info("fetched", "asset", a.Symbol, "bars", s.Len())
		series = append(series, s)
	}
	if len(series) == 0 {
		log.Error("no market data fetched")
		os.Exit(1)
	}

	start := time.Now()
	results := backtest.Tournament(ctx, series, set.Strategies, backtest.DefaultConfig(), *workers)
	elapsed := time.Since(start)

	if *outPath != "" {
		if err := writeJSON(*outPath, results); err != nil {
			log.Error("write results", "err", err)
			os.Exit(1)
		}
	}

	// Print summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          BACKTEST COMPLETE                               ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Assets: %-4d  Strategies: %-4d  Elapsed: %-31s ║\n", len(series), len(set.Strategies), elapsed.Round(time.Millisecond))
	fmt.Println("╠════╤══════════════════════════╤════════╤════════╤═════════╤═══════╤══════╣")
	fmt.Println("║ #  │ Strategy                 │ Trades │ Win %  │  Net R  │  PF   │  DD  ║")
	fmt.Println("╟────┼──────────────────────────┼────────┼────────┼─────────┼───────┼──────╢")
	for i, r := range results {
		s := r.Summary
		fmt.Printf("║ %-2d │ %-24.24s │ %6d │ %6.1f │ %7.2f │ %5.2f │ %4.1f ║\n",
			i+1, r.StrategyID, s.Trades, s.WinRate, s.NetR, s.ProfitFactor, s.MaxDrawdownR)
	}
	fmt.Println("╚════╧══════════════════════════╧════════╧════════╧═════════╧═══════╧══════╝")
}

func writeJSON(path string, results []backtest.Result) error {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

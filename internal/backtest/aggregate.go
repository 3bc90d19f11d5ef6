package backtest

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/pierrenik/signalauto/internal/model"
	"github.com/pierrenik/signalauto/internal/portfolio"
)

// Result aggregates the trades of one strategy.
type Result struct {
	StrategyID  string            `json:"strategy_id"`
	Summary     portfolio.Summary `json:"summary"`
	EquityCurve []float64         `json:"equity_curve"` // cumulative R, starts at 0
	Trades      []Trade           `json:"trades,omitempty"`
}

// Aggregate computes ledger statistics over trades in the given order.
func Aggregate(strategyID string, trades []Trade) Result {
	rs := make([]float64, len(trades))
	for i, t := range trades {
		rs[i] = t.R
	}
	return Result{
		StrategyID:  strategyID,
		Summary:     portfolio.SummarizeR(rs),
		EquityCurve: append([]float64{0}, portfolio.EquityCurve(rs)...),
		Trades:      trades,
	}
}

type job struct {
	strat int
	asset int
}

// Tournament backtests every strategy over every series on a bounded
// worker pool and returns one Result per strategy, best net R first.
// Trades inside a Result keep series order. workers <= 0 uses GOMAXPROCS.
func Tournament(ctx context.Context, series []model.MarketSeries, strategies []model.StrategyParams, cfg Config, workers int) []Result {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ledgers := make([][][]Trade, len(strategies))
	for i := range ledgers {
		ledgers[i] = make([][]Trade, len(series))
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				// Each (strategy, asset) cell is written by exactly one worker.
				ledgers[j.strat][j.asset] = Simulate(series[j.asset], strategies[j.strat], cfg)
			}
		}()
	}

feed:
	for s := range strategies {
		for a := range series {
			select {
			case <-ctx.Done():
				break feed
			case jobs <- job{strat: s, asset: a}:
			}
		}
	}
	close(jobs)
	wg.Wait()

	results := make([]Result, len(strategies))
	for s, p := range strategies {
		var all []Trade
		for _, trades := range ledgers[s] {
			all = append(all, trades...)
		}
		results[s] = Aggregate(p.ID, all)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Summary.NetR > results[j].Summary.NetR
	})
	return results
}

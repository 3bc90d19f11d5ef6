// Package backtest replays the live breakout strategy over historical bars.
//
// The walk reuses indicator.Compute and strategy.Evaluate on a growing
// window, then simulates each accepted trade bar by bar with a ratcheting
// chandelier stop and a breakeven rule. Everything here is pure.
package backtest

import (
	"math"

	"github.com/pierrenik/signalauto/internal/indicator"
	"github.com/pierrenik/signalauto/internal/model"
	"github.com/pierrenik/signalauto/internal/portfolio"
	"github.com/pierrenik/signalauto/internal/strategy"
)

// ExitReason says why a simulated trade ended.
type ExitReason string

const (
	ExitStop    ExitReason = "STOP"
	ExitTimeout ExitReason = "TIMEOUT"
)

// Config bounds the walk.
type Config struct {
	WarmupBars    int     // first bar evaluated
	TailBars      int     // bars left unevaluated at the end
	MinBars       int     // shorter series produce no trades
	MaxHoldBars   int     // forward bars before mark-to-market close
	MinConfidence int     // signals below this are not traded
	BreakevenR    float64 // favourable excursion (in R) that moves the stop to entry
}

// DefaultConfig returns the standard walk parameters.
func DefaultConfig() Config {
	return Config{
		WarmupBars:    200,
		TailBars:      20,
		MinBars:       250,
		MaxHoldBars:   200,
		MinConfidence: 50,
		BreakevenR:    1.5,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.WarmupBars <= 0 {
		c.WarmupBars = d.WarmupBars
	}
	if c.TailBars < 0 {
		c.TailBars = d.TailBars
	}
	if c.MinBars <= 0 {
		c.MinBars = d.MinBars
	}
	if c.MaxHoldBars <= 0 {
		c.MaxHoldBars = d.MaxHoldBars
	}
	if c.BreakevenR <= 0 {
		c.BreakevenR = d.BreakevenR
	}
}

// Trade is one simulated round trip.
type Trade struct {
	Asset       string          `json:"asset"`
	StrategyID  string          `json:"strategy_id"`
	Direction   model.Direction `json:"direction"`
	Confidence  int             `json:"confidence"`
	EntryBar    int             `json:"entry_bar"`
	ExitBar     int             `json:"exit_bar"`
	EntryPrice  float64         `json:"entry_price"`
	InitialStop float64         `json:"initial_stop"`
	ExitPrice   float64         `json:"exit_price"`
	R           float64         `json:"r"`
	Status      model.Status    `json:"status"`
	Reason      ExitReason      `json:"reason"`
	Breakeven   bool            `json:"breakeven"`
}

// Simulate walks series and returns the non-overlapping trades it takes.
// Series shorter than cfg.MinBars yield no trades.
func Simulate(series model.MarketSeries, params model.StrategyParams, cfg Config) []Trade {
	cfg.applyDefaults()
	n := series.Len()
	if n < cfg.MinBars || series.Validate() != nil {
		return nil
	}

	var trades []Trade
	for i := cfg.WarmupBars; i < n-cfg.TailBars; {
		window := series.Head(i + 1)
		ind, err := indicator.Compute(window, params)
		if err != nil {
			i++
			continue
		}
		dec, err := strategy.Evaluate(ind.Price, ind, params)
		if err != nil || !dec.Accepted || dec.Confidence < cfg.MinConfidence {
			i++
			continue
		}

		t := SimulateTrade(series, i, dec.Direction, dec.Setup.EntryPrice, dec.Setup.StopLoss,
			ind.ATR*params.StopLossATRMultiplier, cfg)
		t.Asset = series.Symbol
		t.StrategyID = params.ID
		t.Confidence = dec.Confidence
		trades = append(trades, t)
		i = t.ExitBar + 1
	}
	return trades
}

// SimulateTrade follows a position opened at the close of entryBar. Each
// forward bar first checks the current stop against the bar's adverse
// extreme, then applies breakeven, then ratchets the chandelier stop
// (extreme since entry offset by trail). The stop never loosens.
func SimulateTrade(series model.MarketSeries, entryBar int, dir model.Direction, entry, stop, trail float64, cfg Config) Trade {
	cfg.applyDefaults()
	t := Trade{
		Direction:   dir,
		EntryBar:    entryBar,
		EntryPrice:  entry,
		InitialStop: stop,
	}
	risk := math.Abs(entry - stop)
	last := min(series.Len()-1, entryBar+cfg.MaxHoldBars)
	if risk == 0 || last <= entryBar {
		t.ExitBar = entryBar
		t.ExitPrice = entry
		t.R = -portfolio.FrictionR
		t.Status = portfolio.Classify(t.R)
		t.Reason = ExitTimeout
		return t
	}

	current := stop
	highest, lowest := entry, entry
	for j := entryBar + 1; j <= last; j++ {
		high, low := series.Highs[j], series.Lows[j]
		highest = math.Max(highest, high)
		lowest = math.Min(lowest, low)

		if dir == model.Long {
			if low <= current {
				return closeAt(t, j, current, ExitStop)
			}
			if !t.Breakeven && high-entry >= risk*cfg.BreakevenR {
				current = math.Max(current, entry)
				t.Breakeven = true
			}
			current = portfolio.Tighten(dir, current, highest-trail)
		} else {
			if high >= current {
				return closeAt(t, j, current, ExitStop)
			}
			if !t.Breakeven && entry-low >= risk*cfg.BreakevenR {
				current = math.Min(current, entry)
				t.Breakeven = true
			}
			current = portfolio.Tighten(dir, current, lowest+trail)
		}
	}
	return closeAt(t, last, series.Closes[last], ExitTimeout)
}

func closeAt(t Trade, bar int, price float64, reason ExitReason) Trade {
	t.ExitBar = bar
	t.ExitPrice = price
	t.R = portfolio.RealizedR(t.Direction, t.EntryPrice, t.InitialStop, price)
	t.Status = portfolio.Classify(t.R)
	t.Reason = reason
	return t
}

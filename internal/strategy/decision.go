// Package strategy evaluates indicator snapshots against a breakout strategy.
//
// Evaluate is a pure function: price + indicators + parameters produce either
// a rejection with a diagnostic or a fully specified trade setup. A rejection
// is an ordinary outcome, not an error.
package strategy

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pierrenik/signalauto/internal/model"
)

// ErrZeroRisk is returned when the stop distance collapses to zero
// (usually ATR == 0). Such a setup is undefined and must never be persisted.
var ErrZeroRisk = errors.New("strategy: zero risk distance")

// RejectReason identifies which gate rejected the evaluation.
type RejectReason string

const (
	RejectMisaligned RejectReason = "MISALIGNED"
	RejectWeakTrend  RejectReason = "WEAK_TREND"
	RejectNoBreakout RejectReason = "NO_BREAKOUT"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Accepted   bool
	Direction  model.Direction
	Setup      model.TradeSetup
	Confidence int
	Reasoning  []string
	Breakdown  []model.ScoreFactor

	// Reason and Diagnostic are set on rejection (and Diagnostic on acceptance).
	Reason     RejectReason
	Diagnostic string
}

// NewSignal materialises an accepted decision as an OPEN signal with a fresh id.
func (d Decision) NewSignal(asset model.Asset, strategyID string, ind model.Indicators, at time.Time) model.Signal {
	return model.Signal{
		ID:             uuid.NewString(),
		Asset:          asset.Symbol,
		AssetClass:     asset.Class,
		StrategyID:     strategyID,
		Direction:      d.Direction,
		CreatedAt:      at,
		EntryPrice:     d.Setup.EntryPrice,
		Indicators:     ind,
		Setup:          d.Setup,
		Reasoning:      append([]string(nil), d.Reasoning...),
		ScoreBreakdown: append([]model.ScoreFactor(nil), d.Breakdown...),
		Confidence:     d.Confidence,
		TrailingExit:   ind.TrailingExit,
		Status:         model.StatusOpen,
	}
}

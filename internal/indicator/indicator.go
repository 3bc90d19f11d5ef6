// Package indicator computes technical indicator snapshots over OHLC series.
//
// Everything here is a pure function of its inputs: the same series and
// parameters always produce bit-identical results, so the live scanner and
// the backtest simulator can share it.
package indicator

import "errors"

// ErrInsufficientData is returned when a series is too short to evaluate.
var ErrInsufficientData = errors.New("indicator: insufficient data")

const (
	// MinBars is the shortest series Compute accepts.
	MinBars = 50

	ATRPeriod = 14
	ADXPeriod = 14

	// TrendPeriod is the long-horizon baseline on the base timeframe.
	TrendPeriod = 200

	// HigherTFPeriod approximates the next timeframe up: 400 x 15m bars
	// tracks roughly a 100-bar hourly average.
	HigherTFPeriod = 400
)

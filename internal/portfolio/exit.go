package portfolio

import (
	"math"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
)

const (
	// FrictionR approximates slippage and fees, deducted from every close.
	FrictionR = 0.05

	// WinThresholdR is the realized R a close must exceed to count as a WIN.
	WinThresholdR = 0.10

	// DefaultCooldown is the minimum mute applied after a manual dismissal.
	DefaultCooldown = 30 * time.Minute
)

// ExitTriggered reports whether price has crossed the exit level against
// the position: LONG exits at or below it, SHORT at or above it.
func ExitTriggered(dir model.Direction, price, level float64) bool {
	if dir == model.Short {
		return price >= level
	}
	return price <= level
}

// RealizedR is the direction-signed move from entry to exit measured in
// initial-risk units, net of friction.
func RealizedR(dir model.Direction, entry, initialStop, exit float64) float64 {
	risk := math.Abs(entry - initialStop)
	if risk == 0 {
		return -FrictionR
	}
	return dir.Sign()*(exit-entry)/risk - FrictionR
}

// Classify maps realized R to a terminal status.
func Classify(r float64) model.Status {
	if r > WinThresholdR {
		return model.StatusWin
	}
	return model.StatusLoss
}

// Tighten returns the exit level that never moves against the position.
func Tighten(dir model.Direction, current, proposed float64) float64 {
	if current == 0 {
		return proposed
	}
	if dir == model.Short {
		return math.Min(current, proposed)
	}
	return math.Max(current, proposed)
}

package portfolio

import (
	"math"

	"github.com/pierrenik/signalauto/internal/model"
)

// NoLossProfitFactor is reported when there are winning trades and no losses.
const NoLossProfitFactor = 99.0

// Summary aggregates a ledger of realized R values.
type Summary struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	BreakEven    int     `json:"break_even"` // |R| <= WinThresholdR, display only
	WinRate      float64 `json:"win_rate"`   // percent, excludes break-even trades
	NetR         float64 `json:"net_r"`
	AvgWinR      float64 `json:"avg_win_r"`
	AvgLossR     float64 `json:"avg_loss_r"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdownR float64 `json:"max_drawdown_r"`
}

// Summarize computes display statistics over closed signals. Trades inside
// the ±WinThresholdR band count as break-even here even though the
// lifecycle labels them LOSS.
func Summarize(closed []model.Signal) Summary {
	rs := make([]float64, 0, len(closed))
	for _, s := range closed {
		if s.IsOpen() {
			continue
		}
		rs = append(rs, s.PnLR)
	}
	return SummarizeR(rs)
}

// SummarizeR computes statistics over realized R values in chronological order.
func SummarizeR(rs []float64) Summary {
	var s Summary
	var grossWin, grossLoss float64
	var winN, lossN int

	for _, r := range rs {
		s.Trades++
		s.NetR += r
		switch {
		case r > WinThresholdR:
			s.Wins++
		case r < -WinThresholdR:
			s.Losses++
		default:
			s.BreakEven++
		}
		if r > 0 {
			grossWin += r
			winN++
		} else if r < 0 {
			grossLoss += -r
			lossN++
		}
	}

	if decided := s.Wins + s.Losses; decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided) * 100
	}
	if winN > 0 {
		s.AvgWinR = grossWin / float64(winN)
	}
	if lossN > 0 {
		s.AvgLossR = -grossLoss / float64(lossN)
	}
	s.ProfitFactor = ProfitFactor(grossWin, grossLoss)
	s.MaxDrawdownR = MaxDrawdown(rs)
	return s
}

// ProfitFactor is gross win / gross loss, NoLossProfitFactor when nothing was lost.
func ProfitFactor(grossWin, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossWin > 0 {
			return NoLossProfitFactor
		}
		return 0
	}
	return grossWin / grossLoss
}

// EquityCurve returns the cumulative sum of rs, starting after the first trade.
func EquityCurve(rs []float64) []float64 {
	curve := make([]float64, len(rs))
	acc := 0.0
	for i, r := range rs {
		acc += r
		curve[i] = acc
	}
	return curve
}

// MaxDrawdown is the largest peak-to-trough drop of the cumulative R curve,
// with the curve starting at zero.
func MaxDrawdown(rs []float64) float64 {
	var equity, peak, dd float64
	for _, r := range rs {
		equity += r
		peak = math.Max(peak, equity)
		dd = math.Max(dd, peak-equity)
	}
	return dd
}

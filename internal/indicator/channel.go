package indicator

import "github.com/pierrenik/signalauto/internal/model"

// Donchian returns the channel over the `period` bars immediately preceding
// the last bar. The last bar is excluded so a breakout can be measured
// against it. When the series is not longer than period, the channel
// collapses onto the last bar.
func Donchian(highs, lows []float64, period int) model.Channel {
	n := len(highs)
	if n == 0 || len(lows) != n {
		return model.Channel{}
	}
	if period <= 0 || n <= period {
		return model.Channel{Upper: highs[n-1], Lower: lows[n-1], Middle: highs[n-1]}
	}
	upper, lower := highs[n-period-1], lows[n-period-1]
	for i := n - period; i < n-1; i++ {
		if highs[i] > upper {
			upper = highs[i]
		}
		if lows[i] < lower {
			lower = lows[i]
		}
	}
	return model.Channel{Upper: upper, Lower: lower, Middle: (upper + lower) / 2}
}

// HighestHigh returns the max of the last `period` highs (last bar included).
func HighestHigh(highs []float64, period int) float64 {
	start := len(highs) - period
	if start < 0 {
		start = 0
	}
	if start >= len(highs) {
		return 0
	}
	m := highs[start]
	for _, h := range highs[start+1:] {
		if h > m {
			m = h
		}
	}
	return m
}

// LowestLow returns the min of the last `period` lows (last bar included).
func LowestLow(lows []float64, period int) float64 {
	start := len(lows) - period
	if start < 0 {
		start = 0
	}
	if start >= len(lows) {
		return 0
	}
	m := lows[start]
	for _, l := range lows[start+1:] {
		if l < m {
			m = l
		}
	}
	return m
}

// ChandelierExit returns the trailing-exit level for price. Above the
// trend baseline it hangs below the highest high; below it, it sits above
// the lowest low. An undefined baseline falls back to price - ATR*mult.
func ChandelierExit(price, baseline, highestHigh, lowestLow, atr, mult float64) float64 {
	offset := atr * mult
	switch {
	case baseline <= 0:
		return price - offset
	case price > baseline:
		return highestHigh - offset
	default:
		return lowestLow + offset
	}
}

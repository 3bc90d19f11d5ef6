package indicator

import "math"

// DirectionalIndex holds the ADX reading and its components.
type DirectionalIndex struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX computes the directional index over the whole series. True range and
// both directional-movement series are smoothed with the same EMA used for
// moving averages. Returns zeros when fewer than 2*period bars exist.
func ADX(highs, lows, closes []float64, period int) DirectionalIndex {
	n := len(closes)
	if period <= 0 || n < period*2 || len(highs) != n || len(lows) != n {
		return DirectionalIndex{}
	}

	tr := NewEMA(period)
	plus := NewEMA(period)
	minus := NewEMA(period)
	for i := 1; i < n; i++ {
		tr.Update(TrueRange(highs[i], lows[i], closes[i-1]))

		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		pdm, mdm := 0.0, 0.0
		if up > down && up > 0 {
			pdm = up
		}
		if down > up && down > 0 {
			mdm = down
		}
		plus.Update(pdm)
		minus.Update(mdm)
	}

	if tr.Value() == 0 {
		return DirectionalIndex{}
	}
	pdi := plus.Value() / tr.Value() * 100
	mdi := minus.Value() / tr.Value() * 100
	if pdi+mdi == 0 {
		return DirectionalIndex{PlusDI: pdi, MinusDI: mdi}
	}
	return DirectionalIndex{
		ADX:     math.Abs(pdi-mdi) / (pdi + mdi) * 100,
		PlusDI:  pdi,
		MinusDI: mdi,
	}
}

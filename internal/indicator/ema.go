package indicator

// EMA calculates an Exponential Moving Average.
// O(1) per update, no window storage needed. The first value is the
// simple average of the first `period` inputs.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

// Update feeds the next value.
func (e *EMA) Update(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (v-e.current)*e.multiplier + e.current
}

// Value returns the current average, or 0 before Ready.
func (e *EMA) Value() float64 { return e.current }

// Ready reports whether period values have been seen.
func (e *EMA) Ready() bool { return e.count >= e.period }

// EMAOf returns the EMA of values after the last element, or 0 when
// there are fewer than period values.
func EMAOf(values []float64, period int) float64 {
	if period <= 0 {
		return 0
	}
	e := NewEMA(period)
	for _, v := range values {
		e.Update(v)
	}
	if !e.Ready() {
		return 0
	}
	return e.Value()
}

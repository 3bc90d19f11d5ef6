package model

import (
	"fmt"
	"time"
)

// MarketSeries is a chronological OHLCV window for one instrument.
// Arrays are index-aligned (oldest first). A series is replaced wholesale
// every fetch cycle and never mutated in place.
type MarketSeries struct {
	Symbol     string      `json:"symbol"`
	Opens      []float64   `json:"opens"`
	Highs      []float64   `json:"highs"`
	Lows       []float64   `json:"lows"`
	Closes     []float64   `json:"closes"`
	Volumes    []float64   `json:"volumes"`
	Timestamps []time.Time `json:"timestamps,omitempty"`
	LastPrice  float64     `json:"last_price"`
	LastTS     time.Time   `json:"last_ts"`
}

// Len returns the number of bars in the series.
func (s *MarketSeries) Len() int {
	return len(s.Closes)
}

// Validate checks that the OHLC arrays are index-aligned.
// Volumes and Timestamps may be empty.
func (s *MarketSeries) Validate() error {
	n := len(s.Closes)
	if len(s.Opens) != n || len(s.Highs) != n || len(s.Lows) != n {
		return fmt.Errorf("series %s: misaligned OHLC arrays (o=%d h=%d l=%d c=%d)",
			s.Symbol, len(s.Opens), len(s.Highs), len(s.Lows), n)
	}
	if len(s.Volumes) != 0 && len(s.Volumes) != n {
		return fmt.Errorf("series %s: %d volumes for %d bars", s.Symbol, len(s.Volumes), n)
	}
	if len(s.Timestamps) != 0 && len(s.Timestamps) != n {
		return fmt.Errorf("series %s: %d timestamps for %d bars", s.Symbol, len(s.Timestamps), n)
	}
	return nil
}

// Head returns the first n bars as a view sharing the backing arrays.
// LastPrice and LastTS are taken from bar n-1.
func (s *MarketSeries) Head(n int) MarketSeries {
	if n > s.Len() {
		n = s.Len()
	}
	if n <= 0 {
		return MarketSeries{Symbol: s.Symbol}
	}
	h := MarketSeries{
		Symbol:    s.Symbol,
		Opens:     s.Opens[:n],
		Highs:     s.Highs[:n],
		Lows:      s.Lows[:n],
		Closes:    s.Closes[:n],
		LastPrice: s.Closes[n-1],
	}
	if len(s.Volumes) >= n {
		h.Volumes = s.Volumes[:n]
	}
	if len(s.Timestamps) >= n {
		h.Timestamps = s.Timestamps[:n]
		h.LastTS = s.Timestamps[n-1]
	}
	return h
}

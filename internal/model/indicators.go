package model

// Trend is the direction of price relative to a trend baseline.
type Trend string

const (
	TrendBull Trend = "BULL"
	TrendBear Trend = "BEAR"
)

// Channel holds Donchian-style bounds over a lookback window.
type Channel struct {
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
	Middle float64 `json:"middle"`
}

// Alignment compares the base-timeframe trend against the higher-timeframe proxy.
type Alignment struct {
	Base    Trend `json:"base"`   // price vs long-horizon baseline
	Higher  Trend `json:"higher"` // price vs higher-timeframe baseline
	Aligned bool  `json:"aligned"`
}

// Indicators is an immutable snapshot computed from one MarketSeries.
// A zero baseline means "not enough data for that period".
type Indicators struct {
	Price            float64   `json:"price"`
	MAShort          float64   `json:"ma_short"`
	MALong           float64   `json:"ma_long"`
	MASlope          float64   `json:"ma_slope"`
	ATR              float64   `json:"atr"`
	ADX              float64   `json:"adx"`
	PlusDI           float64   `json:"plus_di"`
	MinusDI          float64   `json:"minus_di"`
	Channel          Channel   `json:"channel"`
	TrendBaseline    float64   `json:"trend_baseline"`     // EMA(200)
	HigherTFBaseline float64   `json:"higher_tf_baseline"` // EMA(400)
	TrailingExit     float64   `json:"trailing_exit"`      // chandelier exit level
	Alignment        Alignment `json:"alignment"`
}

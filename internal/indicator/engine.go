package indicator

import (
	"fmt"

	"github.com/pierrenik/signalauto/internal/model"
)

// Compute derives the full indicator snapshot for the last bar of series.
// It never mutates series.
func Compute(series model.MarketSeries, p model.StrategyParams) (model.Indicators, error) {
	n := series.Len()
	if n < MinBars {
		return model.Indicators{}, fmt.Errorf("%w: %d bars, need %d", ErrInsufficientData, n, MinBars)
	}

	closes, highs, lows := series.Closes, series.Highs, series.Lows
	price := series.LastPrice
	if price <= 0 {
		price = closes[n-1]
	}

	ind := model.Indicators{
		Price:            price,
		MAShort:          EMAOf(closes, p.MAShortPeriod),
		MALong:           EMAOf(closes, p.MALongPeriod),
		ATR:              ATR(highs, lows, closes, ATRPeriod),
		Channel:          Donchian(highs, lows, p.DonchianPeriod),
		TrendBaseline:    EMAOf(closes, TrendPeriod),
		HigherTFBaseline: EMAOf(closes, HigherTFPeriod),
	}
	if ind.MAShort != 0 && ind.MALong != 0 {
		ind.MASlope = ind.MAShort - ind.MALong
	}

	dx := ADX(highs, lows, closes, ADXPeriod)
	ind.ADX, ind.PlusDI, ind.MinusDI = dx.ADX, dx.PlusDI, dx.MinusDI

	ind.TrailingExit = ChandelierExit(
		price,
		ind.TrendBaseline,
		HighestHigh(highs, p.DonchianPeriod),
		LowestLow(lows, p.DonchianPeriod),
		ind.ATR,
		p.StopLossATRMultiplier,
	)

	ind.Alignment = Align(price, ind.TrendBaseline, ind.HigherTFBaseline)
	return ind, nil
}

// Align classifies price against both baselines. An undefined (zero)
// baseline reads as bullish for any positive price.
func Align(price, base, higher float64) model.Alignment {
	a := model.Alignment{Base: trendOf(price, base), Higher: trendOf(price, higher)}
	a.Aligned = a.Base == a.Higher
	return a
}

func trendOf(price, baseline float64) model.Trend {
	if price > baseline {
		return model.TrendBull
	}
	return model.TrendBear
}

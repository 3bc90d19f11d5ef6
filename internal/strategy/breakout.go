package strategy

import (
	"fmt"
	"math"

	"github.com/pierrenik/signalauto/internal/model"
)

const (
	baseConfidence  = 35.0
	maxADXBonus     = 15.0
	alignmentBonus  = 15.0
	strongTrendADX  = 40.0
	strongTrendRR   = 5.0
	standardRR      = 3.0
	adxBonusDivisor = 5.0
	minConfidence   = 35
	maxConfidence   = 65
)

// Evaluate runs the breakout gates in order: trend alignment, ADX strength,
// channel breakout. The first failing gate decides the rejection.
func Evaluate(price float64, ind model.Indicators, p model.StrategyParams) (Decision, error) {
	al := ind.Alignment
	if !al.Aligned {
		return Decision{
			Reason:     RejectMisaligned,
			Diagnostic: fmt.Sprintf("rejected: timeframe misalignment (%s/%s)", al.Base, al.Higher),
		}, nil
	}

	if ind.ADX < p.ADXThreshold {
		return Decision{
			Reason: RejectWeakTrend,
			Diagnostic: fmt.Sprintf("rejected: ADX %.1f < %.1f (short %.1f)",
				ind.ADX, p.ADXThreshold, p.ADXThreshold-ind.ADX),
		}, nil
	}

	aboveBaseline := price > ind.TrendBaseline || ind.TrendBaseline == 0
	var dir model.Direction
	switch {
	case price > ind.Channel.Upper && aboveBaseline:
		dir = model.Long
	case price < ind.Channel.Lower && !aboveBaseline:
		dir = model.Short
	default:
		return Decision{
			Reason: RejectNoBreakout,
			Diagnostic: fmt.Sprintf("waiting for channel breakout (dist: %.2f%% / %.2f%%)",
				pctDistance(ind.Channel.Upper-price, price), pctDistance(price-ind.Channel.Lower, price)),
		}, nil
	}

	setup, err := buildSetup(price, dir, ind, p)
	if err != nil {
		return Decision{}, err
	}

	adxBonus := math.Min(ind.ADX/adxBonusDivisor, maxADXBonus)
	align := 0.0
	if al.Aligned {
		align = alignmentBonus
	}
	confidence := clampInt(int(math.Floor(baseConfidence+adxBonus+align)), minConfidence, maxConfidence)

	return Decision{
		Accepted:   true,
		Direction:  dir,
		Setup:      setup,
		Confidence: confidence,
		Reasoning: []string{
			fmt.Sprintf("timeframes aligned (%s)", al.Base),
			fmt.Sprintf("ADX %.1f confirms trend strength", ind.ADX),
			fmt.Sprintf("%s breakout of %d-bar channel", dir, p.DonchianPeriod),
			fmt.Sprintf("target set at 1:%.0f", setup.RiskRewardRatio),
		},
		Breakdown: []model.ScoreFactor{
			{Label: "Base", Score: baseConfidence, Polarity: model.Neutral},
			{Label: "ADX momentum", Score: adxBonus, Polarity: model.Positive},
			{Label: "Multi-TF alignment", Score: align, Polarity: polarityOf(align)},
		},
		Diagnostic: "signal accepted",
	}, nil
}

func buildSetup(price float64, dir model.Direction, ind model.Indicators, p model.StrategyParams) (model.TradeSetup, error) {
	sign := dir.Sign()
	stop := price - sign*ind.ATR*p.StopLossATRMultiplier
	risk := math.Abs(price - stop)
	if risk <= 0 || math.IsNaN(risk) {
		return model.TradeSetup{}, fmt.Errorf("%w: price %.5f atr %.5f", ErrZeroRisk, price, ind.ATR)
	}

	rr := standardRR
	if ind.ADX > strongTrendADX {
		rr = strongTrendRR
	}
	riskAmount := p.RiskAmount()
	return model.TradeSetup{
		EntryPrice:      price,
		StopLoss:        stop,
		TakeProfit:      price + sign*risk*rr,
		PositionSize:    riskAmount / risk,
		RiskAmount:      riskAmount,
		RiskRewardRatio: rr,
	}, nil
}

func pctDistance(delta, price float64) float64 {
	if price == 0 {
		return 0
	}
	return delta / price * 100
}

func polarityOf(score float64) model.Polarity {
	if score > 0 {
		return model.Positive
	}
	return model.Neutral
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package strategy

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pierrenik/signalauto/internal/indicator"
	"github.com/pierrenik/signalauto/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func params() model.StrategyParams {
	return model.StrategyParams{
		ID: "forex_sniper_v15_quantum", MAShortPeriod: 20, MALongPeriod: 50, ADXThreshold: 25,
		DonchianPeriod: 20, StopLossATRMultiplier: 3, RiskPerTradePercent: 0.5, CapitalBase: 10000,
	}
}

func bullish(price, adx float64) model.Indicators {
	return model.Indicators{
		Price:         price,
		ATR:           1,
		ADX:           adx,
		Channel:       model.Channel{Upper: price / 1.01, Lower: price * 0.9, Middle: price * 0.95},
		TrendBaseline: price * 0.95,
		Alignment:     model.Alignment{Base: model.TrendBull, Higher: model.TrendBull, Aligned: true},
	}
}

func TestEvaluate_FlatSeriesRejectsOnADX(t *testing.T) {
	s := model.MarketSeries{Symbol: "FLAT"}
	for i := 0; i < 60; i++ {
		s.Opens = append(s.Opens, 100)
		s.Highs = append(s.Highs, 100.1)
		s.Lows = append(s.Lows, 99.9)
		s.Closes = append(s.Closes, 100)
		s.Volumes = append(s.Volumes, 1)
	}

	for n := indicator.MinBars; n <= 60; n++ {
		view := s.Head(n)
		ind, err := indicator.Compute(view, params())
		if err != nil {
			t.Fatalf("bar %d: Compute: %v", n, err)
		}
		d, err := Evaluate(view.LastPrice, ind, params())
		if err != nil {
			t.Fatalf("bar %d: Evaluate: %v", n, err)
		}
		if d.Accepted {
			t.Fatalf("bar %d: accepted a flat series", n)
		}
		if d.Reason != RejectWeakTrend {
			t.Errorf("bar %d: reason = %s, want %s (%s)", n, d.Reason, RejectWeakTrend, d.Diagnostic)
		}
	}
}

func TestEvaluate_StrongAlignedBreakout(t *testing.T) {
	d, err := Evaluate(101, bullish(101, 45), params())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Accepted || d.Direction != model.Long {
		t.Fatalf("decision = %+v, want accepted LONG", d)
	}
	if d.Setup.RiskRewardRatio != 5 {
		t.Errorf("rr = %v, want 5", d.Setup.RiskRewardRatio)
	}
	if d.Confidence < 35 || d.Confidence > 65 {
		t.Errorf("confidence = %d, want within [35,65]", d.Confidence)
	}
	// 35 + 45/5 + 15
	if d.Confidence != 59 {
		t.Errorf("confidence = %d, want 59", d.Confidence)
	}
	assertClose(t, "stop", d.Setup.StopLoss, 98, 1e-9)
	assertClose(t, "target", d.Setup.TakeProfit, 116, 1e-9)
	assertClose(t, "risk amount", d.Setup.RiskAmount, 50, 1e-9)
	assertClose(t, "size", d.Setup.PositionSize, 50.0/3, 1e-9)
}

func TestEvaluate_BreakdownSumsToConfidence(t *testing.T) {
	for _, adx := range []float64{25, 33.3, 41, 80} {
		d, err := Evaluate(101, bullish(101, adx), params())
		if err != nil || !d.Accepted {
			t.Fatalf("adx %.1f: decision=%+v err=%v", adx, d, err)
		}
		sum := 0.0
		for _, f := range d.Breakdown {
			sum += f.Score
		}
		if int(math.Floor(sum)) != d.Confidence {
			t.Errorf("adx %.1f: breakdown sum %.2f, confidence %d", adx, sum, d.Confidence)
		}
		wantRR := 3.0
		if adx > 40 {
			wantRR = 5
		}
		if d.Setup.RiskRewardRatio != wantRR {
			t.Errorf("adx %.1f: rr = %v, want %v", adx, d.Setup.RiskRewardRatio, wantRR)
		}
	}
}

func TestEvaluate_ShortBreakout(t *testing.T) {
	ind := model.Indicators{
		ATR:           2,
		ADX:           30,
		Channel:       model.Channel{Upper: 110, Lower: 100, Middle: 105},
		TrendBaseline: 120,
		Alignment:     model.Alignment{Base: model.TrendBear, Higher: model.TrendBear, Aligned: true},
	}
	d, err := Evaluate(99, ind, params())
	if err != nil || !d.Accepted {
		t.Fatalf("decision=%+v err=%v", d, err)
	}
	if d.Direction != model.Short {
		t.Fatalf("direction = %s, want SHORT", d.Direction)
	}
	assertClose(t, "stop", d.Setup.StopLoss, 105, 1e-9)
	assertClose(t, "target", d.Setup.TakeProfit, 81, 1e-9)
	if !(d.Setup.TakeProfit < d.Setup.EntryPrice && d.Setup.StopLoss > d.Setup.EntryPrice) {
		t.Errorf("short setup not ordered: %+v", d.Setup)
	}
}

func TestEvaluate_GateOrder(t *testing.T) {
	ind := bullish(101, 10)
	ind.Alignment = model.Alignment{Base: model.TrendBull, Higher: model.TrendBear}
	d, _ := Evaluate(101, ind, params())
	if d.Reason != RejectMisaligned {
		t.Fatalf("reason = %s, want %s", d.Reason, RejectMisaligned)
	}
	if !strings.Contains(d.Diagnostic, "BULL/BEAR") {
		t.Errorf("diagnostic %q does not name the mismatched pair", d.Diagnostic)
	}

	d, _ = Evaluate(101, bullish(101, 10), params())
	if d.Reason != RejectWeakTrend || !strings.Contains(d.Diagnostic, "short 15.0") {
		t.Errorf("weak trend diagnostic = %q", d.Diagnostic)
	}
}

func TestEvaluate_NoBreakoutDiagnostic(t *testing.T) {
	ind := bullish(100, 30)
	ind.Channel = model.Channel{Upper: 102, Lower: 95, Middle: 98.5}
	d, err := Evaluate(100, ind, params())
	if err != nil {
		t.Fatal(err)
	}
	if d.Accepted || d.Reason != RejectNoBreakout {
		t.Fatalf("decision = %+v, want no-breakout rejection", d)
	}
	if !strings.Contains(d.Diagnostic, "2.00%") || !strings.Contains(d.Diagnostic, "5.00%") {
		t.Errorf("diagnostic %q missing distances", d.Diagnostic)
	}
}

func TestEvaluate_LongNeedsPriceAboveBaseline(t *testing.T) {
	ind := bullish(101, 30)
	ind.TrendBaseline = 150
	d, _ := Evaluate(101, ind, params())
	if d.Accepted {
		t.Fatalf("accepted LONG below the trend baseline")
	}
}

func TestEvaluate_ZeroATRIsInvariantViolation(t *testing.T) {
	ind := bullish(101, 30)
	ind.ATR = 0
	_, err := Evaluate(101, ind, params())
	if !errors.Is(err, ErrZeroRisk) {
		t.Fatalf("err = %v, want ErrZeroRisk", err)
	}
}

func TestDecision_NewSignal(t *testing.T) {
	ind := bullish(101, 45)
	d, _ := Evaluate(101, ind, params())
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := d.NewSignal(model.Asset{Symbol: "EURUSD=X", Class: model.ClassForex}, "s1", ind, at)
	b := d.NewSignal(model.Asset{Symbol: "EURUSD=X", Class: model.ClassForex}, "s1", ind, at)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids not unique: %q %q", a.ID, b.ID)
	}
	if a.Status != model.StatusOpen || a.TrailingExit != ind.TrailingExit || a.AssetClass != model.ClassForex {
		t.Errorf("signal = %+v", a)
	}
}

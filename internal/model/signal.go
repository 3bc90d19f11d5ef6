package model

import (
	"encoding/json"
	"math"
	"time"
)

// Direction is the side of a trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Status is the lifecycle state of a Signal. WIN and LOSS are terminal.
type Status string

const (
	StatusOpen Status = "OPEN"
	StatusWin  Status = "WIN"
	StatusLoss Status = "LOSS"
)

// Polarity marks how a score factor contributed to confidence.
type Polarity string

const (
	Positive Polarity = "POSITIVE"
	Negative Polarity = "NEGATIVE"
	Neutral  Polarity = "NEUTRAL"
)

// ScoreFactor is one additive contribution to a signal's confidence.
type ScoreFactor struct {
	Label    string   `json:"label"`
	Score    float64  `json:"score"`
	Polarity Polarity `json:"polarity"`
}

// TradeSetup describes entry, exits and sizing for an accepted trade.
type TradeSetup struct {
	EntryPrice      float64 `json:"entry_price"`
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	PositionSize    float64 `json:"position_size"` // units: risk amount / risk distance
	RiskAmount      float64 `json:"risk_amount"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

// RiskDistance is |entry - stop|. A zero distance makes the setup undefined.
func (t TradeSetup) RiskDistance() float64 {
	return math.Abs(t.EntryPrice - t.StopLoss)
}

// Signal is a trade proposal tracked from creation to closure.
type Signal struct {
	ID             string        `json:"id"`
	Asset          string        `json:"asset"`
	AssetClass     AssetClass    `json:"asset_class"`
	StrategyID     string        `json:"strategy_id"`
	Direction      Direction     `json:"direction"`
	CreatedAt      time.Time     `json:"created_at"`
	EntryPrice     float64       `json:"entry_price"`
	Indicators     Indicators    `json:"indicators"`
	Setup          TradeSetup    `json:"setup"`
	Reasoning      []string      `json:"reasoning"`
	ScoreBreakdown []ScoreFactor `json:"score_breakdown"`
	Confidence     int           `json:"confidence"`

	// TrailingExit is the exit level the lifecycle currently tracks.
	TrailingExit float64 `json:"trailing_exit"`

	Status     Status     `json:"status"`
	ClosePrice float64    `json:"close_price,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	PnLR       float64    `json:"pnl_r,omitempty"`
}

// IsOpen reports whether the signal has not reached a terminal state.
func (s *Signal) IsOpen() bool {
	return s.Status == StatusOpen
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Clone returns a deep copy so callers can't mutate shared slices.
func (s Signal) Clone() Signal {
	c := s
	c.Reasoning = append([]string(nil), s.Reasoning...)
	c.ScoreBreakdown = append([]ScoreFactor(nil), s.ScoreBreakdown...)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return c
}

package model

// StrategyParams is one named, versioned parameter set for the breakout strategy.
// Tags drive YAML decoding, default filling and validation in config.
type StrategyParams struct {
	ID                    string  `yaml:"id" json:"id" validate:"required"`
	Name                  string  `yaml:"name" json:"name"`
	Description           string  `yaml:"description" json:"description,omitempty"`
	MAShortPeriod         int     `yaml:"ma_short_period" json:"ma_short_period" default:"20" validate:"gt=0,ltfield=MALongPeriod"`
	MALongPeriod          int     `yaml:"ma_long_period" json:"ma_long_period" default:"50" validate:"gt=0"`
	ADXThreshold          float64 `yaml:"adx_threshold" json:"adx_threshold" default:"25" validate:"gte=0,lte=100"`
	DonchianPeriod        int     `yaml:"donchian_period" json:"donchian_period" default:"20" validate:"gt=1,lt=50"`
	StopLossATRMultiplier float64 `yaml:"stop_loss_atr_multiplier" json:"stop_loss_atr_multiplier" default:"3" validate:"gt=0"`
	RiskPerTradePercent   float64 `yaml:"risk_per_trade_percent" json:"risk_per_trade_percent" default:"0.5" validate:"gt=0,lte=100"`
	CapitalBase           float64 `yaml:"capital_base" json:"capital_base" default:"10000" validate:"gt=0"`
}

// RiskAmount is the capital put at risk per trade.
func (p StrategyParams) RiskAmount() float64 {
	return p.CapitalBase * (p.RiskPerTradePercent / 100)
}

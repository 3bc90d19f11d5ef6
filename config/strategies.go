package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pierrenik/signalauto/internal/model"
)

// DefaultStrategyID is the built-in breakout parameter set.
const DefaultStrategyID = "forex_sniper_v15_quantum"

var validate = validator.New()

// StrategySet is a versioned collection of named parameter sets. Exactly one
// is active for live scanning; all of them can be compared in a backtest.
type StrategySet struct {
	Version    int                    `yaml:"version" default:"1" validate:"gte=1"`
	Active     string                 `yaml:"active"`
	Strategies []model.StrategyParams `yaml:"strategies" validate:"required,min=1,dive"`
}

// DefaultStrategies returns the built-in set.
func DefaultStrategies() StrategySet {
	return StrategySet{
		Version: 1,
		Active:  DefaultStrategyID,
		Strategies: []model.StrategyParams{{
			ID:                    DefaultStrategyID,
			Name:                  "Quantum Sniper V15 MTF",
			Description:           "H1/M15 trend alignment, Donchian breakout, 1:5 target on strong ADX.",
			MAShortPeriod:         20,
			MALongPeriod:          50,
			ADXThreshold:          25,
			DonchianPeriod:        20,
			StopLossATRMultiplier: 3,
			RiskPerTradePercent:   0.5,
			CapitalBase:           10000,
		}},
	}
}

// LoadStrategies reads a YAML strategy file. Missing numeric fields take
// their defaults; the result is validated. An empty path returns the
// built-in set.
func LoadStrategies(path string) (StrategySet, error) {
	if path == "" {
		return DefaultStrategies(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return StrategySet{}, fmt.Errorf("read strategies: %w", err)
	}
	return ParseStrategies(b)
}

// ParseStrategies decodes, defaults and validates a YAML strategy set.
func ParseStrategies(b []byte) (StrategySet, error) {
	var set StrategySet
	if err := yaml.Unmarshal(b, &set); err != nil {
		return StrategySet{}, fmt.Errorf("parse strategies: %w", err)
	}
	if err := defaults.Set(&set); err != nil {
		return StrategySet{}, fmt.Errorf("strategy defaults: %w", err)
	}
	for i := range set.Strategies {
		if err := defaults.Set(&set.Strategies[i]); err != nil {
			return StrategySet{}, fmt.Errorf("strategy defaults: %w", err)
		}
	}
	if err := validate.Struct(set); err != nil {
		return StrategySet{}, fmt.Errorf("invalid strategies: %w", err)
	}

	seen := make(map[string]bool, len(set.Strategies))
	for _, s := range set.Strategies {
		if seen[s.ID] {
			return StrategySet{}, fmt.Errorf("invalid strategies: duplicate id %q", s.ID)
		}
		seen[s.ID] = true
	}
	if set.Active == "" {
		set.Active = set.Strategies[0].ID
	}
	if !seen[set.Active] {
		return StrategySet{}, fmt.Errorf("invalid strategies: active %q not defined", set.Active)
	}
	return set, nil
}

// Find returns the parameter set with the given id.
func (s StrategySet) Find(id string) (model.StrategyParams, bool) {
	for _, p := range s.Strategies {
		if p.ID == id {
			return p, true
		}
	}
	return model.StrategyParams{}, false
}

// ActiveParams returns the live parameter set. A non-empty override wins
// over the file's active entry.
func (s StrategySet) ActiveParams(override string) (model.StrategyParams, error) {
	id := s.Active
	if override != "" {
		id = override
	}
	p, ok := s.Find(id)
	if !ok {
		return model.StrategyParams{}, fmt.Errorf("strategy %q not found", id)
	}
	return p, nil
}

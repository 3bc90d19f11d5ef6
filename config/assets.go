package config

import (
	"fmt"
	"strings"

	"github.com/pierrenik/signalauto/internal/model"
)

// DefaultAssets is the built-in universe: forex majors and crosses, US
// indices, metals and large-cap crypto.
func DefaultAssets() []model.Asset {
	return []model.Asset{
		{Symbol: "EURUSD=X", Class: model.ClassForex, Name: "EUR/USD", Active: true},
		{Symbol: "GBPUSD=X", Class: model.ClassForex, Name: "GBP/USD", Active: true},
		{Symbol: "USDJPY=X", Class: model.ClassForex, Name: "USD/JPY", Active: true},
		{Symbol: "AUDUSD=X", Class: model.ClassForex, Name: "AUD/USD", Active: true},
		{Symbol: "USDCAD=X", Class: model.ClassForex, Name: "USD/CAD", Active: true},
		{Symbol: "EURJPY=X", Class: model.ClassForex, Name: "EUR/JPY", Active: true},
		{Symbol: "GBPJPY=X", Class: model.ClassForex, Name: "GBP/JPY", Active: true},
		{Symbol: "^GSPC", Class: model.ClassIndex, Name: "S&P 500", Active: true},
		{Symbol: "^IXIC", Class: model.ClassIndex, Name: "NASDAQ", Active: true},
		{Symbol: "^DJI", Class: model.ClassIndex, Name: "Dow Jones", Active: true},
		{Symbol: "GC=F", Class: model.ClassCommodity, Name: "Gold (XAU/USD)", Active: true},
		{Symbol: "SI=F", Class: model.ClassCommodity, Name: "Silver (XAG/USD)", Active: true},
		{Symbol: "BTC-USD", Class: model.ClassCrypto, Name: "Bitcoin", Active: true},
		{Symbol: "ETH-USD", Class: model.ClassCrypto, Name: "Ethereum", Active: true},
		{Symbol: "SOL-USD", Class: model.ClassCrypto, Name: "Solana", Active: true},
	}
}

// ParseAssets parses "SYMBOL:CLASS[:Name],..." into active assets. An empty
// string returns DefaultAssets.
func ParseAssets(s string) ([]model.Asset, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultAssets(), nil
	}
	var out []model.Asset
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("asset %q: want SYMBOL:CLASS[:Name]", part)
		}
		a := model.Asset{
			Symbol: strings.TrimSpace(fields[0]),
			Class:  model.AssetClass(strings.ToUpper(strings.TrimSpace(fields[1]))),
			Active: true,
		}
		if len(fields) == 3 {
			a.Name = strings.TrimSpace(fields[2])
		}
		if a.Name == "" {
			a.Name = a.Symbol
		}
		if a.Symbol == "" || !a.Class.Valid() {
			return nil, fmt.Errorf("asset %q: invalid symbol or class", part)
		}
		if seen[a.Symbol] {
			return nil, fmt.Errorf("asset %q: duplicate symbol", a.Symbol)
		}
		seen[a.Symbol] = true
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no assets in %q", s)
	}
	return out, nil
}

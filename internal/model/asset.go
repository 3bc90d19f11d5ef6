package model

// AssetClass groups instruments by market; it selects the data provider.
type AssetClass string

const (
	ClassCrypto    AssetClass = "CRYPTO"
	ClassForex     AssetClass = "FOREX"
	ClassCommodity AssetClass = "COMMODITY"
	ClassStock     AssetClass = "STOCK"
	ClassIndex     AssetClass = "INDEX"
)

// Valid reports whether c is a known asset class.
func (c AssetClass) Valid() bool {
	switch c {
	case ClassCrypto, ClassForex, ClassCommodity, ClassStock, ClassIndex:
		return true
	}
	return false
}

// Asset is one entry of the scanned universe.
type Asset struct {
	Symbol string     `json:"symbol"` // provider symbol, e.g. "EURUSD=X", "BTC-USD"
	Class  AssetClass `json:"class"`
	Name   string     `json:"name"`
	Active bool       `json:"active"`
}

package scanner

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pierrenik/signalauto/internal/model"
)

// ErrUnknownAsset is returned when toggling a symbol outside the universe.
var ErrUnknownAsset = errors.New("scanner: unknown asset")

// Universe is the configured instrument list with per-asset enable flags.
type Universe struct {
	mu     sync.RWMutex
	assets []model.Asset
}

// NewUniverse copies assets into a new Universe.
func NewUniverse(assets []model.Asset) *Universe {
	return &Universe{assets: append([]model.Asset(nil), assets...)}
}

// All returns every asset in configuration order.
func (u *Universe) All() []model.Asset {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return append([]model.Asset(nil), u.assets...)
}

// Active returns the enabled assets in configuration order.
func (u *Universe) Active() []model.Asset {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]model.Asset, 0, len(u.assets))
	for _, a := range u.assets {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}

// Toggle flips the enable flag of symbol and returns the updated asset.
func (u *Universe) Toggle(symbol string) (model.Asset, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := range u.assets {
		if u.assets[i].Symbol == symbol {
			u.assets[i].Active = !u.assets[i].Active
			return u.assets[i], nil
		}
	}
	return model.Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
}

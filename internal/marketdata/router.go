package marketdata

import (
	"context"
	"errors"

	"github.com/pierrenik/signalauto/internal/model"
)

// Router sends crypto assets to the crypto source and everything else to
// the default source. A failed crypto fetch falls back to the default
// source, which also quotes the major coins.
type Router struct {
	Crypto  model.MarketDataSource
	Default model.MarketDataSource
}

// Fetch implements model.MarketDataSource.
func (r *Router) Fetch(ctx context.Context, asset model.Asset) (model.MarketSeries, error) {
	if asset.Class != model.ClassCrypto || r.Crypto == nil {
		return r.Default.Fetch(ctx, asset)
	}
	s, err := r.Crypto.Fetch(ctx, asset)
	if err == nil || r.Default == nil || ctx.Err() != nil {
		return s, err
	}
	s, ferr := r.Default.Fetch(ctx, asset)
	if ferr != nil {
		return model.MarketSeries{}, errors.Join(err, ferr)
	}
	return s, nil
}

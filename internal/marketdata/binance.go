package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
)

// DefaultBinanceMirrors are raced on every fetch.
var DefaultBinanceMirrors = []string{
	"https://api.binance.com",
	"https://api1.binance.com",
	"https://api2.binance.com",
	"https://api3.binance.com",
}

// BinanceConfig configures the klines client.
type BinanceConfig struct {
	Mirrors  []string
	Interval string // default 15m
	Limit    int    // default 500
	Timeout  time.Duration
}

// Binance fetches crypto klines, racing all mirrors.
type Binance struct {
	client   *http.Client
	mirrors  []string
	interval string
	limit    int
}

// NewBinance creates a Binance client.
func NewBinance(cfg BinanceConfig) *Binance {
	if len(cfg.Mirrors) == 0 {
		cfg.Mirrors = DefaultBinanceMirrors
	}
	if cfg.Interval == "" {
		cfg.Interval = DefaultInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Binance{
		client:   &http.Client{Timeout: cfg.Timeout},
		mirrors:  cfg.Mirrors,
		interval: cfg.Interval,
		limit:    cfg.Limit,
	}
}

// BinanceSymbol converts "BTC-USD", "BTC/USD", "BTCUSD" or "BTC" to "BTCUSDT".
func BinanceSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("-", "", "/", "").Replace(s)
	switch {
	case strings.HasSuffix(s, "USDT"):
		return s
	case strings.HasSuffix(s, "USD"):
		return strings.TrimSuffix(s, "USD") + "USDT"
	default:
		return s + "USDT"
	}
}

// Fetch implements model.MarketDataSource.
func (b *Binance) Fetch(ctx context.Context, asset model.Asset) (model.MarketSeries, error) {
	sym := BinanceSymbol(asset.Symbol)
	attempts := make([]func(context.Context) ([][]any, error), len(b.mirrors))
	for i, m := range b.mirrors {
		url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
			strings.TrimRight(m, "/"), sym, b.interval, b.limit)
		attempts[i] = func(ctx context.Context) ([][]any, error) {
			var klines [][]any
			if err := getJSON(ctx, b.client, url, &klines); err != nil {
				return nil, err
			}
			if len(klines) == 0 {
				return nil, unavailable("empty klines from %s", url)
			}
			return klines, nil
		}
	}

	klines, err := FirstSuccess(ctx, attempts...)
	if err != nil {
		return model.MarketSeries{}, fmt.Errorf("binance %s: %w", sym, err)
	}
	return parseKlines(asset.Symbol, klines)
}

// parseKlines maps [openTime, open, high, low, close, volume, ...] rows.
func parseKlines(symbol string, klines [][]any) (model.MarketSeries, error) {
	s := model.MarketSeries{Symbol: symbol}
	for i, k := range klines {
		if len(k) < 6 {
			return model.MarketSeries{}, unavailable("kline %d has %d fields", i, len(k))
		}
		ms, ok := k[0].(float64)
		if !ok {
			return model.MarketSeries{}, unavailable("kline %d: bad open time", i)
		}
		var ohlcv [5]float64
		for j := 0; j < 5; j++ {
			v, err := klineFloat(k[j+1])
			if err != nil {
				return model.MarketSeries{}, unavailable("kline %d field %d: %v", i, j+1, err)
			}
			ohlcv[j] = v
		}
		s.Opens = append(s.Opens, ohlcv[0])
		s.Highs = append(s.Highs, ohlcv[1])
		s.Lows = append(s.Lows, ohlcv[2])
		s.Closes = append(s.Closes, ohlcv[3])
		s.Volumes = append(s.Volumes, ohlcv[4])
		s.Timestamps = append(s.Timestamps, time.UnixMilli(int64(ms)).UTC())
	}
	if n := s.Len(); n > 0 {
		s.LastPrice = s.Closes[n-1]
		s.LastTS = s.Timestamps[n-1]
	}
	return s, nil
}

func klineFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

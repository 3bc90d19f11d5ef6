package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
)

// DefaultYahooHosts are tried in order until one returns a usable series.
var DefaultYahooHosts = []string{
	"https://query1.finance.yahoo.com",
	"https://query2.finance.yahoo.com",
}

// YahooConfig configures the chart client.
type YahooConfig struct {
	Hosts    []string
	Interval string // default 15m
	Range    string // default 5d
	Timeout  time.Duration
}

// Yahoo fetches bars from the v8 chart endpoint.
type Yahoo struct {
	client   *http.Client
	hosts    []string
	interval string
	rng      string
}

// NewYahoo creates a Yahoo client.
func NewYahoo(cfg YahooConfig) *Yahoo {
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = DefaultYahooHosts
	}
	if cfg.Interval == "" {
		cfg.Interval = DefaultInterval
	}
	if cfg.Range == "" {
		cfg.Range = "5d"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Yahoo{
		client:   &http.Client{Timeout: cfg.Timeout},
		hosts:    cfg.Hosts,
		interval: cfg.Interval,
		rng:      cfg.Range,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch implements model.MarketDataSource.
func (y *Yahoo) Fetch(ctx context.Context, asset model.Asset) (model.MarketSeries, error) {
	var errs []error
	for _, host := range y.hosts {
		u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s&events=history&includeAdjustedClose=true",
			strings.TrimRight(host, "/"), url.PathEscape(asset.Symbol), y.interval, y.rng)

		var resp chartResponse
		if err := getJSON(ctx, y.client, u, &resp); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		s, err := parseChart(asset.Symbol, &resp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return s, nil
	}
	return model.MarketSeries{}, fmt.Errorf("yahoo %s: %w", asset.Symbol, errors.Join(errs...))
}

// parseChart keeps only rows where all four OHLC values are present.
func parseChart(symbol string, resp *chartResponse) (model.MarketSeries, error) {
	if e := resp.Chart.Error; e != nil {
		return model.MarketSeries{}, unavailable("%s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return model.MarketSeries{}, unavailable("no result in chart response")
	}
	r := resp.Chart.Result[0]
	if len(r.Timestamp) == 0 || len(r.Indicators.Quote) == 0 {
		return model.MarketSeries{}, unavailable("malformed chart indicators")
	}
	q := r.Indicators.Quote[0]

	at := func(vals []*float64, i int) (float64, bool) {
		if i >= len(vals) || vals[i] == nil {
			return 0, false
		}
		return *vals[i], true
	}

	s := model.MarketSeries{Symbol: symbol}
	for i, ts := range r.Timestamp {
		o, ok1 := at(q.Open, i)
		h, ok2 := at(q.High, i)
		l, ok3 := at(q.Low, i)
		c, ok4 := at(q.Close, i)
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		v, _ := at(q.Volume, i)
		s.Opens = append(s.Opens, o)
		s.Highs = append(s.Highs, h)
		s.Lows = append(s.Lows, l)
		s.Closes = append(s.Closes, c)
		s.Volumes = append(s.Volumes, v)
		s.Timestamps = append(s.Timestamps, time.Unix(ts, 0).UTC())
	}

	n := s.Len()
	if n < MinPoints {
		return model.MarketSeries{}, unavailable("only %d valid points, need %d", n, MinPoints)
	}
	s.LastPrice = s.Closes[n-1]
	s.LastTS = s.Timestamps[n-1]
	return s, nil
}

// Package marketdata fetches recent OHLCV bars from public HTTP APIs.
//
// Every provider implements model.MarketDataSource. Failures (network,
// HTTP status, malformed or short payloads) are returned wrapped in
// ErrUnavailable so the caller can skip the asset for this cycle.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable marks a fetch that produced no usable series.
var ErrUnavailable = errors.New("marketdata: unavailable")

const (
	DefaultInterval = "15m"
	DefaultTimeout  = 10 * time.Second

	// MinPoints is the fewest valid bars a provider accepts.
	MinPoints = 100

	userAgent = "Mozilla/5.0 (compatible; signalauto/1.0)"
)

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// getJSON performs a GET and decodes a 2xx JSON body into dest.
func getJSON(ctx context.Context, client *http.Client, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return unavailable("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return unavailable("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return unavailable("unexpected status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return unavailable("decode json: %v", err)
	}
	return nil
}

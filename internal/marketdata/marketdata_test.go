package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
)

func TestFirstSuccess_FastestWinsAndCancelsLosers(t *testing.T) {
	var cancelled atomic.Int32
	slow := func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			cancelled.Add(1)
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "slow", nil
		}
	}
	fast := func(ctx context.Context) (string, error) { return "fast", nil }
	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }

	start := time.Now()
	got, err := FirstSuccess(context.Background(), slow, failing, fast, slow)
	if err != nil || got != "fast" {
		t.Fatalf("got %q, %v; want fast", got, err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("FirstSuccess waited for slow attempts")
	}

	deadline := time.Now().Add(2 * time.Second)
	for cancelled.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cancelled.Load() != 2 {
		t.Errorf("cancelled losers = %d, want 2", cancelled.Load())
	}
}

func TestFirstSuccess_AllFailJoinsErrors(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	_, err := FirstSuccess(context.Background(),
		func(context.Context) (int, error) { return 0, e1 },
		func(context.Context) (int, error) { return 0, e2 },
	)
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("err = %v, want both branch errors", err)
	}
	if _, err := FirstSuccess[int](context.Background()); err == nil {
		t.Error("expected error with no attempts")
	}
}

func TestBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC-USD": "BTCUSDT", "eth/usd": "ETHUSDT", "SOL": "SOLUSDT",
		"BTCUSDT": "BTCUSDT", "ETHUSD": "ETHUSDT",
	}
	for in, want := range cases {
		if got := BinanceSymbol(in); got != want {
			t.Errorf("BinanceSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func klinesJSON(n int) []byte {
	rows := make([][]any, n)
	for i := range rows {
		c := 100 + float64(i)
		rows[i] = []any{
			float64(1700000000000 + int64(i)*900000),
			fmt.Sprintf("%.2f", c-0.5), fmt.Sprintf("%.2f", c+1), fmt.Sprintf("%.2f", c-1),
			fmt.Sprintf("%.2f", c), "12.5", 0,
		}
	}
	b, _ := json.Marshal(rows)
	return b
}

func TestBinance_FetchRacesMirrors(t *testing.T) {
	var hits atomic.Int32
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/v3/klines" || r.URL.Query().Get("symbol") != "BTCUSDT" ||
			r.URL.Query().Get("interval") != "15m" || r.URL.Query().Get("limit") != "500" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write(klinesJSON(120))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "banned", http.StatusTeapot)
	}))
	defer bad.Close()

	b := NewBinance(BinanceConfig{Mirrors: []string{bad.URL, good.URL}})
	s, err := b.Fetch(context.Background(), model.Asset{Symbol: "BTC-USD", Class: model.ClassCrypto})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Len() != 120 || s.Symbol != "BTC-USD" || s.LastPrice != 219 {
		t.Fatalf("series len=%d symbol=%s last=%v", s.Len(), s.Symbol, s.LastPrice)
	}
	if s.Highs[0] != 101 || s.Lows[0] != 99 || s.Opens[0] != 99.5 || s.Volumes[0] != 12.5 {
		t.Errorf("first bar = o%v h%v l%v v%v", s.Opens[0], s.Highs[0], s.Lows[0], s.Volumes[0])
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBinance_AllMirrorsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer bad.Close()

	b := NewBinance(BinanceConfig{Mirrors: []string{bad.URL, bad.URL}})
	_, err := b.Fetch(context.Background(), model.Asset{Symbol: "ETH-USD", Class: model.ClassCrypto})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func chartJSON(n int, nullAt map[int]bool) []byte {
	ts := make([]int64, n)
	o, h, l, c, v := make([]*float64, n), make([]*float64, n), make([]*float64, n), make([]*float64, n), make([]*float64, n)
	for i := 0; i < n; i++ {
		ts[i] = 1700000000 + int64(i)*900
		if nullAt[i] {
			continue
		}
		px := 1.1 + float64(i)*0.001
		hi, lo, vol := px+0.002, px-0.002, 0.0
		o[i], h[i], l[i], c[i], v[i] = &px, &hi, &lo, &px, &vol
	}
	body := map[string]any{"chart": map[string]any{"result": []any{map[string]any{
		"timestamp": ts,
		"indicators": map[string]any{"quote": []any{map[string]any{
			"open": o, "high": h, "low": l, "close": c, "volume": v,
		}}},
	}}}}
	b, _ := json.Marshal(body)
	return b
}

func TestYahoo_DropsNullRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v8/finance/chart/EURUSD=X") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("range") != "5d" {
			t.Errorf("range = %s", r.URL.Query().Get("range"))
		}
		w.Write(chartJSON(110, map[int]bool{3: true, 50: true}))
	}))
	defer srv.Close()

	y := NewYahoo(YahooConfig{Hosts: []string{srv.URL}})
	s, err := y.Fetch(context.Background(), model.Asset{Symbol: "EURUSD=X", Class: model.ClassForex})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Len() != 108 {
		t.Fatalf("len = %d, want 108", s.Len())
	}
	if !s.LastTS.Equal(time.Unix(1700000000+109*900, 0)) {
		t.Errorf("last ts = %v", s.LastTS)
	}
}

func TestYahoo_FallsBackToNextHost(t *testing.T) {
	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chartJSON(60, nil))
	}))
	defer short.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chartJSON(150, nil))
	}))
	defer good.Close()

	y := NewYahoo(YahooConfig{Hosts: []string{short.URL, good.URL}})
	s, err := y.Fetch(context.Background(), model.Asset{Symbol: "^GSPC", Class: model.ClassIndex})
	if err != nil || s.Len() != 150 {
		t.Fatalf("len=%d err=%v", s.Len(), err)
	}

	y = NewYahoo(YahooConfig{Hosts: []string{short.URL}})
	if _, err := y.Fetch(context.Background(), model.Asset{Symbol: "^GSPC"}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("short series err = %v, want ErrUnavailable", err)
	}
}

func TestYahoo_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	y := NewYahoo(YahooConfig{Hosts: []string{srv.URL}})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := y.Fetch(ctx, model.Asset{Symbol: "GC=F"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

type stubSource struct {
	series model.MarketSeries
	err    error
	calls  int
}

func (s *stubSource) Fetch(context.Context, model.Asset) (model.MarketSeries, error) {
	s.calls++
	return s.series, s.err
}

func TestRouter(t *testing.T) {
	crypto := &stubSource{err: fmt.Errorf("%w: down", ErrUnavailable)}
	def := &stubSource{series: model.MarketSeries{Symbol: "ok"}}
	r := &Router{Crypto: crypto, Default: def}

	if _, err := r.Fetch(context.Background(), model.Asset{Symbol: "EURUSD=X", Class: model.ClassForex}); err != nil {
		t.Fatal(err)
	}
	if crypto.calls != 0 || def.calls != 1 {
		t.Fatalf("forex routed to crypto=%d default=%d", crypto.calls, def.calls)
	}

	s, err := r.Fetch(context.Background(), model.Asset{Symbol: "BTC-USD", Class: model.ClassCrypto})
	if err != nil || s.Symbol != "ok" {
		t.Fatalf("fallback failed: %v", err)
	}
	if crypto.calls != 1 || def.calls != 2 {
		t.Errorf("crypto=%d default=%d, want 1 and 2", crypto.calls, def.calls)
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pierrenik/signalauto/internal/model"
	"github.com/pierrenik/signalauto/internal/portfolio"
	"github.com/pierrenik/signalauto/internal/scanner"
	"github.com/pierrenik/signalauto/internal/store"
)

type staticSource map[string]model.MarketSeries

func (s staticSource) Fetch(_ context.Context, a model.Asset) (model.MarketSeries, error) {
	return s[a.Symbol], nil
}

func rally(n int) model.MarketSeries {
	s := model.MarketSeries{Symbol: "EURUSD=X"}
	for i := 0; i < n; i++ {
		c := 1 + 0.001*float64(i)
		s.Opens = append(s.Opens, c)
		s.Highs = append(s.Highs, c+0.0004)
		s.Lows = append(s.Lows, c-0.0004)
		s.Closes = append(s.Closes, c)
	}
	s.LastPrice = s.Closes[n-1]
	return s
}

func newTestServer(t *testing.T) (*httptest.Server, *scanner.Scanner) {
	t.Helper()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	params := model.StrategyParams{
		ID: "forex_sniper_v15_quantum", MAShortPeriod: 20, MALongPeriod: 50, ADXThreshold: 25,
		DonchianPeriod: 20, StopLossATRMultiplier: 3, RiskPerTradePercent: 0.5, CapitalBase: 10000,
	}
	universe := scanner.NewUniverse([]model.Asset{
		{Symbol: "EURUSD=X", Class: model.ClassForex, Name: "EUR/USD", Active: true},
		{Symbol: "^GSPC", Class: model.ClassIndex, Name: "S&P 500", Active: true},
	})
	out := store.NewOutbox(store.NewMemory(50), store.NewCircuitBreaker(3, time.Minute), 100)
	sc := scanner.New(scanner.Config{BatchSize: 2}, staticSource{"EURUSD=X": rally(300)},
		portfolio.NewBook(portfolio.WithClock(clock)), out, params, scanner.WithClock(clock))
	sc.RunCycle(context.Background(), universe.Active()[:1])

	srv := httptest.NewServer(NewRouter(Deps{Scanner: sc, Universe: universe}))
	t.Cleanup(srv.Close)
	return srv, sc
}

func do(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	var body map[string]string
	if code := do(t, http.MethodGet, srv.URL+"/api/v1/health", &body); code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %d %v", code, body)
	}
}

func TestSignalsAndDismiss(t *testing.T) {
	srv, sc := newTestServer(t)

	var open []model.Signal
	if code := do(t, http.MethodGet, srv.URL+"/api/v1/signals", &open); code != http.StatusOK {
		t.Fatalf("signals: %d", code)
	}
	if len(open) != 1 || open[0].Asset != "EURUSD=X" {
		t.Fatalf("open signals = %+v", open)
	}

	var dismissed model.Signal
	if code := do(t, http.MethodDelete, srv.URL+"/api/v1/signals/"+open[0].ID, &dismissed); code != http.StatusOK {
		t.Fatalf("dismiss: %d", code)
	}
	if dismissed.ID != open[0].ID {
		t.Errorf("dismissed %q, want %q", dismissed.ID, open[0].ID)
	}
	if code := do(t, http.MethodDelete, srv.URL+"/api/v1/signals/"+open[0].ID, nil); code != http.StatusConflict {
		t.Errorf("second dismiss: %d, want 409", code)
	}
	if code := do(t, http.MethodDelete, srv.URL+"/api/v1/signals/missing", nil); code != http.StatusNotFound {
		t.Errorf("unknown id: %d, want 404", code)
	}
	if len(sc.Book().History()) != 0 {
		t.Error("dismissed signal must not reach history")
	}

	var hist []model.Signal
	do(t, http.MethodGet, srv.URL+"/api/v1/history", &hist)
	if len(hist) != 0 {
		t.Errorf("history = %+v, want empty", hist)
	}
	var stats portfolio.Summary
	do(t, http.MethodGet, srv.URL+"/api/v1/stats", &stats)
	if stats.Trades != 0 {
		t.Errorf("stats counted a dismissal: %+v", stats)
	}
}

func TestStatusAndScanLogs(t *testing.T) {
	srv, _ := newTestServer(t)

	var st scanner.Status
	do(t, http.MethodGet, srv.URL+"/api/v1/status", &st)
	if st.State != "ACTIVE" || st.Progress != 100 || st.OpenSignals != 1 {
		t.Errorf("status = %+v", st)
	}

	var logs []model.ScanLogEntry
	do(t, http.MethodGet, srv.URL+"/api/v1/scanlogs?limit=5", &logs)
	if len(logs) != 1 || logs[0].Outcome != model.OutcomeSuccess {
		t.Errorf("scan logs = %+v", logs)
	}
}

func TestToggleAsset(t *testing.T) {
	srv, _ := newTestServer(t)

	var a model.Asset
	if code := do(t, http.MethodPost, srv.URL+"/api/v1/assets/%5EGSPC/toggle", &a); code != http.StatusOK {
		t.Fatalf("toggle: %d", code)
	}
	if a.Symbol != "^GSPC" || a.Active {
		t.Errorf("toggled asset = %+v, want ^GSPC disabled", a)
	}
	if code := do(t, http.MethodPost, srv.URL+"/api/v1/assets/NOPE/toggle", nil); code != http.StatusNotFound {
		t.Errorf("unknown asset: %d, want 404", code)
	}

	var all []model.Asset
	do(t, http.MethodGet, srv.URL+"/api/v1/assets", &all)
	if len(all) != 2 || all[1].Active {
		t.Errorf("assets = %+v", all)
	}
}

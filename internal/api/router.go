// Package api serves the operator HTTP API: open signals, history, stats,
// scan logs, engine status, manual dismissal and universe toggling.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pierrenik/signalauto/internal/markethours"
	"github.com/pierrenik/signalauto/internal/model"
	"github.com/pierrenik/signalauto/internal/portfolio"
	"github.com/pierrenik/signalauto/internal/scanner"
)

// Deps are the components the API reads from and acts on. Feed, Health and
// Metrics are optional.
type Deps struct {
	Scanner  *scanner.Scanner
	Universe *scanner.Universe
	Feed     http.Handler // websocket event feed
	Health   http.Handler
	Metrics  http.Handler
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	h := &handlers{d: d}

	mux.HandleFunc("GET /api/v1/health", h.health)
	mux.HandleFunc("GET /api/v1/signals", h.signals)
	mux.HandleFunc("DELETE /api/v1/signals/{id}", h.dismiss)
	mux.HandleFunc("GET /api/v1/history", h.history)
	mux.HandleFunc("GET /api/v1/stats", h.stats)
	mux.HandleFunc("GET /api/v1/scanlogs", h.scanLogs)
	mux.HandleFunc("GET /api/v1/status", h.status)
	mux.HandleFunc("GET /api/v1/strategy", h.strategy)
	mux.HandleFunc("GET /api/v1/assets", h.assets)
	mux.HandleFunc("POST /api/v1/assets/{symbol}/toggle", h.toggle)
	mux.HandleFunc("OPTIONS /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})

	if d.Feed != nil {
		mux.Handle("/ws", d.Feed)
	}
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}
	return mux
}

type handlers struct {
	d Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.d.Health != nil {
		SetCORS(w)
		h.d.Health.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) signals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Scanner.Book().Snapshot())
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	hist := h.d.Scanner.Book().History()
	if limit := queryInt(r, "limit"); limit > 0 && limit < len(hist) {
		hist = hist[:limit]
	}
	writeJSON(w, http.StatusOK, hist)
}

// stats reports performance over closed signals. Trades within ±0.10R count
// as break-even here.
func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	hist := h.d.Scanner.Book().History()
	// History is newest first; the drawdown curve needs chronological order.
	chrono := make([]model.Signal, len(hist))
	for i, s := range hist {
		chrono[len(hist)-1-i] = s
	}
	writeJSON(w, http.StatusOK, portfolio.Summarize(chrono))
}

func (h *handlers) scanLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Scanner.Logs(queryInt(r, "limit")))
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Scanner.Status())
}

func (h *handlers) strategy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Scanner.Params())
}

type assetView struct {
	model.Asset
	MarketOpen bool   `json:"market_open"`
	Session    string `json:"session"`
}

func (h *handlers) assets(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	all := h.d.Universe.All()
	out := make([]assetView, len(all))
	for i, a := range all {
		out[i] = assetView{
			Asset:      a,
			MarketOpen: markethours.IsOpen(a.Class, now),
			Session:    markethours.StatusString(a.Class, now),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) dismiss(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sig, err := h.d.Scanner.Dismiss(r.Context(), id)
	switch {
	case errors.Is(err, portfolio.ErrSignalNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, portfolio.ErrAlreadyClosed):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, sig)
	}
}

func (h *handlers) toggle(w http.ResponseWriter, r *http.Request) {
	asset, err := h.d.Universe.Toggle(r.PathValue("symbol"))
	if errors.Is(err, scanner.ErrUnknownAsset) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

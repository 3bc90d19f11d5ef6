package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	// Scan cycle metrics
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram
	CycleProgress prometheus.Gauge         // 0-100 within the running cycle
	OutcomesTotal *prometheus.CounterVec   // labels: outcome
	FetchDuration *prometheus.HistogramVec // labels: class
	FetchErrors   *prometheus.CounterVec   // labels: class

	// Signal lifecycle
	SignalsOpened    prometheus.Counter
	SignalsClosed    *prometheus.CounterVec // labels: status
	SignalsDismissed prometheus.Counter
	OpenSignals      prometheus.Gauge
	RealizedR        prometheus.Histogram

	// Store circuit breaker + outbox
	StoreCircuitState  prometheus.Gauge // 0=closed, 1=open, 2=half-open
	StoreCircuitTrips  prometheus.Counter
	StorePendingWrites prometheus.Gauge
	StoreReplayed      prometheus.Counter

	// Fan-out
	NotifyErrors prometheus.Counter
	WSClients    prometheus.Gauge
}

// New creates all metrics and registers them on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalauto_scan_cycles_total",
			Help: "Total scan cycles completed",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalauto_scan_cycle_duration_seconds",
			Help:    "Wall time of one scan cycle over the active universe",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		CycleProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalauto_scan_progress_pct",
			Help: "Progress of the running scan cycle (0-100)",
		}),
		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalauto_scan_outcomes_total",
			Help: "Asset evaluations by outcome (SUCCESS, REJECTED, ERROR)",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalauto_fetch_duration_seconds",
			Help:    "Market data fetch latency by asset class",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"class"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalauto_fetch_errors_total",
			Help: "Market data fetch failures by asset class",
		}, []string{"class"}),

		SignalsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalauto_signals_opened_total",
			Help: "Signals opened",
		}),
		SignalsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalauto_signals_closed_total",
			Help: "Signals closed by terminal status",
		}, []string{"status"}),
		SignalsDismissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalauto_signals_dismissed_total",
			Help: "Signals dismissed by an operator",
		}),
		OpenSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalauto_open_signals",
			Help: "Currently open signals",
		}),
		RealizedR: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalauto_realized_r",
			Help:    "Net realized R of closed signals",
			Buckets: []float64{-2, -1, -0.5, 0, 0.1, 0.5, 1, 2, 3, 5},
		}),

		StoreCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalauto_store_circuit_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		StoreCircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalauto_store_circuit_breaker_trips_total",
			Help: "Times the store circuit breaker tripped open",
		}),
		StorePendingWrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalauto_store_pending_writes",
			Help: "Writes queued in the outbox while the store is unavailable",
		}),
		StoreReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalauto_store_replayed_writes_total",
			Help: "Queued writes replayed after the store recovered",
		}),

		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalauto_notify_errors_total",
			Help: "Event deliveries that failed",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalauto_ws_clients",
			Help: "Connected websocket feed clients",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.CycleProgress,
		m.OutcomesTotal,
		m.FetchDuration,
		m.FetchErrors,
		m.SignalsOpened,
		m.SignalsClosed,
		m.SignalsDismissed,
		m.OpenSignals,
		m.RealizedR,
		m.StoreCircuitState,
		m.StoreCircuitTrips,
		m.StorePendingWrites,
		m.StoreReplayed,
		m.NotifyErrors,
		m.WSClients,
	)

	return m
}

// Handler serves the metrics gathered by g. A nil g uses the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

package translate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/minios-linux/jsonloc/ratelimit"
)

// Metrics holds the Prometheus collectors for translation runs. A nil
// *Metrics records nothing.
type Metrics struct {
	runs           *prometheus.CounterVec
	items          *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	backendCalls   *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	batchFallbacks *prometheus.CounterVec
	inFlightGauge  *prometheus.GaugeVec
}

// NewMetrics registers the translation collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonloc_runs_total",
				Help: "Total number of translation runs started",
			},
			[]string{"provider", "strategy"},
		),
		items: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonloc_items_total",
				Help: "Total number of translated items by final status",
			},
			[]string{"provider", "status"},
		),
		cacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonloc_cache_hits_total",
				Help: "Total number of strings served from the translation cache",
			},
			[]string{"provider"},
		),
		backendCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonloc_backend_requests_total",
				Help: "Total number of backend requests",
			},
			[]string{"provider", "kind", "status"},
		),
		callDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsonloc_backend_request_duration_seconds",
				Help:    "Duration of backend requests in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"provider", "kind"},
		),
		batchFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsonloc_batch_fallback_items_total",
				Help: "Total number of batched strings retried as single requests",
			},
			[]string{"provider"},
		),
		inFlightGauge: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jsonloc_backend_requests_in_flight",
				Help: "Number of backend requests currently in flight",
			},
			[]string{"provider"},
		),
	}
}

// RegisterGovernorMetrics exposes the dispatch window of gov as gauges that
// are read on every scrape.
func RegisterGovernorMetrics(reg prometheus.Registerer, provider string, gov *ratelimit.Governor) {
	f := promauto.With(reg)
	labels := prometheus.Labels{"provider": provider}
	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "jsonloc_dispatch_throughput",
			Help:        "Backend requests dispatched per second over the trailing minute",
			ConstLabels: labels,
		},
		gov.Throughput,
	)
	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "jsonloc_dispatches_last_minute",
			Help:        "Number of backend requests dispatched in the trailing minute",
			ConstLabels: labels,
		},
		func() float64 { return float64(gov.DispatchedInWindow()) },
	)
	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "jsonloc_governor_in_flight",
			Help:        "Number of governor permits currently held",
			ConstLabels: labels,
		},
		func() float64 { return float64(gov.InFlight()) },
	)
}

func (m *Metrics) runStarted(provider string, strategy Strategy) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(provider, string(strategy)).Inc()
}

func (m *Metrics) item(provider string, ok bool) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(provider, statusLabel(ok)).Inc()
}

func (m *Metrics) cacheHit(provider string, n int) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(provider).Add(float64(n))
}

func (m *Metrics) backendCall(provider, kind string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(provider, kind, statusLabel(ok)).Inc()
	m.callDuration.WithLabelValues(provider, kind).Observe(d.Seconds())
}

func (m *Metrics) batchFallback(provider string, n int) {
	if m == nil {
		return
	}
	m.batchFallbacks.WithLabelValues(provider).Add(float64(n))
}

func (m *Metrics) inFlight(provider string, delta float64) {
	if m == nil {
		return
	}
	m.inFlightGauge.WithLabelValues(provider).Add(delta)
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

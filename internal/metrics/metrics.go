// Package metrics exposes the pipeline's prometheus instruments on a private registry.
package metrics

import (
	"net/http"

	"github.com/layer-3/dripper/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dripper"

// Metrics owns the registry shared by every wallet pipeline in the process
type Metrics struct {
	registry *prometheus.Registry

	permits       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	blocksScanned *prometheus.CounterVec
	triggers      *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	watchErrors   *prometheus.CounterVec
	lastBlock     *prometheus.GaugeVec
	inFlight      *prometheus.GaugeVec
}

// New registers all instruments on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		permits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permits_total",
			Help:      "Permit submissions by outcome.",
		}, []string{"wallet", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_runs_total",
			Help:      "Claim runs by result.",
		}, []string{"wallet", "result"}),
		blocksScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_scanned_total",
			Help:      "Blocks inspected by the watcher.",
		}, []string{"wallet"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Distribution transactions detected.",
		}, []string{"wallet"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_skipped_total",
			Help:      "Triggers dropped because a claim run was in flight.",
		}, []string{"wallet"}),
		watchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_errors_total",
			Help:      "Failed watcher poll cycles.",
		}, []string{"wallet"}),
		lastBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_observed_block",
			Help:      "Highest block number the watcher has processed.",
		}, []string{"wallet"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "claim_in_flight",
			Help:      "1 while a claim run is active.",
		}, []string{"wallet"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.permits, m.runs, m.blocksScanned, m.triggers, m.skipped,
		m.watchErrors, m.lastBlock, m.inFlight,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ForWallet returns a recorder bound to one wallet label
func (m *Metrics) ForWallet(wallet string) *Recorder {
	if m == nil {
		return nil
	}
	return &Recorder{m: m, wallet: wallet}
}

// Recorder records events for a single wallet pipeline. A nil Recorder discards everything.
type Recorder struct {
	m      *Metrics
	wallet string
}

func (r *Recorder) Permit(outcome core.Outcome) {
	if r == nil {
		return
	}
	r.m.permits.WithLabelValues(r.wallet, string(outcome)).Inc()
}

func (r *Recorder) ClaimRun(result string) {
	if r == nil {
		return
	}
	r.m.runs.WithLabelValues(r.wallet, result).Inc()
}

func (r *Recorder) BlocksScanned(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.m.blocksScanned.WithLabelValues(r.wallet).Add(float64(n))
}

func (r *Recorder) TriggerDetected() {
	if r == nil {
		return
	}
	r.m.triggers.WithLabelValues(r.wallet).Inc()
}

func (r *Recorder) TriggerSkipped() {
	if r == nil {
		return
	}
	r.m.skipped.WithLabelValues(r.wallet).Inc()
}

func (r *Recorder) WatcherError() {
	if r == nil {
		return
	}
	r.m.watchErrors.WithLabelValues(r.wallet).Inc()
}

func (r *Recorder) LastBlock(n uint64) {
	if r == nil {
		return
	}
	r.m.lastBlock.WithLabelValues(r.wallet).Set(float64(n))
}

func (r *Recorder) ClaimInFlight(active bool) {
	if r == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	r.m.inFlight.WithLabelValues(r.wallet).Set(v)
}

// Package metrics exposes Prometheus collectors for the scope service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal             *prometheus.CounterVec
	rulePanicsTotal            *prometheus.CounterVec
	robotsVerdictsTotal        *prometheus.CounterVec
	robotsUpdatesTotal         *prometheus.CounterVec
	outlinksDiscardedTotal     prometheus.Counter
	cachedServers              prometheus.Gauge
	cachedHosts                prometheus.Gauge
	surtPrefixes               prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		decisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlscope_decisions_total",
				Help: "Total number of rule sequence verdicts, labeled by sequence and decision.",
			},
			[]string{"sequence", "decision"},
		)

		rulePanicsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlscope_rule_panics_total",
				Help: "Total number of rule evaluations that panicked and were treated as PASS.",
			},
			[]string{"rule"},
		)

		robotsVerdictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlscope_robots_verdicts_total",
				Help: "Total number of robots exclusion checks, labeled by verdict.",
			},
			[]string{"verdict"},
		)

		robotsUpdatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlscope_robots_updates_total",
				Help: "Total number of robots.txt resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		outlinksDiscardedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlscope_outlinks_discarded_total",
				Help: "Total number of outlinks dropped because a URI reached its outlink cap.",
			},
		)

		cachedServers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlscope_cached_servers",
				Help: "Number of server records held by the identity cache.",
			},
		)

		cachedHosts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlscope_cached_hosts",
				Help: "Number of host records held by the identity cache.",
			},
		)

		surtPrefixes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlscope_surt_prefixes",
				Help: "Number of prefixes in the published SURT scope set.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveDecision counts one verdict of the named sequence.
func ObserveDecision(sequence, decision string) {
	Init()
	decisionsTotal.WithLabelValues(sequence, decision).Inc()
}

// ObserveRulePanic counts a rule that panicked during evaluation.
func ObserveRulePanic(rule string) {
	Init()
	rulePanicsTotal.WithLabelValues(rule).Inc()
}

// ObserveRobotsVerdict counts one robots exclusion check.
func ObserveRobotsVerdict(excluded bool) {
	Init()
	verdict := "allowed"
	if excluded {
		verdict = "excluded"
	}
	robotsVerdictsTotal.WithLabelValues(verdict).Inc()
}

// ObserveRobotsUpdate counts one robots.txt resolution outcome.
func ObserveRobotsUpdate(outcome string) {
	Init()
	robotsUpdatesTotal.WithLabelValues(outcome).Inc()
}

// AddDiscardedOutlinks adds n dropped outlinks.
func AddDiscardedOutlinks(n int) {
	if n <= 0 {
		return
	}
	Init()
	outlinksDiscardedTotal.Add(float64(n))
}

// IncCachedServers increments the cached servers gauge.
func IncCachedServers() {
	Init()
	cachedServers.Inc()
}

// DecCachedServers decrements the cached servers gauge.
func DecCachedServers() {
	Init()
	cachedServers.Dec()
}

// IncCachedHosts increments the cached hosts gauge.
func IncCachedHosts() {
	Init()
	cachedHosts.Inc()
}

// DecCachedHosts decrements the cached hosts gauge.
func DecCachedHosts() {
	Init()
	cachedHosts.Dec()
}

// SetSurtPrefixes records the size of the published SURT set.
func SetSurtPrefixes(n int) {
	Init()
	surtPrefixes.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

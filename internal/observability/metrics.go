package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onegate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "onegate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	intakeLinks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onegate",
			Subsystem: "intake",
			Name:      "links_total",
			Help:      "Deep links handled, by outcome.",
		},
		[]string{"outcome"},
	)
	intakeDispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onegate",
			Subsystem: "intake",
			Name:      "dispatch_total",
			Help:      "Deep links pushed into the link hub, by delivery shape.",
		},
		[]string{"shape"},
	)
	pairDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "onegate",
			Subsystem: "intake",
			Name:      "pair_duration_seconds",
			Help:      "Pairing initiator call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"success"},
	)
	walletKitReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "onegate",
			Subsystem: "walletkit",
			Name:      "ready",
			Help:      "1 once the wallet kit handle is initialized.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, intakeLinks, intakeDispatch, pairDuration, walletKitReady)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordLink(outcome string) {
	RegisterMetrics()
	intakeLinks.WithLabelValues(outcome).Inc()
}

func RecordDispatch(shape string) {
	RegisterMetrics()
	intakeDispatch.WithLabelValues(shape).Inc()
}

func RecordPair(duration time.Duration, success bool) {
	RegisterMetrics()
	pairDuration.WithLabelValues(strconv.FormatBool(success)).Observe(duration.Seconds())
}

func SetWalletKitReady(ready bool) {
	RegisterMetrics()
	if ready {
		walletKitReady.Set(1)
		return
	}
	walletKitReady.Set(0)
}

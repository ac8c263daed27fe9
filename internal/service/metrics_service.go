package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	scanTotal       *prometheus.CounterVec
	tokenRotations  prometheus.Counter
	tokenRaces      prometheus.Counter
	fraudSignals    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	sweptTokens     prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	scanTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_scans_total",
		Help: "Total attendance scan attempts by outcome",
	}, []string{"outcome"})

	tokenRotations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_token_rotations_total",
		Help: "Total scan tokens issued",
	})

	tokenRaces := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_token_consume_races_total",
		Help: "Token consume attempts that lost the compare-and-set race",
	})

	fraudSignals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_signals_total",
		Help: "Fraud signals emitted by heuristic type",
	}, []string{"type"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "policy_cache_hits_total",
		Help: "Resolved-policy cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "policy_cache_misses_total",
		Help: "Resolved-policy cache misses",
	})

	sweptTokens := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_tokens_swept_total",
		Help: "Expired scan tokens removed by the sweeper",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, scanTotal, tokenRotations, tokenRaces, fraudSignals, cacheHits, cacheMisses, sweptTokens, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		scanTotal:       scanTotal,
		tokenRotations:  tokenRotations,
		tokenRaces:      tokenRaces,
		fraudSignals:    fraudSignals,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		sweptTokens:     sweptTokens,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordScanOutcome counts a scan attempt by outcome (status or error code).
func (m *MetricsService) RecordScanOutcome(outcome string) {
	if m == nil {
		return
	}
	m.scanTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenRotation counts an issued token.
func (m *MetricsService) RecordTokenRotation() {
	if m == nil {
		return
	}
	m.tokenRotations.Inc()
}

// RecordTokenRace counts a consume attempt that lost the conditional update.
func (m *MetricsService) RecordTokenRace() {
	if m == nil {
		return
	}
	m.tokenRaces.Inc()
}

// RecordFraudSignal counts an emitted signal by heuristic type.
func (m *MetricsService) RecordFraudSignal(signalType string) {
	if m == nil {
		return
	}
	m.fraudSignals.WithLabelValues(signalType).Inc()
}

// RecordCacheOperation counts a policy-cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordSweptTokens counts expired tokens removed by the sweeper.
func (m *MetricsService) RecordSweptTokens(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.sweptTokens.Add(float64(count))
}

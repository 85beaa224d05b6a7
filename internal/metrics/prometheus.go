// Package metrics provides the Prometheus metrics registry of the service.
//
// All metrics live in a private registry (not the global default) and are
// exposed through Handler(). Every recording method is safe to call on a nil
// *Registry, which records nothing.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60}

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// funnel_inflight_requests
	inFlight prometheus.Gauge

	// funnel_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// funnel_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// funnel_http_request_size_bytes{route}
	httpReqSize *prometheus.HistogramVec

	// funnel_analysis_total{tier,cache}
	analysisTotal *prometheus.CounterVec

	// funnel_analysis_duration_seconds{tier,cache}
	analysisDuration *prometheus.HistogramVec

	// funnel_rejected_requests_total{reason}
	rejected *prometheus.CounterVec

	// funnel_upstream_attempts_total{provider,outcome}
	upstreamAttempts *prometheus.CounterVec

	// funnel_upstream_attempt_duration_seconds{provider,outcome}
	upstreamDuration *prometheus.HistogramVec

	// funnel_provider_errors_total{provider,error_type}
	providerErrors *prometheus.CounterVec

	// funnel_circuit_breaker_state{provider}: 0=closed, 1=open, 2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// funnel_circuit_breaker_transitions_total{provider,to_state}
	cbTransitions *prometheus.CounterVec

	// funnel_circuit_breaker_rejections_total{provider}
	cbRejections *prometheus.CounterVec

	// funnel_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// funnel_quota_decisions_total{result}
	quotaTotal *prometheus.CounterVec

	// funnel_tokens_total{model,direction,cache}
	tokensTotal *prometheus.CounterVec

	// funnel_usage_dropped_total
	usageDropped prometheus.Counter

	// funnel_usage_flushes_total{sink,result}
	usageFlushes *prometheus.CounterVec

	// funnel_provider_health{provider}
	providerHealth *prometheus.GaugeVec

	// funnel_build_info{version}
	buildInfo *prometheus.GaugeVec

	cbMu        sync.Mutex
	lastCBState map[string]string

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg:         reg,
		lastCBState: make(map[string]string),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "funnel_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funnel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end)",
				Buckets: durationBuckets,
			},
			[]string{"route"},
		),

		httpReqSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funnel_http_request_size_bytes",
				Help:    "HTTP request body size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 12),
			},
			[]string{"route"},
		),

		analysisTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_analysis_total",
				Help: "Completed analyses by serving tier and cache status",
			},
			[]string{"tier", "cache"},
		),

		analysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funnel_analysis_duration_seconds",
				Help:    "Pipeline duration in seconds by serving tier and cache status",
				Buckets: durationBuckets,
			},
			[]string{"tier", "cache"},
		),

		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_rejected_requests_total",
				Help: "Requests terminated before analysis",
			},
			[]string{"reason"},
		),

		upstreamAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_upstream_attempts_total",
				Help: "Provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funnel_upstream_attempt_duration_seconds",
				Help:    "Provider call duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"provider", "outcome"},
		),

		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_provider_errors_total",
				Help: "Provider errors by type",
			},
			[]string{"provider", "error_type"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "funnel_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed,1=open,2=half-open)",
			},
			[]string{"provider"},
		),

		cbTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_circuit_breaker_transitions_total",
				Help: "Circuit breaker transitions to a new state",
			},
			[]string{"provider", "to_state"},
		),

		cbRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_circuit_breaker_rejections_total",
				Help: "Provider calls skipped because the breaker was open",
			},
			[]string{"provider"},
		),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_cache_operations_total",
				Help: "Cache operations by type and result",
			},
			[]string{"op", "result"},
		),

		quotaTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_quota_decisions_total",
				Help: "Quota check decisions",
			},
			[]string{"result"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_tokens_total",
				Help: "Estimated token usage",
			},
			[]string{"model", "direction", "cache"},
		),

		usageDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "funnel_usage_dropped_total",
			Help: "Usage and audit records dropped because the queue was full",
		}),

		usageFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_usage_flushes_total",
				Help: "Usage batch flushes by sink and result",
			},
			[]string{"sink", "result"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "funnel_provider_health",
				Help: "Provider health status (1=ok, 0=degraded)",
			},
			[]string{"provider"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "funnel_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.httpReqSize,
		r.analysisTotal,
		r.analysisDuration,
		r.rejected,
		r.upstreamAttempts,
		r.upstreamDuration,
		r.providerErrors,
		r.circuitBreakerState,
		r.cbTransitions,
		r.cbRejections,
		r.cacheOps,
		r.quotaTotal,
		r.tokensTotal,
		r.usageDropped,
		r.usageFlushes,
		r.providerHealth,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() {
	if r != nil {
		r.inFlight.Inc()
	}
}

func (r *Registry) DecInFlight() {
	if r != nil {
		r.inFlight.Dec()
	}
}

// ObserveHTTP records end-to-end HTTP metrics.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration, reqBytes int) {
	if r == nil {
		return
	}
	r.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
	if reqBytes >= 0 {
		r.httpReqSize.WithLabelValues(route).Observe(float64(reqBytes))
	}
}

// ObserveAnalysis records one completed pipeline pass.
func (r *Registry) ObserveAnalysis(tier, cache string, dur time.Duration) {
	if r == nil {
		return
	}
	r.analysisTotal.WithLabelValues(tier, cache).Inc()
	r.analysisDuration.WithLabelValues(tier, cache).Observe(dur.Seconds())
}

// RecordRejection counts a request terminated with a client error
// ("validation", "auth", "quota", "method").
func (r *Registry) RecordRejection(reason string) {
	if r != nil {
		r.rejected.WithLabelValues(reason).Inc()
	}
}

// ObserveUpstreamAttempt records one provider call.
func (r *Registry) ObserveUpstreamAttempt(provider, outcome string, dur time.Duration) {
	if r == nil {
		return
	}
	r.upstreamAttempts.WithLabelValues(provider, outcome).Inc()
	r.upstreamDuration.WithLabelValues(provider, outcome).Observe(dur.Seconds())
}

func (r *Registry) RecordError(provider, errType string) {
	if r != nil {
		r.providerErrors.WithLabelValues(provider, errType).Inc()
	}
}

// SetCircuitBreaker sets the breaker state gauge from its label ("closed",
// "open", "half_open") and counts a transition when the state changes.
func (r *Registry) SetCircuitBreaker(provider, state string) {
	if r == nil {
		return
	}
	var v float64
	switch state {
	case "open":
		v = 1
	case "half_open":
		v = 2
	}
	r.circuitBreakerState.WithLabelValues(provider).Set(v)

	r.cbMu.Lock()
	prev, ok := r.lastCBState[provider]
	if !ok || prev != state {
		r.lastCBState[provider] = state
		r.cbTransitions.WithLabelValues(provider, state).Inc()
	}
	r.cbMu.Unlock()
}

func (r *Registry) RecordCircuitBreakerRejection(provider string) {
	if r != nil {
		r.cbRejections.WithLabelValues(provider).Inc()
	}
}

func (r *Registry) CacheGetHit()    { r.cacheOp("get", "hit") }
func (r *Registry) CacheGetMiss()   { r.cacheOp("get", "miss") }
func (r *Registry) CacheGetBypass() { r.cacheOp("get", "bypass") }
func (r *Registry) CacheSetOK()     { r.cacheOp("set", "ok") }
func (r *Registry) CacheSetError()  { r.cacheOp("set", "error") }
func (r *Registry) CacheSetSkip()   { r.cacheOp("set", "skip") }

func (r *Registry) cacheOp(op, result string) {
	if r != nil {
		r.cacheOps.WithLabelValues(op, result).Inc()
	}
}

// RecordQuota counts a quota decision: "allowed", "denied" or "error".
func (r *Registry) RecordQuota(result string) {
	if r != nil {
		r.quotaTotal.WithLabelValues(result).Inc()
	}
}

func (r *Registry) AddTokens(model string, inputTokens, outputTokens int, cached bool) {
	if r == nil {
		return
	}
	cache := "miss"
	if cached {
		cache = "hit"
	}
	if inputTokens > 0 {
		r.tokensTotal.WithLabelValues(model, "input", cache).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		r.tokensTotal.WithLabelValues(model, "output", cache).Add(float64(outputTokens))
	}
}

func (r *Registry) UsageDropped() {
	if r != nil {
		r.usageDropped.Inc()
	}
}

func (r *Registry) RecordUsageFlush(sink string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.usageFlushes.WithLabelValues(sink, result).Inc()
}

func (r *Registry) SetProviderHealth(provider string, ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.providerHealth.WithLabelValues(provider).Set(1)
		return
	}
	r.providerHealth.WithLabelValues(provider).Set(0)
}

func (r *Registry) SetBuildInfo(version string) {
	if r != nil {
		// Gauge is used so the time series always exists.
		r.buildInfo.WithLabelValues(version).Set(1)
	}
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }

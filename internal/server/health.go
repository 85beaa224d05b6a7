package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marco-2806/OtimizaAds/internal/metrics"
	"github.com/marco-2806/OtimizaAds/internal/providers"
)

const (
	defaultProbeInterval = 30 * time.Second
	healthProbeTimeout   = 5 * time.Second
)

// componentStatus holds the last known health result for one component.
type componentStatus struct {
	mu     sync.RWMutex
	status string // "ok" | "degraded" | "down"
}

func (s *componentStatus) set(v string) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

func (s *componentStatus) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == "" {
		return "unknown"
	}
	return s.status
}

// ProviderProber checks one provider account.
type ProviderProber func(ctx context.Context, cred providers.Credential) error

// Probe reports whether a dependency is reachable. A nil Probe means the
// dependency is not configured and counts as ok.
type Probe func(ctx context.Context) bool

// HealthOptions configures a HealthChecker.
type HealthOptions struct {
	Credentials []providers.Credential
	Prober      ProviderProber
	Cache       Probe
	UsageSink   Probe
	Interval    time.Duration
	Metrics     *metrics.Registry
}

// HealthChecker runs background probes and exposes the latest results.
type HealthChecker struct {
	creds     []providers.Credential
	prober    ProviderProber
	cacheOK   Probe
	sinkOK    Probe
	baseCtx   context.Context
	metrics   *metrics.Registry
	interval  time.Duration
	startTime time.Time

	providerStatuses map[string]*componentStatus
	cacheStatus      componentStatus
	sinkStatus       componentStatus

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewHealthChecker runs a first probe synchronously and then keeps probing
// in the background until Close.
func NewHealthChecker(ctx context.Context, opts HealthOptions) (*HealthChecker, error) {
	if ctx == nil {
		return nil, errors.New("healthchecker: context must not be nil")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultProbeInterval
	}

	hc := &HealthChecker{
		creds:            opts.Credentials,
		prober:           opts.Prober,
		cacheOK:          opts.Cache,
		sinkOK:           opts.UsageSink,
		baseCtx:          ctx,
		metrics:          opts.Metrics,
		interval:         opts.Interval,
		startTime:        time.Now(),
		providerStatuses: make(map[string]*componentStatus, len(opts.Credentials)),
		done:             make(chan struct{}),
	}
	for _, c := range opts.Credentials {
		hc.providerStatuses[c.ProviderID] = &componentStatus{status: "unknown"}
	}

	hc.probe()

	hc.wg.Add(1)
	go hc.run()
	return hc, nil
}

// HealthSnapshot is the body of GET /health.
type HealthSnapshot struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Providers     map[string]string `json:"providers"`
	Cache         string            `json:"cache"`
	UsageSink     string            `json:"usage_sink"`
}

// Snapshot builds a snapshot from the latest probe results. A degraded
// provider degrades the overall status but the service still answers,
// through the fallback tiers.
func (hc *HealthChecker) Snapshot() HealthSnapshot {
	overall := "ok"

	provs := make(map[string]string, len(hc.providerStatuses))
	for id, s := range hc.providerStatuses {
		st := s.get()
		provs[id] = st
		if st != "ok" {
			overall = "degraded"
		}
	}

	cache := hc.cacheStatus.get()
	sink := hc.sinkStatus.get()
	if cache != "ok" || sink != "ok" {
		overall = "degraded"
	}

	return HealthSnapshot{
		Status:        overall,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Providers:     provs,
		Cache:         cache,
		UsageSink:     sink,
	}
}

// ReadinessOK reports whether the cache backend is reachable. Providers do
// not gate readiness.
func (hc *HealthChecker) ReadinessOK() bool {
	return hc.cacheStatus.get() == "ok"
}

// Close stops the background probes. Safe to call more than once.
func (hc *HealthChecker) Close() {
	hc.closeOnce.Do(func() { close(hc.done) })
	hc.wg.Wait()
}

func (hc *HealthChecker) run() {
	defer hc.wg.Done()
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hc.probe()
		case <-hc.done:
			return
		case <-hc.baseCtx.Done():
			return
		}
	}
}

func (hc *HealthChecker) probe() {
	ctx, cancel := context.WithTimeout(hc.baseCtx, healthProbeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	if hc.prober != nil {
		for _, cred := range hc.creds {
			cred := cred
			s := hc.providerStatuses[cred.ProviderID]
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok := hc.prober(ctx, cred) == nil
				if ok {
					s.set("ok")
				} else {
					s.set("degraded")
				}
				hc.metrics.SetProviderHealth(cred.ProviderID, ok)
			}()
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		setProbe(ctx, &hc.cacheStatus, hc.cacheOK)
	}()
	go func() {
		defer wg.Done()
		setProbe(ctx, &hc.sinkStatus, hc.sinkOK)
	}()

	wg.Wait()
}

func setProbe(ctx context.Context, s *componentStatus, p Probe) {
	if p == nil || p(ctx) {
		s.set("ok")
		return
	}
	s.set("degraded")
}

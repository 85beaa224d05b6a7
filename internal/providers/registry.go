package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/metrics"
)

// RegistryOptions configures a Registry. Zero values use defaults.
type RegistryOptions struct {
	Timeout time.Duration
	Breaker CBConfig
	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// Registry maps provider kinds to adapters and performs single-attempt
// dispatch under a deadline and a per-provider circuit breaker.
type Registry struct {
	adapters map[string]Adapter
	cb       *CircuitBreaker
	timeout  time.Duration
	log      *slog.Logger
	metrics  *metrics.Registry
}

func NewRegistry(opts RegistryOptions, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		cb:       NewCircuitBreaker(opts.Breaker),
		timeout:  opts.Timeout,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Name().
func (r *Registry) Register(a Adapter) {
	r.adapters[strings.ToLower(a.Name())] = a
}

// Kinds returns the registered provider kinds in sorted order.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// adapterFor resolves the adapter serving cred. Unknown kinds that carry an
// Endpoint are treated as OpenAI-compatible.
func (r *Registry) adapterFor(cred Credential) (Adapter, bool) {
	kind := strings.ToLower(strings.TrimSpace(cred.Provider))
	if a, ok := r.adapters[kind]; ok {
		return a, true
	}
	if cred.Endpoint != "" {
		a, ok := r.adapters[KindOpenAI]
		return a, ok
	}
	return nil, false
}

// Timeout is the deadline applied to a call with cred.
func (r *Registry) Timeout(cred Credential) time.Duration {
	if cred.Timeout > 0 {
		return cred.Timeout
	}
	return r.timeout
}

// Dispatch performs exactly one provider call. Every failure is returned as
// ErrUnsupportedProvider, ErrCircuitOpen or a *ProviderError; deadline
// expiry yields a *ProviderError with Timeout set.
func (r *Registry) Dispatch(ctx context.Context, prompt funnel.Prompt, params Params, cred Credential) (*Completion, error) {
	adapter, ok := r.adapterFor(cred)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cred.Provider)
	}

	breakerKey := cred.ProviderID
	if breakerKey == "" {
		breakerKey = adapter.Name()
	}

	if !r.cb.Allow(breakerKey) {
		r.metrics.RecordCircuitBreakerRejection(breakerKey)
		r.metrics.ObserveUpstreamAttempt(breakerKey, "circuit_reject", 0)
		r.log.WarnContext(ctx, "circuit_breaker_open", slog.String("provider", breakerKey))
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, breakerKey)
	}

	timeout := r.Timeout(cred)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	comp, err := adapter.Complete(callCtx, prompt, params, cred)
	dur := time.Since(start)

	if err == nil && strings.TrimSpace(comp.Text) == "" {
		err = EmptyCompletion(adapter.Name())
	}
	if err != nil {
		err = normalizeError(callCtx, adapter.Name(), timeout, err)
		switch {
		case isCanceled(err):
			// The caller went away; the provider's health is unknown.
		case countsAsFailure(err):
			r.cb.RecordFailure(breakerKey)
		default:
			r.cb.RecordSuccess(breakerKey)
		}
		r.metrics.SetCircuitBreaker(breakerKey, r.cb.StateLabel(breakerKey))

		reason := ClassifyError(err)
		r.metrics.ObserveUpstreamAttempt(breakerKey, reason, dur)
		r.metrics.RecordError(breakerKey, reason)
		r.log.WarnContext(ctx, "provider_call_failed",
			slog.String("provider", breakerKey),
			slog.String("model", params.Model),
			slog.String("reason", reason),
			slog.Int64("latency_ms", dur.Milliseconds()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	r.cb.RecordSuccess(breakerKey)
	r.metrics.SetCircuitBreaker(breakerKey, r.cb.StateLabel(breakerKey))
	r.metrics.ObserveUpstreamAttempt(breakerKey, "success", dur)
	r.log.DebugContext(ctx, "provider_call_ok",
		slog.String("provider", breakerKey),
		slog.String("model", comp.Model),
		slog.Int("input_tokens", comp.InputTokens),
		slog.Int("output_tokens", comp.OutputTokens),
		slog.Int64("latency_ms", dur.Milliseconds()),
	)
	return comp, nil
}

// HealthCheck probes the provider behind cred with its adapter.
func (r *Registry) HealthCheck(ctx context.Context, cred Credential) error {
	adapter, ok := r.adapterFor(cred)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, cred.Provider)
	}
	return adapter.HealthCheck(ctx, cred)
}

// BreakerState returns the breaker label for a provider id.
func (r *Registry) BreakerState(provider string) string {
	return r.cb.StateLabel(provider)
}

// normalizeError turns any adapter error into a *ProviderError, marking
// deadline expiry of the call context as a timeout.
func normalizeError(callCtx context.Context, provider string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &ProviderError{
			Provider: provider,
			Timeout:  true,
			Message:  fmt.Sprintf("no response within %s", timeout),
			Type:     "timeout",
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(callCtx.Err(), context.Canceled) {
		return &ProviderError{
			Provider: provider,
			Message:  "call canceled by caller",
			Type:     errTypeCanceled,
		}
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		return pe
	}

	return &ProviderError{
		Provider: provider,
		Message:  err.Error(),
		Type:     "network_error",
	}
}

const errTypeCanceled = "canceled"

func isCanceled(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Type == errTypeCanceled
}

// countsAsFailure reports whether err says something about provider health.
// Client errors other than 429 describe the request, not the provider.
func countsAsFailure(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return true
	}
	if pe.Type == errTypeCanceled {
		return false
	}
	if pe.StatusCode >= 400 && pe.StatusCode < 500 && pe.StatusCode != 429 {
		return false
	}
	return true
}

// ClassifyError converts a dispatch error into a short category used in
// log fields and metric labels.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnsupportedProvider):
		return "unsupported"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.Timeout:
			return "timeout"
		case pe.StatusCode > 0:
			return fmt.Sprintf("http_%d", pe.StatusCode)
		case pe.Type != "":
			return pe.Type
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}

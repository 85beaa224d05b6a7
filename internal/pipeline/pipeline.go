// Package pipeline runs one funnel analysis end to end: quota, cache
// lookup, model resolution, the provider call and the fallback tiers,
// cache write and usage recording.
//
// Analyze only returns an error for terminal caller problems (rate limit,
// exhausted quota). Every other failure degrades to a simulated or
// emergency result, so a validated, authenticated request always gets a
// structurally valid analysis.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marco-2806/OtimizaAds/internal/auth"
	"github.com/marco-2806/OtimizaAds/internal/cache"
	"github.com/marco-2806/OtimizaAds/internal/catalog"
	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/metrics"
	"github.com/marco-2806/OtimizaAds/internal/providers"
	"github.com/marco-2806/OtimizaAds/internal/usage"
)

// Tier identifies which stage produced a result.
type Tier string

const (
	TierCache      Tier = "cache"
	TierProvider   Tier = "provider"
	TierSimulation Tier = "simulation"
	TierEmergency  Tier = "emergency"
)

// simulationModel is the model name recorded for degraded results.
const simulationModel = "simulation"

// Dispatcher performs one provider call.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt funnel.Prompt, params providers.Params, cred providers.Credential) (*providers.Completion, error)
}

// QuotaChecker enforces and counts the monthly allowance.
type QuotaChecker interface {
	CanUse(ctx context.Context, userID, feature string) (bool, error)
	Increment(ctx context.Context, userID, feature string) error
}

// RateLimiter bounds the per-user request rate.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// ResultCache stores computed analyses.
type ResultCache interface {
	Enabled(service string) bool
	Lookup(ctx context.Context, key string) ([]byte, bool)
	Save(ctx context.Context, key string, body []byte) error
}

// UsageRecorder receives usage records and audit entries.
type UsageRecorder interface {
	RecordUsage(rec usage.Record)
	RecordAudit(e usage.AuditEntry)
}

// Options wires a Pipeline. Resolver and Dispatcher are required; the
// other collaborators are skipped when nil.
type Options struct {
	Service         string
	Resolver        catalog.Resolver
	Dispatcher      Dispatcher
	Quota           QuotaChecker
	RateLimiter     RateLimiter
	Cache           ResultCache
	Usage           UsageRecorder
	SimulationDelay time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Registry

	// Now and Intn are overridable for tests.
	Now  func() time.Time
	Intn func(n int) int
}

// Outcome is what the HTTP layer needs to answer.
type Outcome struct {
	// Body is the JSON response. On a cache hit it is the stored bytes.
	Body           []byte
	Result         *funnel.Result
	CacheHit       bool
	Tier           Tier
	WasSuccessful  bool
	Model          string
	Provider       string
	ProcessingTime time.Duration
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	service    string
	resolver   catalog.Resolver
	dispatcher Dispatcher
	quota      QuotaChecker
	limiter    RateLimiter
	cache      ResultCache
	usage      UsageRecorder
	simDelay   time.Duration
	log        *slog.Logger
	metrics    *metrics.Registry
	now        func() time.Time
	intn       func(n int) int
}

func New(opts Options) (*Pipeline, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("pipeline: resolver is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("pipeline: dispatcher is required")
	}
	if opts.Service == "" {
		opts.Service = funnel.ServiceName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		service:    opts.Service,
		resolver:   opts.Resolver,
		dispatcher: opts.Dispatcher,
		quota:      opts.Quota,
		limiter:    opts.RateLimiter,
		cache:      opts.Cache,
		usage:      opts.Usage,
		simDelay:   opts.SimulationDelay,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
		intn:       opts.Intn,
	}, nil
}

// Analyze runs the pipeline for an already validated request.
func (p *Pipeline) Analyze(ctx context.Context, caller auth.Caller, req funnel.Request) (*Outcome, error) {
	start := p.now()

	if err := p.admit(ctx, caller); err != nil {
		return nil, err
	}

	key := cache.DeriveKey(p.service, req.AdText, req.LandingPageText)
	cacheLabel := "bypass"
	if p.cache != nil && p.cache.Enabled(p.service) {
		if body, ok := p.cache.Lookup(ctx, key); ok {
			p.metrics.CacheGetHit()
			return p.serveCached(ctx, caller, req, body, start), nil
		}
		p.metrics.CacheGetMiss()
		cacheLabel = "miss"
	} else {
		p.metrics.CacheGetBypass()
	}

	out, raw := p.compute(ctx, req)

	if out.Tier == TierProvider && cacheLabel == "miss" {
		bestEffort(ctx, p.log, "cache_write", func(ctx context.Context) error {
			if err := p.cache.Save(ctx, key, out.Body); err != nil {
				p.metrics.CacheSetError()
				return &funnel.StorageError{Op: "cache save", Err: err}
			}
			p.metrics.CacheSetOK()
			return nil
		})
	} else {
		p.metrics.CacheSetSkip()
	}

	out.ProcessingTime = p.now().Sub(start)
	p.record(ctx, caller, req, out, raw)
	p.metrics.ObserveAnalysis(string(out.Tier), cacheLabel, out.ProcessingTime)

	p.log.InfoContext(ctx, "funnel_analysis_completed",
		slog.String("user_id", caller.UserID),
		slog.String("tier", string(out.Tier)),
		slog.String("model", out.Model),
		slog.Bool("was_successful", out.WasSuccessful),
		slog.Int64("processing_ms", out.ProcessingTime.Milliseconds()),
	)
	return out, nil
}

// admit applies the rate limit and the monthly quota. Store failures
// admit the request.
func (p *Pipeline) admit(ctx context.Context, caller auth.Caller) error {
	if p.limiter != nil {
		ok, err := p.limiter.Allow(ctx, caller.UserID)
		if err != nil {
			p.log.WarnContext(ctx, "rate_limit_check_failed",
				slog.String("user_id", caller.UserID),
				slog.String("error", err.Error()),
			)
		}
		if !ok {
			p.metrics.RecordRejection("rate_limited")
			return &funnel.RateLimitedError{UserID: caller.UserID}
		}
	}

	if p.quota == nil {
		return nil
	}
	ok, err := p.quota.CanUse(ctx, caller.UserID, p.service)
	switch {
	case err != nil:
		p.metrics.RecordQuota("error")
		p.log.WarnContext(ctx, "quota_check_failed",
			slog.String("user_id", caller.UserID),
			slog.String("error", err.Error()),
		)
	case !ok:
		p.metrics.RecordQuota("denied")
		p.metrics.RecordRejection("quota_exceeded")
		return &funnel.QuotaExceededError{UserID: caller.UserID, Feature: p.service}
	default:
		p.metrics.RecordQuota("allowed")
	}
	return nil
}

func (p *Pipeline) serveCached(ctx context.Context, caller auth.Caller, req funnel.Request, body []byte, start time.Time) *Outcome {
	out := &Outcome{
		Body:          body,
		CacheHit:      true,
		Tier:          TierCache,
		WasSuccessful: true,
		Model:         string(TierCache),
	}
	out.ProcessingTime = p.now().Sub(start)

	in := funnel.EstimateTokens(req.AdText, req.LandingPageText)
	outTok := funnel.EstimateTokens(string(body))
	p.metrics.AddTokens(out.Model, in, outTok, true)

	bestEffort(ctx, p.log, "usage_record", func(context.Context) error {
		if p.usage != nil {
			p.usage.RecordUsage(usage.Record{
				UserID:       caller.UserID,
				Service:      p.service,
				Model:        out.Model,
				InputTokens:  in,
				OutputTokens: outTok,
				LatencyMs:    out.ProcessingTime.Milliseconds(),
				Success:      true,
				Cached:       true,
				Tier:         string(TierCache),
			})
		}
		return nil
	})
	p.incrementQuota(ctx, caller)
	p.metrics.ObserveAnalysis(string(TierCache), "hit", out.ProcessingTime)

	p.log.InfoContext(ctx, "funnel_analysis_cache_hit",
		slog.String("user_id", caller.UserID),
		slog.Int64("processing_ms", out.ProcessingTime.Milliseconds()),
	)
	return out
}

// compute walks the fallback tiers. raw is the text the usage output
// token estimate is taken from.
func (p *Pipeline) compute(ctx context.Context, req funnel.Request) (*Outcome, string) {
	if res, ok := p.resolver.Resolve(ctx, p.service); ok {
		out, raw, err := p.callProvider(ctx, req, res)
		if err == nil {
			return out, raw
		}
	} else {
		p.log.InfoContext(ctx, "no_model_available", slog.String("service", p.service))
	}

	result, tier := p.degrade(ctx)
	body, err := json.Marshal(result)
	if err != nil {
		result, tier = funnel.EmergencyResult(), TierEmergency
		body, _ = json.Marshal(result)
	}
	return &Outcome{
		Body:   body,
		Result: &result,
		Tier:   tier,
		Model:  simulationModel,
	}, string(body)
}

func (p *Pipeline) callProvider(ctx context.Context, req funnel.Request, res catalog.Resolution) (*Outcome, string, error) {
	prompt := funnel.BuildPrompt(req, res.Model.SystemPrompt)

	// The request context is cancelled when the server starts draining;
	// the dispatcher's own deadline bounds the call instead.
	comp, err := p.dispatcher.Dispatch(context.WithoutCancel(ctx), prompt, res.Params, res.Credential)
	if err != nil {
		p.log.WarnContext(ctx, "provider_failed",
			slog.String("provider", res.Credential.ProviderID),
			slog.String("model", res.Model.DisplayName()),
			slog.String("error_type", providers.ClassifyError(err)),
			slog.Bool("timeout", providers.IsTimeout(err)),
			slog.String("error", err.Error()),
		)
		return nil, "", err
	}

	result, err := funnel.ParseResult(comp.Text)
	if err != nil {
		p.metrics.RecordError(res.Credential.Provider, "invalid_output")
		p.log.WarnContext(ctx, "provider_output_invalid",
			slog.String("provider", res.Credential.ProviderID),
			slog.String("model", res.Model.DisplayName()),
			slog.String("error", err.Error()),
		)
		return nil, "", err
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: encode result: %w", err)
	}
	return &Outcome{
		Body:          body,
		Result:        &result,
		Tier:          TierProvider,
		WasSuccessful: true,
		Model:         res.Model.DisplayName(),
		Provider:      res.Credential.Provider,
	}, comp.Text, nil
}

// degrade returns the simulated result, or the emergency result when
// simulation fails or panics.
func (p *Pipeline) degrade(ctx context.Context) (result funnel.Result, tier Tier) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.ErrorContext(ctx, "simulation_panic", slog.Any("panic", rec))
			result, tier = funnel.EmergencyResult(), TierEmergency
		}
	}()

	res, err := p.simulate(ctx)
	if err != nil {
		p.log.WarnContext(ctx, "simulation_failed", slog.String("error", err.Error()))
		return funnel.EmergencyResult(), TierEmergency
	}
	return res, TierSimulation
}

func (p *Pipeline) simulate(ctx context.Context) (funnel.Result, error) {
	if p.simDelay > 0 {
		t := time.NewTimer(p.simDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return funnel.Result{}, ctx.Err()
		}
	}
	res := funnel.Simulate(p.intn)
	if err := res.Validate(); err != nil {
		return funnel.Result{}, err
	}
	return res, nil
}

func (p *Pipeline) record(ctx context.Context, caller auth.Caller, req funnel.Request, out *Outcome, raw string) {
	in := funnel.EstimateTokens(req.AdText, req.LandingPageText)
	outTok := funnel.EstimateTokens(raw)
	p.metrics.AddTokens(out.Model, in, outTok, false)

	bestEffort(ctx, p.log, "usage_record", func(context.Context) error {
		if p.usage == nil {
			return nil
		}
		p.usage.RecordUsage(usage.Record{
			UserID:       caller.UserID,
			Service:      p.service,
			Model:        out.Model,
			InputTokens:  in,
			OutputTokens: outTok,
			LatencyMs:    out.ProcessingTime.Milliseconds(),
			Success:      out.WasSuccessful,
			Tier:         string(out.Tier),
		})
		p.usage.RecordAudit(usage.AuditEntry{
			UserID:          caller.UserID,
			AdText:          req.AdText,
			LandingPageText: req.LandingPageText,
			Score:           out.Result.FunnelCoherenceScore,
			Suggestions:     out.Result.SyncSuggestions,
			OptimizedAd:     out.Result.OptimizedAd,
			ProcessingMs:    out.ProcessingTime.Milliseconds(),
			Tier:            string(out.Tier),
		})
		return nil
	})
	p.incrementQuota(ctx, caller)
}

func (p *Pipeline) incrementQuota(ctx context.Context, caller auth.Caller) {
	if p.quota == nil {
		return
	}
	bestEffort(ctx, p.log, "quota_increment", func(ctx context.Context) error {
		return p.quota.Increment(ctx, caller.UserID, p.service)
	})
}

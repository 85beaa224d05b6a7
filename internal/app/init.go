package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/marco-2806/OtimizaAds/internal/auth"
	"github.com/marco-2806/OtimizaAds/internal/cache"
	"github.com/marco-2806/OtimizaAds/internal/catalog"
	"github.com/marco-2806/OtimizaAds/internal/metrics"
	"github.com/marco-2806/OtimizaAds/internal/pipeline"
	"github.com/marco-2806/OtimizaAds/internal/providers"
	anthropicprov "github.com/marco-2806/OtimizaAds/internal/providers/anthropic"
	geminiprov "github.com/marco-2806/OtimizaAds/internal/providers/gemini"
	openaiprov "github.com/marco-2806/OtimizaAds/internal/providers/openai"
	openaicompatprov "github.com/marco-2806/OtimizaAds/internal/providers/openaicompat"
	"github.com/marco-2806/OtimizaAds/internal/quota"
	"github.com/marco-2806/OtimizaAds/internal/server"
	"github.com/marco-2806/OtimizaAds/internal/usage"
)

// initInfra establishes optional external connections. Redis is dialled
// when the cache, quota counters or rate limiter can use it; ClickHouse
// only when CLICKHOUSE_DSN is set.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Redis.URL != "" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := cache.DialRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	if a.cfg.Usage.ClickHouseDSN != "" {
		a.log.Info("connecting to clickhouse", slog.String("dsn", redactURL(a.cfg.Usage.ClickHouseDSN)))

		sink, err := usage.OpenClickHouse(ctx, a.cfg.Usage.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		a.clickhouse = sink
		a.log.Info("clickhouse connected")
	}

	return nil
}

// initServices creates the metrics registry, the result cache, the quota
// checker and the usage recorder.
func (a *App) initServices(ctx context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	// ── Result cache ─────────────────────────────────────────────────────────
	var backend cache.Cache
	switch a.cfg.Cache.Mode {
	case "redis":
		backend = cache.NewRedisCache(a.rdb)
		a.log.Info("cache backend: redis")
	case "memory":
		a.memCache = cache.NewMemoryCache(ctx)
		backend = a.memCache
		a.log.Info("cache backend: memory (in-process)")
	case "none":
		a.log.Info("cache backend: disabled")
	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	var exclusions *cache.ExclusionList
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := cache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		exclusions = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	a.store = cache.NewStore(backend, cache.StoreOptions{
		TTL:        a.cfg.Cache.TTL,
		Exclusions: exclusions,
		Logger:     a.log,
	})

	// ── Quota ────────────────────────────────────────────────────────────────
	var counter quota.Counter = quota.NewMemoryCounter()
	if a.rdb != nil {
		counter = quota.NewRedisCounter(a.rdb)
	}
	a.quota = quota.NewChecker(counter, a.cfg.Quota.Limit)
	if a.cfg.Quota.Limit > 0 {
		a.log.Info("monthly quota enabled", slog.Int64("limit", a.cfg.Quota.Limit))
	}

	if a.rdb != nil && a.cfg.Quota.RPMLimit > 0 {
		a.limiter = quota.NewRPMLimiter(a.rdb, a.cfg.Quota.RPMLimit, uuid.NewString)
		a.log.Info("rate limiting enabled", slog.Int("rpm_limit", a.cfg.Quota.RPMLimit))
	}

	// ── Usage recorder ───────────────────────────────────────────────────────
	sinks := []usage.Sink{usage.NewLogSink(a.log)}
	if a.clickhouse != nil {
		sinks = append(sinks, a.clickhouse)
	}
	rec, err := usage.New(ctx, usage.Options{Logger: a.log, Metrics: a.prom}, sinks...)
	if err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	a.recorder = rec

	return nil
}

// initProviders builds the provider registry and the model catalog. An
// empty catalog is allowed: every analysis is then served by the
// simulation tier.
func (a *App) initProviders(_ context.Context) error {
	adapters := []providers.Adapter{
		openaiprov.New(),
		anthropicprov.New(),
		geminiprov.New(),
	}
	adapters = append(adapters, openaicompatprov.All()...)

	a.registry = providers.NewRegistry(providers.RegistryOptions{
		Timeout: a.cfg.Provider.Timeout,
		Breaker: a.cfg.Breaker(),
		Logger:  a.log,
		Metrics: a.prom,
	}, adapters...)

	static, err := catalog.NewStatic(a.cfg.Catalog, a.log)
	if err != nil {
		return err
	}
	a.catalog = static

	if _, ok := static.Resolve(a.baseCtx, a.cfg.ServiceName); !ok {
		a.log.Warn("no model available for service; analyses will be simulated",
			slog.String("service", a.cfg.ServiceName),
		)
	}

	a.log.Info("providers loaded",
		slog.Any("adapters", a.registry.Kinds()),
		slog.Int("models", len(a.cfg.Catalog.Models)),
	)
	return nil
}

// initServer wires the analysis pipeline, the health probes and the HTTP
// server.
func (a *App) initServer(_ context.Context) error {
	verifier, err := auth.NewHMACVerifier(a.cfg.Auth.JWTSecret, a.cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Service:         a.cfg.ServiceName,
		Resolver:        a.catalog,
		Dispatcher:      a.registry,
		Quota:           a.quota,
		Cache:           a.store,
		Usage:           a.recorder,
		SimulationDelay: a.cfg.SimulationDelay,
		Logger:          a.log,
		Metrics:         a.prom,
	}
	if a.limiter != nil {
		opts.RateLimiter = a.limiter
	}
	p, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	a.pipeline = p

	// ── Health probes ────────────────────────────────────────────────────────
	hopts := server.HealthOptions{
		Credentials: a.catalog.Credentials(),
		Prober:      a.registry.HealthCheck,
		Interval:    a.cfg.HealthProbeInterval,
		Metrics:     a.prom,
	}
	if a.cfg.Cache.Mode == "redis" {
		hopts.Cache = redisPinger(a.rdb)
	}
	if a.clickhouse != nil {
		hopts.UsageSink = clickhousePinger(a.clickhouse)
	}
	hc, err := server.NewHealthChecker(a.baseCtx, hopts)
	if err != nil {
		return err
	}
	a.health = hc

	srv, err := server.New(server.Options{
		Analyzer:    a.pipeline,
		Verifier:    verifier,
		Limits:      a.cfg.Limits(),
		Health:      a.health,
		Metrics:     a.prom,
		Logger:      a.log,
		CORSOrigins: a.cfg.CORSOrigins,
		Version:     a.version,
	})
	if err != nil {
		return err
	}
	a.srv = srv

	return nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw
	}
	if scheme := strings.Index(raw, "://"); scheme >= 0 && scheme < at {
		return raw[:scheme+3] + "***" + raw[at:]
	}
	return "***" + raw[at:]
}

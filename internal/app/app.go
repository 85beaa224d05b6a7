// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra: external connections (Redis, ClickHouse when configured)
//  2. initServices: metrics registry, result cache, quota, usage recorder
//  3. initProviders: provider registry and model catalog
//  4. initServer: analysis pipeline, health probes, HTTP routes
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/marco-2806/OtimizaAds/internal/cache"
	"github.com/marco-2806/OtimizaAds/internal/catalog"
	"github.com/marco-2806/OtimizaAds/internal/config"
	"github.com/marco-2806/OtimizaAds/internal/metrics"
	"github.com/marco-2806/OtimizaAds/internal/pipeline"
	"github.com/marco-2806/OtimizaAds/internal/providers"
	"github.com/marco-2806/OtimizaAds/internal/quota"
	"github.com/marco-2806/OtimizaAds/internal/server"
	"github.com/marco-2806/OtimizaAds/internal/usage"
)

const shutdownTimeout = 30 * time.Second

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections, nil when not configured.
	rdb        *redis.Client
	clickhouse *usage.ClickHouseSink

	prom     *metrics.Registry
	memCache *cache.MemoryCache
	store    *cache.Store
	quota    *quota.Checker
	limiter  *quota.RPMLimiter
	recorder *usage.Recorder

	registry *providers.Registry
	catalog  *catalog.Static

	pipeline *pipeline.Pipeline
	health   *server.HealthChecker
	srv      *server.Server

	closeOnce sync.Once
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"services", a.initServices},
		{"providers", a.initProviders},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails. In-flight requests are drained before it returns.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting funnel optimizer",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("service", a.cfg.ServiceName),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.Any("providers", a.registry.Kinds()),
		slog.Int("credentials", len(a.catalog.Credentials())),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.ListenAndServe(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown stops accepting connections and waits for in-flight requests,
// then releases everything else.
func (a *App) shutdown() {
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(shCtx); err != nil {
		a.log.Error("server shutdown error", slog.String("error", err.Error()))
	}
	a.Close()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.health != nil {
			a.health.Close()
		}
		// The recorder drains its queue into the sinks, so it closes before
		// the ClickHouse connection.
		if a.recorder != nil {
			if err := a.recorder.Close(); err != nil {
				a.log.Error("usage recorder close error", slog.String("error", err.Error()))
			}
		}
		if a.clickhouse != nil {
			if err := a.clickhouse.Close(); err != nil {
				a.log.Error("clickhouse close error", slog.String("error", err.Error()))
			}
		}
		if a.memCache != nil {
			a.memCache.Close()
		}
		if a.rdb != nil {
			if err := a.rdb.Close(); err != nil {
				a.log.Error("redis close error", slog.String("error", err.Error()))
			}
		}
	})
}

// ── Private helpers ──────────────────────────────────────────────────────────

// redisPinger returns a probe for the HealthChecker that reuses the
// existing client.
func redisPinger(rdb *redis.Client) server.Probe {
	return func(ctx context.Context) bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err() == nil
	}
}

// clickhousePinger adapts the sink's Ping to a HealthChecker probe.
func clickhousePinger(s *usage.ClickHouseSink) server.Probe {
	return func(ctx context.Context) bool {
		return s.Ping(ctx) == nil
	}
}

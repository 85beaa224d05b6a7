// Package server exposes the funnel analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/marco-2806/OtimizaAds/internal/auth"
	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/metrics"
	"github.com/marco-2806/OtimizaAds/internal/pipeline"
)

// Analysis routes. The first mirrors the hosted edge function path so
// existing clients can point at this service unchanged.
const (
	RouteEdgeFunction = "/functions/v1/funnel-optimizer"
	RouteAnalysis     = "/v1/funnel-analysis"
)

// Analyzer runs one analysis for an authenticated caller.
type Analyzer interface {
	Analyze(ctx context.Context, caller auth.Caller, req funnel.Request) (*pipeline.Outcome, error)
}

// Options configures a Server.
type Options struct {
	Analyzer    Analyzer
	Verifier    auth.Verifier
	Limits      funnel.Limits
	Health      *HealthChecker
	Metrics     *metrics.Registry
	Logger      *slog.Logger
	CORSOrigins []string
	Version     string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server owns the fasthttp server and the route table.
type Server struct {
	analyzer Analyzer
	verifier auth.Verifier
	limits   funnel.Limits
	health   *HealthChecker
	metrics  *metrics.Registry
	log      *slog.Logger
	cors     []string
	version  string

	srv *fasthttp.Server
}

func New(opts Options) (*Server, error) {
	if opts.Analyzer == nil {
		return nil, errors.New("server: analyzer is required")
	}
	if opts.Verifier == nil {
		return nil, errors.New("server: verifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		analyzer: opts.Analyzer,
		verifier: opts.Verifier,
		limits:   opts.Limits,
		health:   opts.Health,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		cors:     opts.CORSOrigins,
		version:  opts.Version,
	}
	s.srv = &fasthttp.Server{
		Handler:               s.Handler(),
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		MaxRequestBodySize:    1 << 20,
		NoDefaultServerHeader: true,
	}
	return s, nil
}

// Handler returns the full route table wrapped in the middleware chain.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.ANY(RouteEdgeFunction, s.handleAnalyze)
	r.ANY(RouteAnalysis, s.handleAnalyze)
	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)
	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(s.cors),
		securityHeaders,
	)
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	return s.srv.ListenAndServe(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	if s.health == nil {
		writeJSON(ctx, map[string]any{"status": "ok", "version": s.version})
		return
	}
	snap := s.health.Snapshot()
	snap.Version = s.version
	writeJSON(ctx, snap)
}

func (s *Server) handleReadiness(ctx *fasthttp.RequestCtx) {
	if s.health == nil || s.health.ReadinessOK() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}

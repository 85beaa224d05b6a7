package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/marco-2806/OtimizaAds/internal/auth"
	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/pipeline"
	"github.com/marco-2806/OtimizaAds/pkg/apierr"
)

const (
	xCacheHIT  = "HIT"
	xCacheMISS = "MISS"
)

// handleAnalyze serves the analysis routes: validate, authenticate, run
// the pipeline and write the result with its diagnostic headers.
func (s *Server) handleAnalyze(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := string(ctx.Path())
	reqBytes := len(ctx.PostBody())

	s.metrics.IncInFlight()
	defer func() {
		s.metrics.DecInFlight()
		s.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start), reqBytes)
	}()

	if !ctx.IsPost() {
		s.metrics.RecordRejection("method_not_allowed")
		apierr.WriteMethodNotAllowed(ctx, fasthttp.MethodPost)
		return
	}

	reqID, _ := ctx.UserValue("request_id").(string)

	req, err := funnel.ParseRequest(ctx.PostBody(), s.limits)
	if err != nil {
		s.metrics.RecordRejection("invalid_request")
		s.writeError(ctx, reqID, err)
		return
	}

	caller, err := s.authenticate(ctx)
	if err != nil {
		s.metrics.RecordRejection("unauthorized")
		s.writeError(ctx, reqID, err)
		return
	}

	out, err := s.analyze(ctx, caller, req)
	if err != nil {
		if isTerminal(err) {
			s.writeError(ctx, reqID, err)
			return
		}
		s.log.ErrorContext(ctx, "analysis_failed",
			slog.String("request_id", reqID),
			slog.String("user_id", caller.UserID),
			slog.String("error", err.Error()),
		)
		writeCritical(ctx, time.Since(start))
		return
	}

	h := &ctx.Response.Header
	if out.CacheHit {
		h.Set("X-Cache", xCacheHIT)
	} else {
		h.Set("X-Cache", xCacheMISS)
	}
	h.Set("X-Processing-Time", strconv.FormatInt(out.ProcessingTime.Milliseconds(), 10))
	h.Set("X-AI-Success", strconv.FormatBool(out.WasSuccessful))
	if out.Tier == pipeline.TierSimulation || out.Tier == pipeline.TierEmergency {
		h.Set("X-Fallback", string(out.Tier))
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(out.Body)
}

func (s *Server) authenticate(ctx *fasthttp.RequestCtx) (auth.Caller, error) {
	token, err := auth.ParseBearer(string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)))
	if err != nil {
		return auth.Caller{}, err
	}
	return s.verifier.Verify(ctx, token)
}

// analyze runs the pipeline and turns a panic into an error so the caller
// can answer with the critical result.
func (s *Server) analyze(ctx context.Context, caller auth.Caller, req funnel.Request) (out *pipeline.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "analysis_panic", slog.Any("panic", r))
			out, err = nil, errors.New("analysis panicked")
		}
	}()
	return s.analyzer.Analyze(ctx, caller, req)
}

// isTerminal reports whether err is a caller problem answered with an
// error status rather than a degraded result.
func isTerminal(err error) bool {
	var (
		ve *funnel.ValidationError
		ae *funnel.AuthError
		qe *funnel.QuotaExceededError
		rl *funnel.RateLimitedError
	)
	return errors.As(err, &ve) || errors.As(err, &ae) || errors.As(err, &qe) || errors.As(err, &rl)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, reqID string, err error) {
	var (
		ve *funnel.ValidationError
		ae *funnel.AuthError
		qe *funnel.QuotaExceededError
		rl *funnel.RateLimitedError
	)
	switch {
	case errors.As(err, &ve):
		apierr.Write(ctx, fasthttp.StatusBadRequest, ve.Error())
	case errors.As(err, &ae):
		s.log.InfoContext(ctx, "auth_rejected",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		apierr.Write(ctx, fasthttp.StatusUnauthorized, ae.Message)
	case errors.As(err, &qe):
		apierr.Write(ctx, fasthttp.StatusForbidden,
			"analysis limit reached for your plan, or your plan does not include this feature")
	case errors.As(err, &rl):
		apierr.WriteRateLimit(ctx)
	default:
		apierr.Write(ctx, fasthttp.StatusInternalServerError, "internal server error")
	}
}

// writeCritical answers 200 with the critical result after an unexpected
// failure, flagged with X-Error.
func writeCritical(ctx *fasthttp.RequestCtx, elapsed time.Duration) {
	body, _ := json.Marshal(funnel.CriticalResult())
	h := &ctx.Response.Header
	h.Set("X-Cache", xCacheMISS)
	h.Set("X-Processing-Time", strconv.FormatInt(elapsed.Milliseconds(), 10))
	h.Set("X-AI-Success", "false")
	h.Set("X-Fallback", "critical")
	h.Set("X-Error", "true")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

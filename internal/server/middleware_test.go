package server

import (
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

// --- recovery ---------------------------------------------------------------

func TestRecovery_NoPanic(t *testing.T) {
	handler := recovery(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200, got %d", ctx.Response.StatusCode())
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	handler := recovery(func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString("partial")
		panic("mock panic")
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("expected 500, got %d", ctx.Response.StatusCode())
	}
	if string(ctx.Response.Header.ContentType()) != "application/json" {
		t.Errorf("expected application/json, got %s", ctx.Response.Header.ContentType())
	}
	if body := string(ctx.Response.Body()); body != `{"error":"internal server error"}` {
		t.Errorf("unexpected body %s", body)
	}
}

// --- requestID --------------------------------------------------------------

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	handler := requestID(func(ctx *fasthttp.RequestCtx) {
		if id, _ := ctx.UserValue("request_id").(string); id == "" {
			t.Error("request_id should be generated")
		}
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if string(ctx.Response.Header.Peek("X-Request-ID")) == "" {
		t.Error("X-Request-ID response header should be set")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	handler := requestID(func(ctx *fasthttp.RequestCtx) {
		if id, _ := ctx.UserValue("request_id").(string); id != "custom-id-123" {
			t.Errorf("expected preserved ID, got %s", id)
		}
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "custom-id-123")
	handler(ctx)

	if got := string(ctx.Response.Header.Peek("X-Request-ID")); got != "custom-id-123" {
		t.Errorf("expected 'custom-id-123' in response, got %s", got)
	}
}

// --- timing -----------------------------------------------------------------

func TestTiming_SetsHeader(t *testing.T) {
	handler := timing(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if string(ctx.Response.Header.Peek("X-Response-Time")) == "" {
		t.Error("X-Response-Time header should be set")
	}
}

// --- securityHeaders --------------------------------------------------------

func TestSecurityHeaders_AllSet(t *testing.T) {
	handler := securityHeaders(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	expected := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "0",
		"Content-Security-Policy":   "default-src 'none'",
		"Referrer-Policy":           "no-referrer",
	}
	for header, want := range expected {
		if got := string(ctx.Response.Header.Peek(header)); got != want {
			t.Errorf("header %s: expected %q, got %q", header, want, got)
		}
	}
}

// --- corsHandler ------------------------------------------------------------

func runCORS(origins []string, method, origin string) *fasthttp.RequestCtx {
	handler := corsHandler(origins)(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("reached")
	})
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	if origin != "" {
		ctx.Request.Header.Set("Origin", origin)
	}
	handler(ctx)
	return ctx
}

func TestCORS_Wildcard(t *testing.T) {
	for _, origins := range [][]string{nil, {"*"}} {
		ctx := runCORS(origins, "POST", "https://anything.example")
		if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "*" {
			t.Errorf("origins %v: expected wildcard, got %q", origins, got)
		}
	}
}

func TestCORS_SpecificOrigins(t *testing.T) {
	origins := []string{"https://app.otimizaads.com", "https://admin.otimizaads.com"}

	ctx := runCORS(origins, "POST", "https://admin.otimizaads.com")
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "https://admin.otimizaads.com" {
		t.Errorf("expected listed origin echoed, got %q", got)
	}
	if got := string(ctx.Response.Header.Peek("Vary")); got != "Origin" {
		t.Errorf("expected Vary: Origin, got %q", got)
	}

	ctx = runCORS(origins, "POST", "https://evil.example")
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "https://app.otimizaads.com" {
		t.Errorf("expected first origin for unlisted caller, got %q", got)
	}
}

func TestCORS_PreflightReturns204(t *testing.T) {
	ctx := runCORS(nil, "OPTIONS", "")

	if ctx.Response.StatusCode() != fasthttp.StatusNoContent {
		t.Errorf("preflight should return 204, got %d", ctx.Response.StatusCode())
	}
	if len(ctx.Response.Body()) != 0 {
		t.Error("preflight should have empty body")
	}
}

func TestCORS_AllowedMethodsAndHeaders(t *testing.T) {
	ctx := runCORS(nil, "POST", "")

	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Methods")); got != "POST, GET, OPTIONS" {
		t.Errorf("unexpected allowed methods %q", got)
	}
	headers := string(ctx.Response.Header.Peek("Access-Control-Allow-Headers"))
	for _, h := range []string{"Authorization", "Content-Type", "apikey", "x-client-info"} {
		if !strings.Contains(headers, h) {
			t.Errorf("expected %s in allowed headers, got %q", h, headers)
		}
	}
	if string(ctx.Response.Body()) != "reached" {
		t.Error("non-preflight request should reach the handler")
	}
}

// --- applyMiddleware --------------------------------------------------------

func TestApplyMiddleware_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}

	h := applyMiddleware(func(ctx *fasthttp.RequestCtx) {
		order = append(order, "handler")
	}, mw("first"), mw("second"))
	h(&fasthttp.RequestCtx{})

	if got := strings.Join(order, ","); got != "first,second,handler" {
		t.Errorf("unexpected order %s", got)
	}
}

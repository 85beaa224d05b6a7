package apierr

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
)

func decode(t *testing.T, ctx *fasthttp.RequestCtx) Body {
	t.Helper()
	var b Body
	if err := json.Unmarshal(ctx.Response.Body(), &b); err != nil {
		t.Fatalf("invalid JSON body %q: %v", ctx.Response.Body(), err)
	}
	return b
}

func TestWrite(t *testing.T) {
	Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("BRT", -3*3600)) }
	t.Cleanup(func() { Now = time.Now })

	var ctx fasthttp.RequestCtx
	Write(&ctx, fasthttp.StatusBadRequest, "adText: is required")

	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Errorf("unexpected status %d", ctx.Response.StatusCode())
	}
	if string(ctx.Response.Header.ContentType()) != "application/json" {
		t.Errorf("unexpected content type %q", ctx.Response.Header.ContentType())
	}
	b := decode(t, &ctx)
	if b.Error != "adText: is required" || b.Timestamp != "2026-01-02T06:04:05Z" {
		t.Errorf("unexpected body %+v", b)
	}
}

func TestWriteMethodNotAllowed(t *testing.T) {
	var ctx fasthttp.RequestCtx
	WriteMethodNotAllowed(&ctx, fasthttp.MethodPost)
	if ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Errorf("unexpected status %d", ctx.Response.StatusCode())
	}
	if string(ctx.Response.Header.Peek("Allow")) != "POST" {
		t.Errorf("expected Allow: POST, got %q", ctx.Response.Header.Peek("Allow"))
	}
	if decode(t, &ctx).Error == "" {
		t.Error("expected an error message")
	}
}

func TestWriteRateLimit(t *testing.T) {
	var ctx fasthttp.RequestCtx
	WriteRateLimit(&ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusTooManyRequests {
		t.Errorf("unexpected status %d", ctx.Response.StatusCode())
	}
	if string(ctx.Response.Header.Peek("Retry-After")) != "60" {
		t.Error("expected Retry-After header")
	}
}

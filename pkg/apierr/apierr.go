// Package apierr writes the JSON error envelope returned by the analysis
// endpoints: {"error": "...", "timestamp": "<RFC3339>"}.
package apierr

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
)

// Body is the error envelope.
type Body struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Now is the clock used for timestamps.
var Now = time.Now

// Write writes message with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(Body{
		Error:     message,
		Timestamp: Now().UTC().Format(time.RFC3339),
	})
	ctx.SetBody(body)
}

// WriteMethodNotAllowed writes a 405 naming the accepted method.
func WriteMethodNotAllowed(ctx *fasthttp.RequestCtx, allowed string) {
	ctx.Response.Header.Set("Allow", allowed)
	Write(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed, use "+allowed)
}

// WriteRateLimit writes a 429 with a Retry-After hint.
func WriteRateLimit(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Retry-After", "60")
	Write(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
}

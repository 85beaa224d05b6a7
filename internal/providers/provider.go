// Package providers defines the adapter contract for AI completion providers
// and the dispatcher that calls exactly one of them per attempt.
//
// Each provider lives in its own sub-package (openai, anthropic, gemini) and
// implements Adapter. Credentials are supplied per call so a single adapter
// instance serves every configured account of its kind.
package providers

import (
	"context"
	"time"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
)

type (
	// Params are the sampling parameters of one completion call. Zero values
	// are left to the provider's own defaults, except MaxTokens which every
	// adapter requires.
	Params struct {
		Model            string
		Temperature      float64
		MaxTokens        int
		TopP             float64
		FrequencyPenalty float64
		PresencePenalty  float64
	}

	// Credential is the account used for one call. It never leaves the
	// process: it is not logged and not returned to callers.
	Credential struct {
		ProviderID   string
		Provider     string
		APIKey       string
		Endpoint     string
		Organization string
		Timeout      time.Duration
		Active       bool
	}

	// Completion is the normalized text answer of a provider.
	Completion struct {
		Text         string
		Model        string
		InputTokens  int
		OutputTokens int
	}
)

// Adapter formats a provider-specific request from a Prompt and calls the
// provider's completion endpoint once. Implementations must not retry.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, prompt funnel.Prompt, params Params, cred Credential) (*Completion, error)
	HealthCheck(ctx context.Context, cred Credential) error
}

// Supported provider kinds.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
)

// DefaultModels is the provider model used when a descriptor leaves it empty.
var DefaultModels = map[string]string{
	KindOpenAI:    "gpt-3.5-turbo",
	KindAnthropic: "claude-3-haiku-20240307",
	KindGemini:    "gemini-1.5-flash",
}

// Default dispatch and circuit breaker constants.
const (
	DefaultTimeout     = 45 * time.Second
	MinTimeout         = 30 * time.Second
	MaxTimeout         = 45 * time.Second
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048

	CBErrorThreshold  = 5
	CBTimeWindow      = 60 * time.Second
	CBHalfOpenTimeout = 30 * time.Second
)

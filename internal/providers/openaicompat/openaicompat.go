// Package openaicompat serves vendors that implement the OpenAI chat
// completions API (xAI, Groq, DeepSeek, Mistral, etc.) under their own
// provider kinds, so a catalog entry can name the vendor without spelling
// out its endpoint.
package openaicompat

import (
	"context"
	"errors"
	"sort"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/providers"
	"github.com/marco-2806/OtimizaAds/internal/providers/openai"
)

// Vendor is the default endpoint and model of one compatible vendor.
type Vendor struct {
	BaseURL string
	Model   string
}

// Vendors lists the built-in compatible vendors by provider kind.
var Vendors = map[string]Vendor{
	"xai":        {"https://api.x.ai/v1", "grok-2-latest"},
	"deepseek":   {"https://api.deepseek.com/v1", "deepseek-chat"},
	"groq":       {"https://api.groq.com/openai/v1", "llama-3.1-8b-instant"},
	"together":   {"https://api.together.xyz/v1", "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo"},
	"perplexity": {"https://api.perplexity.ai", "sonar"},
	"cerebras":   {"https://api.cerebras.ai/v1", "llama3.1-8b"},
	"mistral":    {"https://api.mistral.ai/v1", "mistral-small-latest"},
	"moonshot":   {"https://api.moonshot.cn/v1", "moonshot-v1-8k"},
	"qwen":       {"https://dashscope-intl.aliyuncs.com/compatible-mode/v1", "qwen-plus"},
}

// Adapter is the openai adapter bound to one vendor's endpoint and default
// model. Errors carry the vendor's kind rather than "openai".
type Adapter struct {
	name  string
	model string
	inner *openai.Adapter
}

// New returns an adapter for kind name at baseURL. model is used when a
// descriptor names none.
func New(name, baseURL, model string) *Adapter {
	return &Adapter{
		name:  name,
		model: model,
		inner: openai.New(openai.WithBaseURL(baseURL)),
	}
}

// All returns one adapter per entry of Vendors, sorted by kind.
func All() []providers.Adapter {
	names := make([]string, 0, len(Vendors))
	for n := range Vendors {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]providers.Adapter, 0, len(names))
	for _, n := range names {
		v := Vendors[n]
		out = append(out, New(n, v.BaseURL, v.Model))
	}
	return out
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) HealthCheck(ctx context.Context, cred providers.Credential) error {
	return a.relabel(a.inner.HealthCheck(ctx, cred))
}

func (a *Adapter) Complete(
	ctx context.Context,
	prompt funnel.Prompt,
	params providers.Params,
	cred providers.Credential,
) (*providers.Completion, error) {
	if params.Model == "" {
		params.Model = a.model
	}
	comp, err := a.inner.Complete(ctx, prompt, params, cred)
	if err != nil {
		return nil, a.relabel(err)
	}
	return comp, nil
}

func (a *Adapter) relabel(err error) error {
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		pe.Provider = a.name
	}
	return err
}

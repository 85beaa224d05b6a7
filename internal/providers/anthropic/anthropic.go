// Package anthropic implements the system+messages adapter.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/providers"
)

const (
	defaultBaseURL = "https://api.anthropic.com/"
	providerName   = providers.KindAnthropic
)

// Adapter implements providers.Adapter for Anthropic (official SDK).
type Adapter struct {
	baseURL string
	client  anthropic.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL sets the endpoint used when a credential has none.
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = url }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(a)
	}

	a.client = anthropic.NewClient(
		option.WithBaseURL(a.baseURL),
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(0),
	)
	return a
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) HealthCheck(ctx context.Context, cred providers.Credential) error {
	opts, err := requestOptions(cred)
	if err != nil {
		return err
	}
	_, err = a.client.Models.List(ctx, anthropic.ModelListParams{
		Limit: anthropic.Int(1),
	}, opts...)
	if err != nil {
		return fmt.Errorf("anthropic: health check: %w", toProviderError(err))
	}
	return nil
}

func (a *Adapter) Complete(
	ctx context.Context,
	prompt funnel.Prompt,
	params providers.Params,
	cred providers.Credential,
) (*providers.Completion, error) {
	opts, err := requestOptions(cred)
	if err != nil {
		return nil, err
	}

	msg, err := a.client.Messages.New(ctx, buildParams(prompt, params), opts...)
	if err != nil {
		return nil, toProviderError(err)
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		switch v := b.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case *anthropic.TextBlock:
			sb.WriteString(v.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, providers.EmptyCompletion(providerName)
	}

	return &providers.Completion{
		Text:         sb.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func buildParams(prompt funnel.Prompt, p providers.Params) anthropic.MessageNewParams {
	model := p.Model
	if model == "" {
		model = providers.DefaultModels[providerName]
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = providers.DefaultMaxTokens
	}

	out := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				{OfText: &anthropic.TextBlockParam{Text: prompt.User}},
			},
		}},
	}
	if prompt.System != "" {
		out.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}
	if p.Temperature > 0 {
		out.Temperature = anthropic.Float(p.Temperature)
	}
	if p.TopP > 0 {
		out.TopP = anthropic.Float(p.TopP)
	}
	return out
}

func requestOptions(cred providers.Credential) ([]option.RequestOption, error) {
	key := strings.TrimSpace(cred.APIKey)
	if key == "" {
		return nil, &providers.ProviderError{
			Provider: providerName,
			Message:  "no API key configured",
			Type:     "missing_credential",
		}
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cred.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cred.Endpoint))
	}
	return opts, nil
}

func toProviderError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &providers.ProviderError{
			Provider:   providerName,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
			Type:       "anthropic_error",
		}
	}
	return err
}

// Package openai implements the chat-completions adapter. It also serves
// OpenAI-compatible vendors when a credential carries an Endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1/"
	providerName   = providers.KindOpenAI
)

// Adapter implements providers.Adapter on top of the official SDK. The SDK
// client is shared; key, endpoint and organization come from each call's
// credential.
type Adapter struct {
	baseURL string
	client  openaiSDK.Client
}

type Option func(*Adapter)

// WithBaseURL sets the endpoint used when a credential has none.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = u }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(a)
	}

	// The dispatcher owns the deadline, so the HTTP client has none and the
	// SDK must not retry.
	a.client = openaiSDK.NewClient(
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
	if _, err := a.client.Models.List(ctx, opts...); err != nil {
		return fmt.Errorf("openai: health check: %w", toProviderError(err))
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

	resp, err := a.client.Chat.Completions.New(ctx, buildParams(prompt, params), opts...)
	if err != nil {
		return nil, toProviderError(err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	if strings.TrimSpace(text) == "" {
		return nil, providers.EmptyCompletion(providerName)
	}

	return &providers.Completion{
		Text:         text,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func buildParams(prompt funnel.Prompt, p providers.Params) openaiSDK.ChatCompletionNewParams {
	msgs := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		msgs = append(msgs, openaiSDK.SystemMessage(prompt.System))
	}
	msgs = append(msgs, openaiSDK.UserMessage(prompt.User))

	model := p.Model
	if model == "" {
		model = providers.DefaultModels[providerName]
	}

	out := openaiSDK.ChatCompletionNewParams{
		Messages: msgs,
		Model:    model,
	}
	if p.Temperature != 0 {
		out.Temperature = openaiSDK.Float(p.Temperature)
	}
	if p.MaxTokens > 0 {
		// max_tokens rather than max_completion_tokens: compatible vendors
		// only understand the former.
		out.MaxTokens = openaiSDK.Int(int64(p.MaxTokens))
	}
	if p.TopP != 0 {
		out.TopP = openaiSDK.Float(p.TopP)
	}
	if p.FrequencyPenalty != 0 {
		out.FrequencyPenalty = openaiSDK.Float(p.FrequencyPenalty)
	}
	if p.PresencePenalty != 0 {
		out.PresencePenalty = openaiSDK.Float(p.PresencePenalty)
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
	if cred.Organization != "" {
		opts = append(opts, option.WithOrganization(cred.Organization))
	}
	return opts, nil
}

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &providers.ProviderError{
			Provider:   providerName,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
			Type:       "openai_error",
		}
	}
	return err
}

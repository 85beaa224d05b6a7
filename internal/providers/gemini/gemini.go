// Package gemini implements the adapter for the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	providerName   = providers.KindGemini
)

// Adapter implements providers.Adapter on the official GenAI SDK. The SDK
// binds the API key to the client, so one client is kept per key and
// endpoint pair.
type Adapter struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL sets the endpoint used when a credential has none.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = u }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		clients:    make(map[string]*genai.Client),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) HealthCheck(ctx context.Context, cred providers.Credential) error {
	client, err := a.clientFor(ctx, cred)
	if err != nil {
		return err
	}
	if _, err := client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1}); err != nil {
		return fmt.Errorf("gemini: health check: %w", toProviderError(err))
	}
	return nil
}

func (a *Adapter) Complete(
	ctx context.Context,
	prompt funnel.Prompt,
	params providers.Params,
	cred providers.Credential,
) (*providers.Completion, error) {
	client, err := a.clientFor(ctx, cred)
	if err != nil {
		return nil, err
	}

	model := params.Model
	if model == "" {
		model = providers.DefaultModels[providerName]
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, model, contents, buildConfig(prompt, params))
	if err != nil {
		return nil, toProviderError(err)
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}
	if strings.TrimSpace(text) == "" {
		return nil, providers.EmptyCompletion(providerName)
	}

	var inTok, outTok int
	if resp.UsageMetadata != nil {
		inTok = int(resp.UsageMetadata.PromptTokenCount)
		outTok = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &providers.Completion{
		Text:         text,
		Model:        model,
		InputTokens:  inTok,
		OutputTokens: outTok,
	}, nil
}

// buildConfig returns nil when there is nothing to configure.
func buildConfig(prompt funnel.Prompt, p providers.Params) *genai.GenerateContentConfig {
	if prompt.System == "" && p.Temperature <= 0 && p.MaxTokens <= 0 && p.TopP <= 0 {
		return nil
	}

	cfg := &genai.GenerateContentConfig{}
	if prompt.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: prompt.System}},
		}
	}
	if p.Temperature > 0 {
		cfg.Temperature = genai.Ptr[float32](float32(p.Temperature))
	}
	if p.TopP > 0 {
		cfg.TopP = genai.Ptr[float32](float32(p.TopP))
	}
	if p.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxTokens)
	}
	return cfg
}

func (a *Adapter) clientFor(ctx context.Context, cred providers.Credential) (*genai.Client, error) {
	key := strings.TrimSpace(cred.APIKey)
	if key == "" {
		return nil, &providers.ProviderError{
			Provider: providerName,
			Message:  "no API key configured",
			Type:     "missing_credential",
		}
	}

	endpoint := cred.Endpoint
	if endpoint == "" {
		endpoint = a.baseURL
	}
	cacheKey := key + "|" + endpoint

	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[cacheKey]; ok {
		return c, nil
	}

	base, ver := splitBaseURLAndVersion(endpoint)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  a.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: base, APIVersion: ver},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	a.clients[cacheKey] = client
	return client, nil
}

// splitBaseURLAndVersion splits a trailing API version segment ("v1beta")
// off raw so the SDK can be given base URL and version separately.
func splitBaseURLAndVersion(raw string) (baseURL string, apiVersion string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		base := u.String()
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		return base, ""
	}

	parts := strings.Split(path, "/")
	if last := parts[len(parts)-1]; looksLikeAPIVersion(last) {
		apiVersion = last
		parts = parts[:len(parts)-1]
	}

	u.Path = "/" + strings.Join(parts, "/")
	if u.Path == "/" {
		u.Path = ""
	}

	baseURL = u.String()
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL, apiVersion
}

func looksLikeAPIVersion(s string) bool {
	if !strings.HasPrefix(s, "v") || len(s) < 2 {
		return false
	}
	return s[1] >= '0' && s[1] <= '9'
}

func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &providers.ProviderError{
			Provider:   providerName,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Type:       apiErr.Status,
		}
	}
	return err
}

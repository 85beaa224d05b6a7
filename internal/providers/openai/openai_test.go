package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/providers"
)

func testCredential(srv *httptest.Server) providers.Credential {
	return providers.Credential{
		ProviderID: "openai-main",
		Provider:   "openai",
		APIKey:     "mock-api-key",
		Endpoint:   srv.URL + "/v1",
		Active:     true,
	}
}

func testPrompt() funnel.Prompt {
	return funnel.Prompt{System: "You are a funnel analyst.", User: "ANÚNCIO: buy now"}
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []any{
			map[string]any{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
}

func TestAdapter_Name(t *testing.T) {
	if New().Name() != "openai" {
		t.Fatalf("expected 'openai', got %q", New().Name())
	}
}

func TestAdapter_Complete_Success(t *testing.T) {
	var captured map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer mock-api-key" {
			t.Errorf("missing or wrong Authorization header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody(`{"funnelCoherenceScore": 8}`))
	}))
	defer srv.Close()

	comp, err := New().Complete(context.Background(), testPrompt(), providers.Params{
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   2048,
	}, testCredential(srv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if comp.Text != `{"funnelCoherenceScore": 8}` {
		t.Errorf("unexpected text %q", comp.Text)
	}
	if comp.InputTokens != 10 || comp.OutputTokens != 5 {
		t.Errorf("unexpected usage %d/%d", comp.InputTokens, comp.OutputTokens)
	}

	if captured["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected model %v", captured["model"])
	}
	if captured["max_tokens"] != float64(2048) {
		t.Errorf("expected max_tokens=2048, got %v", captured["max_tokens"])
	}
	if captured["temperature"] != 0.7 {
		t.Errorf("expected temperature=0.7, got %v", captured["temperature"])
	}

	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	second, _ := msgs[1].(map[string]any)
	if first["role"] != "system" || second["role"] != "user" {
		t.Errorf("unexpected roles %v / %v", first["role"], second["role"])
	}
}

func TestAdapter_Complete_DefaultModel(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		model, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody("ok"))
	}))
	defer srv.Close()

	if _, err := New().Complete(context.Background(), testPrompt(), providers.Params{}, testCredential(srv)); err != nil {
		t.Fatal(err)
	}
	if model != "gpt-3.5-turbo" {
		t.Errorf("expected default model, got %q", model)
	}
}

func TestAdapter_Complete_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody(""))
	}))
	defer srv.Close()

	_, err := New().Complete(context.Background(), testPrompt(), providers.Params{}, testCredential(srv))
	var pe *providers.ProviderError
	if !errors.As(err, &pe) || pe.Type != "empty_response" {
		t.Fatalf("expected empty_response ProviderError, got %v", err)
	}
}

func TestAdapter_Complete_ErrorStatusNoRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Service unavailable", "type": "server_error"},
		})
	}))
	defer srv.Close()

	_, err := New().Complete(context.Background(), testPrompt(), providers.Params{}, testCredential(srv))

	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if pe.StatusCode != http.StatusServiceUnavailable || pe.HTTPStatus() != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", pe.StatusCode)
	}
	if pe.Provider != "openai" || pe.Type != "openai_error" {
		t.Errorf("unexpected error identity %+v", pe)
	}
	if hits.Load() != 1 {
		t.Errorf("expected exactly one attempt, got %d", hits.Load())
	}
}

func TestAdapter_Complete_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "Rate limit exceeded",
				"type":    "rate_limit_error",
				"code":    "rate_limit_exceeded",
			},
		})
	}))
	defer srv.Close()

	_, err := New().Complete(context.Background(), testPrompt(), providers.Params{}, testCredential(srv))

	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if pe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", pe.StatusCode)
	}
	if !strings.Contains(strings.ToLower(pe.Message), "rate limit") {
		t.Errorf("expected message to contain rate limit text, got %q", pe.Message)
	}
}

func TestAdapter_Complete_MissingKey(t *testing.T) {
	_, err := New().Complete(context.Background(), testPrompt(), providers.Params{}, providers.Credential{Provider: "openai"})
	var pe *providers.ProviderError
	if !errors.As(err, &pe) || pe.Type != "missing_credential" {
		t.Fatalf("expected missing_credential error, got %v", err)
	}
}

func TestAdapter_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	if err := New().HealthCheck(context.Background(), testCredential(srv)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

package providers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
	"github.com/marco-2806/OtimizaAds/internal/metrics"
)

// stubAdapter is a scripted Adapter used to exercise the dispatcher.
type stubAdapter struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, cred Credential) (*Completion, error)
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Complete(ctx context.Context, _ funnel.Prompt, _ Params, cred Credential) (*Completion, error) {
	s.calls.Add(1)
	return s.fn(ctx, cred)
}

func (s *stubAdapter) HealthCheck(context.Context, Credential) error { return nil }

func okAdapter(name, text string) *stubAdapter {
	return &stubAdapter{name: name, fn: func(context.Context, Credential) (*Completion, error) {
		return &Completion{Text: text, Model: "m"}, nil
	}}
}

var testPrompt = funnel.Prompt{System: "sys", User: "user"}

func TestRegistry_DispatchSuccess(t *testing.T) {
	a := okAdapter("openai", `{"ok":true}`)
	r := NewRegistry(RegistryOptions{Metrics: metrics.New()}, a)

	comp, err := r.Dispatch(context.Background(), testPrompt, Params{Model: "gpt"}, Credential{Provider: "OpenAI", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comp.Text != `{"ok":true}` {
		t.Errorf("unexpected text %q", comp.Text)
	}
	if a.calls.Load() != 1 {
		t.Errorf("expected exactly one call, got %d", a.calls.Load())
	}
}

func TestRegistry_UnsupportedProvider(t *testing.T) {
	r := NewRegistry(RegistryOptions{}, okAdapter("anthropic", "x"))

	_, err := r.Dispatch(context.Background(), testPrompt, Params{}, Credential{Provider: "cohere", APIKey: "k"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if ClassifyError(err) != "unsupported" {
		t.Errorf("unexpected class %q", ClassifyError(err))
	}
}

func TestRegistry_EndpointRoutesToOpenAICompatible(t *testing.T) {
	a := okAdapter("openai", "text")
	r := NewRegistry(RegistryOptions{}, a)

	_, err := r.Dispatch(context.Background(), testPrompt, Params{}, Credential{
		Provider: "groq",
		Endpoint: "https://api.groq.com/openai/v1",
		APIKey:   "k",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.calls.Load() != 1 {
		t.Fatal("expected the openai adapter to serve an endpoint-bearing credential")
	}
}

func TestRegistry_TimeoutIsDistinguishable(t *testing.T) {
	slow := &stubAdapter{name: "openai", fn: func(ctx context.Context, _ Credential) (*Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := NewRegistry(RegistryOptions{Timeout: 20 * time.Millisecond}, slow)

	start := time.Now()
	_, err := r.Dispatch(context.Background(), testPrompt, Params{}, Credential{Provider: "openai", APIKey: "k"})
	if time.Since(start) > 2*time.Second {
		t.Fatal("dispatch was not aborted at the deadline")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if !pe.Timeout || !IsTimeout(err) {
		t.Errorf("expected Timeout=true, got %+v", pe)
	}
	if ClassifyError(err) != "timeout" {
		t.Errorf("expected class timeout, got %q", ClassifyError(err))
	}
}

func TestRegistry_CredentialTimeoutOverrides(t *testing.T) {
	var deadline time.Duration
	a := &stubAdapter{name: "openai", fn: func(ctx context.Context, _ Credential) (*Completion, error) {
		d, _ := ctx.Deadline()
		deadline = time.Until(d)
		return &Completion{Text: "x"}, nil
	}}
	r := NewRegistry(RegistryOptions{Timeout: time.Hour}, a)

	if _, err := r.Dispatch(context.Background(), testPrompt, Params{}, Credential{Provider: "openai", Timeout: 5 * time.Second}); err != nil {
		t.Fatal(err)
	}
	if deadline <= 0 || deadline > 5*time.Second {
		t.Errorf("expected the credential timeout to apply, got %v", deadline)
	}
	if r.Timeout(Credential{}) != time.Hour {
		t.Errorf("expected registry timeout, got %v", r.Timeout(Credential{}))
	}
}

func TestRegistry_ErrorNormalization(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		text      string
		wantClass string
	}{
		{"status error", &ProviderError{StatusCode: 500, Message: "boom", Type: "openai_error"}, "", "http_500"},
		{"plain network error", errors.New("connection refused"), "", "network_error"},
		{"empty completion", nil, "   ", "empty_response"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &stubAdapter{name: "anthropic", fn: func(context.Context, Credential) (*Completion, error) {
				if tc.err != nil {
					return nil, tc.err
				}
				return &Completion{Text: tc.text}, nil
			}}
			r := NewRegistry(RegistryOptions{}, a)

			_, err := r.Dispatch(context.Background(), testPrompt, Params{}, Credential{Provider: "anthropic"})
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProviderError, got %T: %v", err, err)
			}
			if pe.Provider != "anthropic" {
				t.Errorf("expected provider to be filled in, got %q", pe.Provider)
			}
			if pe.Timeout {
				t.Error("non-deadline errors must not be marked as timeouts")
			}
			if got := ClassifyError(err); got != tc.wantClass {
				t.Errorf("class = %q, want %q", got, tc.wantClass)
			}
		})
	}
}

func TestRegistry_CircuitOpensAndSkipsCalls(t *testing.T) {
	failing := &stubAdapter{name: "openai", fn: func(context.Context, Credential) (*Completion, error) {
		return nil, &ProviderError{StatusCode: 503, Message: "down"}
	}}
	r := NewRegistry(RegistryOptions{Breaker: CBConfig{ErrorThreshold: 2}}, failing)
	cred := Credential{ProviderID: "primary-openai", Provider: "openai"}

	for i := 0; i < 2; i++ {
		_, _ = r.Dispatch(context.Background(), testPrompt, Params{}, cred)
	}
	if r.BreakerState("primary-openai") != "open" {
		t.Fatalf("expected open breaker, got %s", r.BreakerState("primary-openai"))
	}

	_, err := r.Dispatch(context.Background(), testPrompt, Params{}, cred)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if failing.calls.Load() != 2 {
		t.Errorf("open breaker must not call the adapter, calls=%d", failing.calls.Load())
	}
}

func TestRegistry_ClientErrorsDoNotTrip(t *testing.T) {
	a := &stubAdapter{name: "openai", fn: func(context.Context, Credential) (*Completion, error) {
		return nil, &ProviderError{StatusCode: 400, Message: "bad request"}
	}}
	r := NewRegistry(RegistryOptions{Breaker: CBConfig{ErrorThreshold: 1}}, a)

	for i := 0; i < 3; i++ {
		_, _ = r.Dispatch(context.Background(), testPrompt, Params{}, Credential{Provider: "openai"})
	}
	if r.BreakerState("openai") != "closed" {
		t.Errorf("400 responses must not open the breaker, got %s", r.BreakerState("openai"))
	}
}

func TestRegistry_CallerCancellationDoesNotTrip(t *testing.T) {
	a := &stubAdapter{name: "openai", fn: func(ctx context.Context, _ Credential) (*Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := NewRegistry(RegistryOptions{Breaker: CBConfig{ErrorThreshold: 1}}, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Dispatch(ctx, testPrompt, Params{}, Credential{Provider: "openai"})

	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Timeout {
		t.Fatalf("expected a non-timeout provider error, got %v", err)
	}
	if got := ClassifyError(err); got != "canceled" {
		t.Errorf("class = %q, want canceled", got)
	}
	if r.BreakerState("openai") != "closed" {
		t.Errorf("caller cancellation must not open the breaker, got %s", r.BreakerState("openai"))
	}
}

func TestRegistry_Kinds(t *testing.T) {
	r := NewRegistry(RegistryOptions{}, okAdapter("openai", "x"), okAdapter("Anthropic", "x"))
	kinds := r.Kinds()
	if len(kinds) != 2 || kinds[0] != "anthropic" || kinds[1] != "openai" {
		t.Errorf("unexpected kinds %v", kinds)
	}
}

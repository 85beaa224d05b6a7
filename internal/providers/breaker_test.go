package providers

import (
	"testing"
	"time"
)

// newTestBreaker returns a breaker driven by a manual clock.
func newTestBreaker(cfg CBConfig) (*CircuitBreaker, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(cfg)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func trip(cb *CircuitBreaker, provider string) {
	for i := 0; i < cb.cfg.errorThreshold(); i++ {
		cb.RecordFailure(provider)
	}
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(CBConfig{})
	if !cb.Allow("openai") {
		t.Error("closed breaker should allow calls")
	}
	if cb.StateLabel("never-seen") != "closed" {
		t.Error("unknown provider should default to closed")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(CBConfig{ErrorThreshold: 3})

	cb.RecordFailure("openai")
	cb.RecordFailure("openai")
	if cb.StateLabel("openai") != "closed" {
		t.Fatal("should remain closed before threshold")
	}

	cb.RecordFailure("openai")
	if cb.StateLabel("openai") != "open" {
		t.Fatalf("expected open, got %s", cb.StateLabel("openai"))
	}
	if cb.Allow("openai") {
		t.Error("open breaker should reject calls")
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(CBConfig{ErrorThreshold: 3})

	cb.RecordFailure("openai")
	cb.RecordFailure("openai")
	cb.RecordSuccess("openai")
	cb.RecordFailure("openai")
	cb.RecordFailure("openai")

	if cb.StateLabel("openai") != "closed" {
		t.Error("success should reset the error count")
	}
}

func TestCircuitBreaker_WindowReset(t *testing.T) {
	cb, now := newTestBreaker(CBConfig{ErrorThreshold: 2, TimeWindow: time.Minute})

	cb.RecordFailure("openai")
	*now = now.Add(time.Minute + time.Second)
	cb.RecordFailure("openai")

	if cb.StateLabel("openai") != "closed" {
		t.Error("failures outside the window should not accumulate")
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(CBConfig{})
	trip(cb, "anthropic")

	*now = now.Add(CBHalfOpenTimeout - time.Second)
	if cb.Allow("anthropic") {
		t.Fatal("should stay open before the half-open timeout")
	}

	*now = now.Add(2 * time.Second)
	if !cb.Allow("anthropic") {
		t.Fatal("should allow one probe after the half-open timeout")
	}
	if cb.StateLabel("anthropic") != "half_open" {
		t.Fatalf("expected half_open, got %s", cb.StateLabel("anthropic"))
	}
	if cb.Allow("anthropic") {
		t.Error("second call must be rejected while the probe is in flight")
	}
}

func TestCircuitBreaker_HalfOpenOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		cb, now := newTestBreaker(CBConfig{})
		trip(cb, "openai")
		*now = now.Add(CBHalfOpenTimeout)
		cb.Allow("openai")

		cb.RecordSuccess("openai")
		if cb.StateLabel("openai") != "closed" || !cb.Allow("openai") {
			t.Error("successful probe should close the breaker")
		}
	})

	t.Run("failure reopens", func(t *testing.T) {
		cb, now := newTestBreaker(CBConfig{ErrorThreshold: 3, TimeWindow: time.Second})
		trip(cb, "openai")
		*now = now.Add(CBHalfOpenTimeout)
		cb.Allow("openai")

		cb.RecordFailure("openai")
		if cb.StateLabel("openai") != "open" {
			t.Errorf("failed probe should reopen, got %s", cb.StateLabel("openai"))
		}
	})
}

func TestCircuitBreaker_IndependentProviders(t *testing.T) {
	cb, _ := newTestBreaker(CBConfig{})
	trip(cb, "openai")

	if cb.StateLabel("openai") != "open" {
		t.Error("openai should be open")
	}
	if !cb.Allow("anthropic") {
		t.Error("anthropic should still allow calls")
	}
}

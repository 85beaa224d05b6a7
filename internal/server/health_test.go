package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marco-2806/OtimizaAds/internal/providers"
)

func creds(ids ...string) []providers.Credential {
	out := make([]providers.Credential, 0, len(ids))
	for _, id := range ids {
		out = append(out, providers.Credential{ProviderID: id, Provider: "openai", APIKey: "k", Active: true})
	}
	return out
}

func proberFailing(ids ...string) ProviderProber {
	bad := make(map[string]bool, len(ids))
	for _, id := range ids {
		bad[id] = true
	}
	return func(_ context.Context, c providers.Credential) error {
		if bad[c.ProviderID] {
			return errors.New("health check failed")
		}
		return nil
	}
}

func up(context.Context) bool   { return true }
func down(context.Context) bool { return false }

func TestNewHealthChecker_NilContext(t *testing.T) {
	if _, err := NewHealthChecker(nil, HealthOptions{}); err == nil {
		t.Error("expected error for nil context")
	}
}

func TestHealthChecker_InitialProbe(t *testing.T) {
	hc, err := NewHealthChecker(context.Background(), HealthOptions{
		Credentials: creds("openai-main"),
		Prober:      proberFailing(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer hc.Close()

	if got := hc.Snapshot().Providers["openai-main"]; got != "ok" {
		t.Errorf("expected ok after initial probe, got %s", got)
	}
}

func TestSnapshot_AllHealthy(t *testing.T) {
	hc, _ := NewHealthChecker(context.Background(), HealthOptions{
		Credentials: creds("a", "b"),
		Prober:      proberFailing(),
		Cache:       up,
		UsageSink:   up,
	})
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.Status != "ok" || snap.Cache != "ok" || snap.UsageSink != "ok" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.UptimeSeconds < 0 {
		t.Error("uptime should be non-negative")
	}
	if !hc.ReadinessOK() {
		t.Error("expected ready")
	}
}

func TestSnapshot_DegradedProviderStaysReady(t *testing.T) {
	hc, _ := NewHealthChecker(context.Background(), HealthOptions{
		Credentials: creds("a", "b"),
		Prober:      proberFailing("b"),
	})
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.Status != "degraded" {
		t.Errorf("expected degraded, got %s", snap.Status)
	}
	if snap.Providers["a"] != "ok" || snap.Providers["b"] != "degraded" {
		t.Errorf("unexpected providers %v", snap.Providers)
	}
	if !hc.ReadinessOK() {
		t.Error("a degraded provider must not gate readiness")
	}
}

func TestSnapshot_CacheDown(t *testing.T) {
	hc, _ := NewHealthChecker(context.Background(), HealthOptions{Cache: down})
	defer hc.Close()

	if got := hc.Snapshot().Cache; got != "degraded" {
		t.Errorf("expected cache=degraded, got %s", got)
	}
	if hc.ReadinessOK() {
		t.Error("expected not ready with cache down")
	}
}

func TestSnapshot_UsageSinkDownIsNotFatal(t *testing.T) {
	hc, _ := NewHealthChecker(context.Background(), HealthOptions{UsageSink: down})
	defer hc.Close()

	snap := hc.Snapshot()
	if snap.UsageSink != "degraded" || snap.Status != "degraded" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if !hc.ReadinessOK() {
		t.Error("usage sink must not gate readiness")
	}
}

func TestHealthChecker_BackgroundProbeUpdates(t *testing.T) {
	var healthy atomic.Bool
	hc, _ := NewHealthChecker(context.Background(), HealthOptions{
		Cache:    func(context.Context) bool { return healthy.Load() },
		Interval: 10 * time.Millisecond,
	})
	defer hc.Close()

	if hc.ReadinessOK() {
		t.Fatal("expected not ready before recovery")
	}
	healthy.Store(true)

	deadline := time.Now().Add(2 * time.Second)
	for !hc.ReadinessOK() {
		if time.Now().After(deadline) {
			t.Fatal("background probe never observed recovery")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthChecker_CloseIdempotent(t *testing.T) {
	hc, _ := NewHealthChecker(context.Background(), HealthOptions{})
	hc.Close()
	hc.Close()
}

func TestHealthChecker_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hc, _ := NewHealthChecker(ctx, HealthOptions{Interval: time.Millisecond})
	cancel()

	done := make(chan struct{})
	go func() {
		hc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after context cancel")
	}
}

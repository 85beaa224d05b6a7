package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestChecker_Memory_EnforcesLimit(t *testing.T) {
	ctx := context.Background()
	c := NewChecker(NewMemoryCounter(), 2)

	for i := 0; i < 2; i++ {
		ok, err := c.CanUse(ctx, "u1", funnel.ServiceName)
		if err != nil || !ok {
			t.Fatalf("use %d: expected allowed, got %v, %v", i, ok, err)
		}
		if err := c.Increment(ctx, "u1", funnel.ServiceName); err != nil {
			t.Fatal(err)
		}
	}

	ok, err := c.CanUse(ctx, "u1", funnel.ServiceName)
	if err != nil || ok {
		t.Fatalf("expected quota exhausted, got %v, %v", ok, err)
	}

	// Other users and features are independent.
	if ok, _ := c.CanUse(ctx, "u2", funnel.ServiceName); !ok {
		t.Error("expected u2 to be allowed")
	}
	if ok, _ := c.CanUse(ctx, "u1", "other_feature"); !ok {
		t.Error("expected other feature to be allowed")
	}
}

func TestChecker_ZeroLimitIsUnlimited(t *testing.T) {
	ctx := context.Background()
	c := NewChecker(NewMemoryCounter(), 0)
	for i := 0; i < 5; i++ {
		_ = c.Increment(ctx, "u1", "f")
	}
	if ok, err := c.CanUse(ctx, "u1", "f"); !ok || err != nil {
		t.Fatalf("expected unlimited, got %v, %v", ok, err)
	}
	if n, _ := c.Used(ctx, "u1", "f"); n != 5 {
		t.Errorf("expected uses still counted, got %d", n)
	}
}

func TestChecker_MonthRollover(t *testing.T) {
	ctx := context.Background()
	counter := NewMemoryCounter()
	c := NewChecker(counter, 1)

	jan := time.Date(2026, time.January, 31, 23, 59, 0, 0, time.UTC)
	c.now = fixedNow(jan)
	counter.now = fixedNow(jan)
	_ = c.Increment(ctx, "u1", "f")
	if ok, _ := c.CanUse(ctx, "u1", "f"); ok {
		t.Fatal("expected January quota exhausted")
	}

	feb := jan.Add(2 * time.Minute)
	c.now = fixedNow(feb)
	counter.now = fixedNow(feb)
	if ok, _ := c.CanUse(ctx, "u1", "f"); !ok {
		t.Fatal("expected a fresh allowance in February")
	}
}

func TestPeriodEnd(t *testing.T) {
	cases := []struct{ in, want time.Time }{
		{time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := periodEnd(tc.in); !got.Equal(tc.want) {
			t.Errorf("periodEnd(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestChecker_Redis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	c := NewChecker(NewRedisCounter(rdb), 2)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	c.now = fixedNow(now)
	mr.SetTime(now)

	for i := 0; i < 2; i++ {
		if err := c.Increment(ctx, "u1", "f"); err != nil {
			t.Fatal(err)
		}
	}
	if ok, err := c.CanUse(ctx, "u1", "f"); ok || err != nil {
		t.Fatalf("expected exhausted, got %v, %v", ok, err)
	}

	key := "quota:f:u1:2026-05"
	if v, err := mr.Get(key); err != nil || v != "2" {
		t.Fatalf("expected counter 2 at %s, got %q, %v", key, v, err)
	}
	if mr.TTL(key) <= 0 {
		t.Errorf("expected counter to carry an expiry, got %v", mr.TTL(key))
	}
}

func TestChecker_Redis_FailsOpen(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewChecker(NewRedisCounter(rdb), 1)
	mr.Close()

	ok, err := c.CanUse(context.Background(), "u1", "f")
	if !ok {
		t.Fatal("expected a failing counter to allow the request")
	}
	var se *funnel.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *funnel.StorageError, got %T: %v", err, err)
	}
	if err := c.Increment(context.Background(), "u1", "f"); !errors.As(err, &se) {
		t.Fatalf("expected *funnel.StorageError from Increment, got %v", err)
	}
}

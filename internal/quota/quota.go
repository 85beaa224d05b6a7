// Package quota tracks how many analyses each user ran in the current
// calendar month and enforces a per-user allowance.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
)

// Counter stores the monthly counters.
type Counter interface {
	Get(ctx context.Context, key string) (int64, error)
	// Incr adds one to key and returns the new value. A new key expires at
	// expireAt.
	Incr(ctx context.Context, key string, expireAt time.Time) (int64, error)
}

// Checker answers whether a user may run a feature and records uses.
// A zero limit disables enforcement; uses are still counted.
type Checker struct {
	counter Counter
	limit   int64
	now     func() time.Time
}

func NewChecker(counter Counter, limit int64) *Checker {
	return &Checker{counter: counter, limit: limit, now: time.Now}
}

// Limit is the monthly allowance; 0 means unlimited.
func (c *Checker) Limit() int64 { return c.limit }

// CanUse reports whether userID has allowance left for feature this month.
// A counter failure allows the request and returns the error so the caller
// can log it.
func (c *Checker) CanUse(ctx context.Context, userID, feature string) (bool, error) {
	if c.limit <= 0 {
		return true, nil
	}
	used, err := c.counter.Get(ctx, c.key(userID, feature))
	if err != nil {
		return true, &funnel.StorageError{Op: "quota get", Err: err}
	}
	return used < c.limit, nil
}

// Increment records one use of feature by userID.
func (c *Checker) Increment(ctx context.Context, userID, feature string) error {
	now := c.now()
	if _, err := c.counter.Incr(ctx, c.keyAt(userID, feature, now), periodEnd(now)); err != nil {
		return &funnel.StorageError{Op: "quota incr", Err: err}
	}
	return nil
}

// Used returns the current month's count for userID.
func (c *Checker) Used(ctx context.Context, userID, feature string) (int64, error) {
	return c.counter.Get(ctx, c.key(userID, feature))
}

func (c *Checker) key(userID, feature string) string {
	return c.keyAt(userID, feature, c.now())
}

func (c *Checker) keyAt(userID, feature string, t time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", feature, userID, t.UTC().Format("2006-01"))
}

// periodEnd is the start of the next calendar month in UTC.
func periodEnd(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

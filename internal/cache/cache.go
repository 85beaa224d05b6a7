// Package cache stores computed analyses so identical requests are answered
// without a provider call.
//
// Backends implement the byte-level Cache interface:
//   - RedisCache: shared across replicas.
//   - MemoryCache: in-process TTL map for single-instance deployments.
//
// Store layers the analysis envelope (expiry timestamp, per-service
// enablement) on top of any backend.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-level key/value store with per-entry TTL.
// Get reports a miss for absent keys and for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

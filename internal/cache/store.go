package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTTL is how long a computed analysis stays servable.
const DefaultTTL = 24 * time.Hour

// envelope is the stored form of an analysis. Body holds the exact response
// bytes so a hit is byte-identical to the response that populated it.
type envelope struct {
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// StoreOptions configures a Store. Zero values use defaults.
type StoreOptions struct {
	TTL        time.Duration
	Exclusions *ExclusionList
	Logger     *slog.Logger
	Now        func() time.Time
}

// Store reads and writes analysis results on top of a Cache backend.
// A Store with a nil backend is disabled: every lookup misses and every
// save is a no-op.
type Store struct {
	backend    Cache
	ttl        time.Duration
	exclusions *ExclusionList
	log        *slog.Logger
	now        func() time.Time
}

func NewStore(backend Cache, opts StoreOptions) *Store {
	s := &Store{
		backend:    backend,
		ttl:        opts.TTL,
		exclusions: opts.Exclusions,
		log:        opts.Logger,
		now:        opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Enabled reports whether analyses for service are cached at all.
func (s *Store) Enabled(service string) bool {
	return s != nil && s.backend != nil && !s.exclusions.Excludes(service)
}

// TTL is the lifetime given to new entries.
func (s *Store) TTL() time.Duration { return s.ttl }

// Lookup returns the stored response body for key. Entries whose expiry is
// not after now, undecodable entries and backend failures all read as a
// miss. Expired entries are left for the backend TTL to remove.
func (s *Store) Lookup(ctx context.Context, key string) ([]byte, bool) {
	if s == nil || s.backend == nil {
		return nil, false
	}

	raw, ok := s.backend.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Body) == 0 {
		s.log.WarnContext(ctx, "cache_entry_corrupt", slog.String("key", key))
		return nil, false
	}
	if !env.ExpiresAt.After(s.now()) {
		return nil, false
	}
	return env.Body, true
}

// Save stores body under key with expiry now+TTL. Last write wins.
func (s *Store) Save(ctx context.Context, key string, body []byte) error {
	if s == nil || s.backend == nil {
		return nil
	}
	if !json.Valid(body) {
		return fmt.Errorf("cache: refusing to store invalid JSON under %s", key)
	}

	now := s.now()
	data, err := json.Marshal(envelope{
		Body:      body,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(s.ttl).UTC(),
	})
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	return s.backend.Set(ctx, key, data, s.ttl)
}

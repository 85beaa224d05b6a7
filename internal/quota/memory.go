package quota

import (
	"context"
	"sync"
	"time"
)

type memCounter struct {
	n        int64
	expireAt time.Time
}

// MemoryCounter is a process-local Counter.
type MemoryCounter struct {
	mu   sync.Mutex
	data map[string]memCounter
	now  func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{data: make(map[string]memCounter), now: time.Now}
}

func (c *MemoryCounter) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expireAt) {
		return 0, nil
	}
	return e.n, nil
}

func (c *MemoryCounter) Incr(_ context.Context, key string, expireAt time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expireAt) {
		e = memCounter{expireAt: expireAt}
	}
	e.n++
	c.data[key] = e
	return e.n, nil
}

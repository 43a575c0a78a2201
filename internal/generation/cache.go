package generation

import (
	"sync"
	"time"
)

type entry[T any] struct {
	val T
	exp time.Time
}

// ttlCache is a string-keyed cache whose entries expire after ttl. Expired
// entries are swept on each write.
type ttlCache[T any] struct {
	mu  sync.Mutex
	m   map[string]entry[T]
	ttl time.Duration
	now func() time.Time
}

func newTTLCache[T any](ttl time.Duration, now func() time.Time) *ttlCache[T] {
	return &ttlCache[T]{m: make(map[string]entry[T]), ttl: ttl, now: now}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	e, ok := c.m[key]
	c.mu.Unlock()
	if !ok || !c.now().Before(e.exp) {
		return zero, false
	}
	return e.val, true
}

func (c *ttlCache[T]) set(key string, v T) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.m {
		if !now.Before(e.exp) {
			delete(c.m, k)
		}
	}
	c.m[key] = entry[T]{val: v, exp: now.Add(c.ttl)}
}

func (c *ttlCache[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

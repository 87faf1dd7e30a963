package ttlstore

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// List is a typed expiring map of bounded ordered sequences. Every write is an
// activity signal: it re-arms the key's TTL. Reads never touch the TTL.
// When a sequence grows past the cap, the oldest elements are evicted first.
// Writes are serialized, so concurrent pushes to one key never lose elements.
type List[V any] struct {
	c   *gocache.Cache
	cap int
	mu  sync.Mutex // serializes the read-modify-write in Push against Set
}

// NewList creates a List with the given default TTL, sweep interval, and
// per-key element cap. The sweep interval is clamped to the TTL.
func NewList[V any](ttl, sweep time.Duration, cap int) *List[V] {
	if sweep <= 0 || sweep > ttl {
		sweep = ttl
	}
	if cap <= 0 {
		cap = 1
	}
	return &List[V]{c: gocache.New(ttl, sweep), cap: cap}
}

// Push appends a value to the sequence under key, evicting the oldest
// elements past the cap, and resets the key's TTL.
func (l *List[V]) Push(key string, v V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	vs, _ := l.Get(key)
	vs = append(vs, v)
	if len(vs) > l.cap {
		vs = vs[len(vs)-l.cap:]
	}
	l.c.Set(key, vs, gocache.DefaultExpiration)
}

// Set replaces the sequence under key, truncating to the cap while retaining
// the most recent elements, and resets the key's TTL.
func (l *List[V]) Set(key string, vs []V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(vs) > l.cap {
		vs = vs[len(vs)-l.cap:]
	}
	cp := make([]V, len(vs))
	copy(cp, vs)
	l.c.Set(key, cp, gocache.DefaultExpiration)
}

// Get returns a copy of the live sequence for key.
func (l *List[V]) Get(key string) ([]V, bool) {
	raw, ok := l.c.Get(key)
	if !ok {
		return nil, false
	}
	vs := raw.([]V)
	cp := make([]V, len(vs))
	copy(cp, vs)
	return cp, true
}

// Len returns the length of the live sequence for key, zero when absent.
func (l *List[V]) Len(key string) int {
	raw, ok := l.c.Get(key)
	if !ok {
		return 0
	}
	return len(raw.([]V))
}

// Delete removes the sequence under key.
func (l *List[V]) Delete(key string) {
	l.c.Delete(key)
}

// Clear removes all sequences.
func (l *List[V]) Clear() {
	l.c.Flush()
}

// Package ttlstore provides typed expiring key-value stores used for all
// ephemeral per-user session state: conversation history, pending reply
// bindings, and dedupe records. Entries vanish atomically once their TTL
// elapses; expiry is lazy on read plus a periodic background sweep.
package ttlstore

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is a typed single-value expiring map.
// Values are stored with "now + ttl" absolute expiry; a background janitor
// sweeps expired entries on a fixed interval, and reads treat expired entries
// as absent. The janitor goroutine does not keep the owning process alive.
type Store[V any] struct {
	c   *gocache.Cache
	ttl time.Duration
}

// New creates a Store with the given default TTL and sweep interval.
// The sweep interval is clamped so it never exceeds the TTL itself.
func New[V any](ttl, sweep time.Duration) *Store[V] {
	if sweep <= 0 || sweep > ttl {
		sweep = ttl
	}
	return &Store[V]{c: gocache.New(ttl, sweep), ttl: ttl}
}

// Set stores a value under key with the store's default TTL.
func (s *Store[V]) Set(key string, v V) {
	s.c.Set(key, v, gocache.DefaultExpiration)
}

// SetTTL stores a value with a custom TTL overriding the store default.
func (s *Store[V]) SetTTL(key string, v V, ttl time.Duration) {
	s.c.Set(key, v, ttl)
}

// Get returns the live value for key. Expired entries are treated as absent.
func (s *Store[V]) Get(key string) (V, bool) {
	raw, ok := s.c.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return raw.(V), true
}

// Has reports whether a live value exists for key.
func (s *Store[V]) Has(key string) bool {
	_, ok := s.c.Get(key)
	return ok
}

// Delete removes key. Removing an absent key is a no-op.
func (s *Store[V]) Delete(key string) {
	s.c.Delete(key)
}

// Clear removes all entries.
func (s *Store[V]) Clear() {
	s.c.Flush()
}

// Size sweeps expired entries and returns the live entry count.
func (s *Store[V]) Size() int {
	s.c.DeleteExpired()
	return s.c.ItemCount()
}

// Keys returns the keys of all live entries, in no particular order.
func (s *Store[V]) Keys() []string {
	items := s.c.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

// Refresh re-arms the default TTL for key without changing its value.
// Absent or expired keys are left untouched.
func (s *Store[V]) Refresh(key string) bool {
	raw, ok := s.c.Get(key)
	if !ok {
		return false
	}
	s.c.Set(key, raw, gocache.DefaultExpiration)
	return true
}

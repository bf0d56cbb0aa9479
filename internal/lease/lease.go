// Package lease tracks how long exported buffers have been held by the
// embedder so that holders past their deadline can be reclaimed.
package lease

import (
	"sort"
	"time"
)

// Tracker records an expiry per key. A Tracker with a zero TTL is disabled:
// Acquire is a no-op and nothing ever expires.
//
// Tracker is not safe for concurrent use; it lives on the broker loop.
type Tracker[K comparable] struct {
	ttl     time.Duration
	now     func() time.Time
	expires map[K]time.Time
}

// New creates a tracker granting leases of ttl.
func New[K comparable](ttl time.Duration) *Tracker[K] {
	return &Tracker[K]{ttl: ttl, now: time.Now, expires: make(map[K]time.Time)}
}

// Enabled reports whether leases are enforced.
func (t *Tracker[K]) Enabled() bool {
	return t != nil && t.ttl > 0
}

// TTL returns the lease duration.
func (t *Tracker[K]) TTL() time.Duration {
	if t == nil {
		return 0
	}
	return t.ttl
}

// Acquire starts or renews the lease for k.
func (t *Tracker[K]) Acquire(k K) {
	if !t.Enabled() {
		return
	}
	t.expires[k] = t.now().Add(t.ttl)
}

// Release ends the lease for k. Releasing an unknown key is a no-op.
func (t *Tracker[K]) Release(k K) {
	if t == nil {
		return
	}
	delete(t.expires, k)
}

// Held reports whether k currently holds a lease.
func (t *Tracker[K]) Held(k K) bool {
	if t == nil {
		return false
	}
	_, ok := t.expires[k]
	return ok
}

// Len returns the number of outstanding leases.
func (t *Tracker[K]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.expires)
}

// Expired removes and returns every key whose lease ended at or before now,
// oldest first.
func (t *Tracker[K]) Expired(now time.Time) []K {
	if !t.Enabled() || len(t.expires) == 0 {
		return nil
	}
	type entry struct {
		key K
		at  time.Time
	}
	var out []entry
	for k, at := range t.expires {
		if !at.After(now) {
			out = append(out, entry{k, at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	keys := make([]K, len(out))
	for i, e := range out {
		delete(t.expires, e.key)
		keys[i] = e.key
	}
	return keys
}

package ratelimit

import (
	"cmp"
	"time"

	"github.com/google/btree"
)

// DefaultOrderLifetime is how long an order is remembered for penalty
// scoring. Orders older than this carry no edit or cancel penalty.
const DefaultOrderLifetime = 300 * time.Second

type ttlEntry[K cmp.Ordered] struct {
	key       K
	createdAt time.Time
	expiresAt time.Time
}

func ttlLess[K cmp.Ordered](a, b ttlEntry[K]) bool {
	if !a.expiresAt.Equal(b.expiresAt) {
		return a.expiresAt.Before(b.expiresAt)
	}
	return cmp.Less(a.key, b.key)
}

// TTLCache maps keys to creation times that expire a fixed lifetime after
// creation. Entries are kept in a map for lookups and in a btree ordered by
// (expiry, key) so every operation can drop the expired prefix first.
//
// A TTLCache is not safe for concurrent use.
type TTLCache[K cmp.Ordered] struct {
	lifetime time.Duration
	clock    Clock
	entries  map[K]ttlEntry[K]
	expiries *btree.BTreeG[ttlEntry[K]]
}

// NewTTLCache returns an empty cache whose entries live for lifetime.
// A nil clock means the wall clock.
func NewTTLCache[K cmp.Ordered](lifetime time.Duration, clock Clock) *TTLCache[K] {
	if clock == nil {
		clock = SystemClock
	}
	return &TTLCache[K]{
		lifetime: lifetime,
		clock:    clock,
		entries:  make(map[K]ttlEntry[K]),
		expiries: btree.NewG(8, ttlLess[K]),
	}
}

// Insert records key as created at createdAt, replacing any previous entry.
func (c *TTLCache[K]) Insert(key K, createdAt time.Time) {
	c.InsertWithLifetime(key, createdAt, c.lifetime)
}

// InsertWithLifetime is Insert with a per-entry lifetime.
func (c *TTLCache[K]) InsertWithLifetime(key K, createdAt time.Time, lifetime time.Duration) {
	c.purge()
	if old, ok := c.entries[key]; ok {
		c.expiries.Delete(old)
	}
	entry := ttlEntry[K]{
		key:       key,
		createdAt: createdAt,
		expiresAt: createdAt.Add(lifetime),
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return
	}
	c.entries[key] = entry
	c.expiries.ReplaceOrInsert(entry)
}

// Get returns the creation time of key if it has not expired.
func (c *TTLCache[K]) Get(key K) (time.Time, bool) {
	c.purge()
	entry, ok := c.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return entry.createdAt, true
}

// Contains reports whether key is present and unexpired.
func (c *TTLCache[K]) Contains(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Remove deletes key and reports whether it was present.
func (c *TTLCache[K]) Remove(key K) bool {
	c.purge()
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.expiries.Delete(entry)
	return true
}

// Len returns the number of unexpired entries.
func (c *TTLCache[K]) Len() int {
	c.purge()
	return len(c.entries)
}

// purge drops every entry whose expiry is not after now.
func (c *TTLCache[K]) purge() {
	now := c.clock.Now()
	for {
		oldest, ok := c.expiries.Min()
		if !ok || now.Before(oldest.expiresAt) {
			return
		}
		c.expiries.DeleteMin()
		delete(c.entries, oldest.key)
	}
}

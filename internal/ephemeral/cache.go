// Package ephemeral provides a short-lived, byte-bounded response cache keyed
// by request fingerprint.
package ephemeral

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Defaults applied when Options leave a field zero.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultMaxBytes = 10 * 1024 * 1024
)

// pressureFraction is the share of entries dropped, oldest first, when
// removing expired entries does not free enough room.
const pressureFraction = 0.3

// Options configures a Cache.
type Options struct {
	TTL      time.Duration
	MaxBytes int64
	Clock    clockwork.Clock
	Metrics  *observability.Metrics
}

// Cache is a TTL cache with a hard ceiling on total key and value bytes.
// Expiry is checked lazily on read.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	size     int64
	seq      uint64
	ttl      time.Duration
	maxBytes int64
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

type entry struct {
	key      string
	value    []byte
	storedAt time.Time
	ttl      time.Duration
	size     int64
	seq      uint64 // write order, breaks storedAt ties
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	return &Cache{
		entries:  make(map[string]*entry),
		ttl:      opts.TTL,
		maxBytes: opts.MaxBytes,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}
}

// Get returns the value for key if present and no older than its TTL.
// Expired entries are evicted on the way out.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.EphemeralCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	if c.expired(e, c.clock.Now()) {
		c.removeLocked(e)
		c.metrics.EphemeralCache.WithLabelValues("expired").Inc()
		c.metrics.EphemeralEvictions.WithLabelValues("expired").Inc()
		return nil, false
	}
	c.metrics.EphemeralCache.WithLabelValues("hit").Inc()
	return e.value, true
}

// Set stores value under key. A ttl of zero uses the cache default. It
// returns false when the entry alone exceeds the byte ceiling.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	size := int64(len(key) + len(value))
	if size > c.maxBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}
	if c.size+size > c.maxBytes {
		c.makeRoomLocked(size)
	}

	c.seq++
	c.entries[key] = &entry{
		key:      key,
		seq:      c.seq,
		value:    value,
		storedAt: c.clock.Now(),
		ttl:      ttl,
		size:     size,
	}
	c.size += size
	c.metrics.EphemeralBytes.Set(float64(c.size))
	return true
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.size = 0
	c.metrics.EphemeralBytes.Set(0)
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the bytes currently held.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// makeRoomLocked frees space for an incoming entry of need bytes: expired
// entries first, then the oldest 30% by write time, then oldest one at a
// time until the entry fits.
func (c *Cache) makeRoomLocked(need int64) {
	now := c.clock.Now()
	for _, e := range c.entries {
		if c.expired(e, now) {
			c.removeLocked(e)
			c.metrics.EphemeralEvictions.WithLabelValues("expired").Inc()
		}
	}
	if c.size+need <= c.maxBytes {
		return
	}

	oldest := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		oldest = append(oldest, e)
	}
	sort.Slice(oldest, func(i, j int) bool {
		if oldest[i].storedAt.Equal(oldest[j].storedAt) {
			return oldest[i].seq < oldest[j].seq
		}
		return oldest[i].storedAt.Before(oldest[j].storedAt)
	})

	drop := int(math.Ceil(float64(len(oldest)) * pressureFraction))
	for i, e := range oldest {
		if i >= drop && c.size+need <= c.maxBytes {
			break
		}
		c.removeLocked(e)
		c.metrics.EphemeralEvictions.WithLabelValues("pressure").Inc()
	}
}

func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.size -= e.size
	c.metrics.EphemeralBytes.Set(float64(c.size))
}

package pricing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is the validity window for cached prices.
const DefaultTTL = 5 * time.Minute

// DurableStore is the persistent tier of the cache. Implemented by
// clientdata.Repository; nil disables the durable tier.
type DurableStore interface {
	Store(key string, value interface{}, ttl time.Duration) error
	GetIfFresh(key string, out interface{}) (bool, error)
	Clear() error
}

// cacheEntry is what both tiers hold: the record plus the time it was cached.
// StoredAt travels with the payload so a durable hit promoted to memory keeps
// its original age.
type cacheEntry struct {
	Record   Record    `msgpack:"record"`
	StoredAt time.Time `msgpack:"stored_at"`
}

// Cache is a two-tier price cache: an in-process map backed by a durable
// store. Entries older than the TTL are treated as absent in both tiers.
// Durable-tier I/O failures degrade to cache misses and are never surfaced;
// the rest of the system does not depend on the cache surviving.
//
// The cache is process-wide and shared across user sessions. That is safe
// because keys are instrument identities only - prices are public market data
// with no per-user variance.
type Cache struct {
	ttl     time.Duration
	durable DurableStore
	log     zerolog.Logger
	now     func() time.Time

	mu  sync.RWMutex
	mem map[string]cacheEntry
}

// NewCache creates a price cache. durable may be nil, in which case only the
// memory tier is used.
func NewCache(durable DurableStore, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		durable: durable,
		log:     log.With().Str("component", "price_cache").Logger(),
		now:     time.Now,
		mem:     make(map[string]cacheEntry),
	}
}

// Get returns the cached record for key if it is still fresh. The memory tier
// is checked first; a fresh durable hit is promoted into memory.
func (c *Cache) Get(key string) (Record, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()
	if ok && c.fresh(entry, now) {
		return entry.Record, true
	}

	if c.durable == nil {
		return Record{}, false
	}

	var stored cacheEntry
	found, err := c.durable.GetIfFresh(key, &stored)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Durable cache read failed, treating as miss")
		return Record{}, false
	}
	if !found || !c.fresh(stored, now) {
		return Record{}, false
	}

	// Promote to memory tier, keeping the original stored-at time.
	c.mu.Lock()
	c.mem[key] = stored
	c.mu.Unlock()

	return stored.Record, true
}

// Set writes the record through to both tiers, stamped with the current time.
func (c *Cache) Set(key string, record Record) {
	entry := cacheEntry{Record: record, StoredAt: c.now()}

	c.mu.Lock()
	c.mem[key] = entry
	c.mu.Unlock()

	if c.durable == nil {
		return
	}
	if err := c.durable.Store(key, entry, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Durable cache write failed")
	}
}

// Clear empties the memory tier and deletes all durable entries in this
// cache's namespace.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.mem = make(map[string]cacheEntry)
	c.mu.Unlock()

	if c.durable == nil {
		return
	}
	if err := c.durable.Clear(); err != nil {
		c.log.Warn().Err(err).Msg("Durable cache clear failed")
	}
}

func (c *Cache) fresh(e cacheEntry, now time.Time) bool {
	return now.Sub(e.StoredAt) < c.ttl
}

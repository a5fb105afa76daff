package pricing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/retry"
)

// Fetcher is implemented by each upstream price provider. Providers normalize
// their upstream response shape into a Record and raise *ProviderError (or
// *UnsupportedInstrumentError) on failure.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (Record, error)
}

// Router dispatches an instrument to the provider registered for its class.
// Lookups are cache-first: a fresh cache hit never touches the network, the
// retry policy, or a provider.
type Router struct {
	cache     *Cache
	policy    retry.Policy
	providers map[Class]Fetcher
	log       zerolog.Logger
}

// NewRouter creates a router over the given cache and retry policy.
func NewRouter(cache *Cache, policy retry.Policy, log zerolog.Logger) *Router {
	return &Router{
		cache:     cache,
		policy:    policy,
		providers: make(map[Class]Fetcher),
		log:       log.With().Str("component", "price_router").Logger(),
	}
}

// Register binds a provider to an instrument class.
func (r *Router) Register(class Class, provider Fetcher) {
	r.providers[class] = provider
}

// FetchPrice returns the current price record for an instrument identity.
// On a cache miss the registered provider is invoked through the retry
// policy; a successful fetch is written back to the cache. Provider errors
// after retry exhaustion propagate to the caller unchanged.
func (r *Router) FetchPrice(ctx context.Context, symbol string, class Class) (Record, error) {
	provider, ok := r.providers[class]
	if !ok {
		return Record{}, fmt.Errorf("no price provider registered for class %q", class)
	}

	key := CacheKey(symbol, class)
	if record, hit := r.cache.Get(key); hit {
		r.log.Debug().Str("key", key).Float64("price", record.Price).Msg("Cache hit")
		return record, nil
	}

	record, err := retry.Do(ctx, r.policy, func(ctx context.Context) (Record, error) {
		return provider.Fetch(ctx, symbol)
	})
	if err != nil {
		return Record{}, err
	}

	r.cache.Set(key, record)

	r.log.Debug().
		Str("key", key).
		Float64("price", record.Price).
		Msg("Fetched price")

	return record, nil
}

// ClearCache empties both cache tiers. Exposed for the maintenance surface.
func (r *Router) ClearCache() {
	r.cache.Clear()
}

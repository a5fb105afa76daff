package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestegg-io/nestegg/internal/retry"
)

type stubFetcher struct {
	record Record
	err    error
	calls  int
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) (Record, error) {
	s.calls++
	if s.err != nil {
		return Record{}, s.err
	}
	return s.record, nil
}

func noSleepPolicy() retry.Policy {
	p := retry.DefaultPolicy(zerolog.Nop())
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestRouterFetchStoresInCache(t *testing.T) {
	cache := NewCache(nil, DefaultTTL, zerolog.Nop())
	router := NewRouter(cache, noSleepPolicy(), zerolog.Nop())

	provider := &stubFetcher{record: testRecord("AAPL", 187.44)}
	router.Register(ClassEquity, provider)

	record, err := router.FetchPrice(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)
	assert.Equal(t, 187.44, record.Price)
	assert.Equal(t, 1, provider.calls)

	cached, hit := cache.Get(CacheKey("AAPL", ClassEquity))
	require.True(t, hit)
	assert.Equal(t, record, cached)
}

func TestRouterCacheHitSkipsProvider(t *testing.T) {
	cache := NewCache(nil, DefaultTTL, zerolog.Nop())
	router := NewRouter(cache, noSleepPolicy(), zerolog.Nop())

	provider := &stubFetcher{record: testRecord("BTC", 64123.5)}
	router.Register(ClassCrypto, provider)

	_, err := router.FetchPrice(context.Background(), "btc", ClassCrypto)
	require.NoError(t, err)
	_, err = router.FetchPrice(context.Background(), "BTC", ClassCrypto)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls, "second lookup must be served from cache")
}

func TestRouterUnregisteredClass(t *testing.T) {
	cache := NewCache(nil, DefaultTTL, zerolog.Nop())
	router := NewRouter(cache, noSleepPolicy(), zerolog.Nop())

	_, err := router.FetchPrice(context.Background(), "AAPL", ClassEquity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no price provider registered")
}

func TestRouterProviderErrorPropagatesUnchanged(t *testing.T) {
	cache := NewCache(nil, DefaultTTL, zerolog.Nop())
	router := NewRouter(cache, noSleepPolicy(), zerolog.Nop())

	provErr := &ProviderError{Provider: "yahoo", StatusCode: 500, Message: "boom"}
	provider := &stubFetcher{err: provErr}
	router.Register(ClassEquity, provider)

	_, err := router.FetchPrice(context.Background(), "AAPL", ClassEquity)
	require.Error(t, err)
	assert.Same(t, error(provErr), err)
	assert.Equal(t, retry.DefaultMaxAttempts, provider.calls)

	// Nothing cached on failure.
	_, hit := cache.Get(CacheKey("AAPL", ClassEquity))
	assert.False(t, hit)
}

func TestRouterUnsupportedInstrumentNotRetried(t *testing.T) {
	cache := NewCache(nil, DefaultTTL, zerolog.Nop())
	router := NewRouter(cache, noSleepPolicy(), zerolog.Nop())

	provider := &stubFetcher{err: &UnsupportedInstrumentError{Symbol: "NOTACOIN", Class: ClassCrypto}}
	router.Register(ClassCrypto, provider)

	_, err := router.FetchPrice(context.Background(), "NOTACOIN", ClassCrypto)
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestRouterClearCache(t *testing.T) {
	cache := NewCache(nil, DefaultTTL, zerolog.Nop())
	router := NewRouter(cache, noSleepPolicy(), zerolog.Nop())

	provider := &stubFetcher{record: testRecord("AAPL", 187.44)}
	router.Register(ClassEquity, provider)

	_, err := router.FetchPrice(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)

	router.ClearCache()

	_, err = router.FetchPrice(context.Background(), "AAPL", ClassEquity)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

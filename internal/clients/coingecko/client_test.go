package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestegg-io/nestegg/internal/pricing"
)

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":64123.5}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	record, err := client.Fetch(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", record.Symbol)
	assert.Equal(t, 64123.5, record.Price)
	assert.False(t, record.ObservedAt.IsZero())
}

func TestFetchUnmappedSymbolNoNetworkCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	_, err := client.Fetch(context.Background(), "NOTACOIN")
	require.Error(t, err)

	var unsupported *pricing.UnsupportedInstrumentError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "NOTACOIN", unsupported.Symbol)
	assert.False(t, unsupported.Retryable())
	assert.False(t, called, "unmapped symbols must fail before any network call")
}

func TestFetchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	_, err := client.Fetch(context.Background(), "ETH")
	require.Error(t, err)

	var provErr *pricing.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.True(t, provErr.RateLimited)
	assert.True(t, provErr.IsRateLimited())
}

func TestFetchMissingPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	_, err := client.Fetch(context.Background(), "SOL")
	require.Error(t, err)

	var provErr *pricing.ProviderError
	require.True(t, errors.As(err, &provErr))
}

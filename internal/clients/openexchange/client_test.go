package openexchange

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

func TestFetchInvertsUpstreamRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest.json", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("base"))
		assert.Equal(t, "EUR", r.URL.Query().Get("symbols"))
		assert.Equal(t, "test-app-id", r.URL.Query().Get("app_id"))
		_, _ = w.Write([]byte(`{"base":"USD","rates":{"EUR":0.92}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, "test-app-id", zerolog.Nop())

	record, err := client.Fetch(context.Background(), "eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", record.Symbol)
	// Upstream says 0.92 EUR per USD; we want USD per EUR.
	assert.InDelta(t, 1/0.92, record.Price, 1e-9)
}

func TestFetchUSDShortCircuit(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, "test-app-id", zerolog.Nop())

	record, err := client.Fetch(context.Background(), "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", record.Symbol)
	assert.Equal(t, 1.0, record.Price)
	assert.False(t, called, "USD must never hit the network")
}

func TestFetchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, "test-app-id", zerolog.Nop())

	_, err := client.Fetch(context.Background(), "EUR")
	require.Error(t, err)

	var provErr *pricing.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.True(t, provErr.RateLimited)
}

func TestFetchRateNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base":"USD","rates":{}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, "test-app-id", zerolog.Nop())

	_, err := client.Fetch(context.Background(), "XXX")
	require.Error(t, err)

	var provErr *pricing.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.False(t, provErr.RateLimited)
}

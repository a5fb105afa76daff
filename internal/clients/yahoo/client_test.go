package yahoo

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
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":187.44,"regularMarketTime":1717171717}}],"error":null}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	record, err := client.Fetch(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", record.Symbol)
	assert.Equal(t, 187.44, record.Price)
	assert.Equal(t, int64(1717171717), record.ObservedAt.Unix())
}

func TestFetchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	_, err := client.Fetch(context.Background(), "AAPL")
	require.Error(t, err)

	var provErr *pricing.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.True(t, provErr.RateLimited)
	assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
}

func TestFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	_, err := client.Fetch(context.Background(), "AAPL")
	require.Error(t, err)

	var provErr *pricing.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.False(t, provErr.RateLimited)
	assert.Equal(t, http.StatusInternalServerError, provErr.StatusCode)
}

func TestFetchNoResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	_, err := client.Fetch(context.Background(), "NOPE")
	require.Error(t, err)

	var provErr *pricing.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.False(t, provErr.RateLimited)
}

func TestFetchNetworkError(t *testing.T) {
	// Point at a closed server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClientWithBaseURL(server.URL, zerolog.Nop())

	_, err := client.Fetch(context.Background(), "AAPL")
	require.Error(t, err)

	var provErr *pricing.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Zero(t, provErr.StatusCode)
}

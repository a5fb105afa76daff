// Package yahoo provides the equity and fund price provider, backed by the
// Yahoo Finance chart endpoint.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/pricing"
)

const providerName = "yahoo"

// Client is a Yahoo Finance chart API client.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://query1.finance.yahoo.com",
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", providerName).Logger(),
	}
}

// NewClientWithBaseURL creates a client pointed at a custom endpoint (tests).
func NewClientWithBaseURL(baseURL string, log zerolog.Logger) *Client {
	c := NewClient(log)
	c.baseURL = baseURL
	return c
}

// chartResponse is the subset of the chart API response we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// Fetch returns the regular market price for a stock or fund symbol.
func (c *Client) Fetch(ctx context.Context, symbol string) (pricing.Record, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return pricing.Record{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "nestegg/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("request failed for %s", symbol),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pricing.Record{}, &pricing.ProviderError{
			Provider:    providerName,
			StatusCode:  resp.StatusCode,
			Message:     fmt.Sprintf("quote request for %s failed", symbol),
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("failed to parse response for %s", symbol),
			Err:      err,
		}
	}

	if result.Chart.Error != nil {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("upstream error for %s: %v", symbol, result.Chart.Error),
		}
	}

	if len(result.Chart.Result) == 0 {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("no quote data returned for %s", symbol),
		}
	}

	meta := result.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("no valid market price for %s", symbol),
		}
	}

	observedAt := time.Now()
	if meta.RegularMarketTime > 0 {
		observedAt = time.Unix(meta.RegularMarketTime, 0)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Float64("price", meta.RegularMarketPrice).
		Msg("Fetched quote")

	return pricing.Record{
		Symbol:     symbol,
		Price:      meta.RegularMarketPrice,
		ObservedAt: observedAt,
	}, nil
}

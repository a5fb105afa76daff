// Package openexchange provides the fiat exchange-rate provider, backed by
// openexchangerates.org.
//
// The upstream quotes "units of foreign currency per 1 USD". The provider
// inverts that rate so the returned record is USD per one unit of the foreign
// currency, matching the valuation model of every other instrument class.
package openexchange

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

const (
	providerName = "openexchangerates"
	baseCurrency = "USD"
)

// Client is an openexchangerates.org client.
type Client struct {
	baseURL string
	appID   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new exchange-rate client.
func NewClient(appID string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://openexchangerates.org/api",
		appID:   appID,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", providerName).Logger(),
	}
}

// NewClientWithBaseURL creates a client pointed at a custom endpoint (tests).
func NewClientWithBaseURL(baseURL, appID string, log zerolog.Logger) *Client {
	c := NewClient(appID, log)
	c.baseURL = baseURL
	return c
}

// Fetch returns the USD value of one unit of the given currency.
// USD itself short-circuits to exactly 1 without a network call.
func (c *Client) Fetch(ctx context.Context, currency string) (pricing.Record, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	if currency == baseCurrency {
		return pricing.Record{Symbol: baseCurrency, Price: 1, ObservedAt: time.Now()}, nil
	}

	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("base", baseCurrency)
	params.Set("symbols", currency)
	reqURL := fmt.Sprintf("%s/latest.json?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return pricing.Record{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("request failed for %s", currency),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pricing.Record{}, &pricing.ProviderError{
			Provider:    providerName,
			StatusCode:  resp.StatusCode,
			Message:     fmt.Sprintf("rate request for %s failed", currency),
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	var result struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("failed to parse response for %s", currency),
			Err:      err,
		}
	}

	rate, ok := result.Rates[currency]
	if !ok || rate <= 0 {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("rate not found for %s", currency),
		}
	}

	// Upstream rate is <currency> per 1 USD; invert to USD per unit.
	price := 1 / rate

	c.log.Debug().
		Str("currency", currency).
		Float64("upstream_rate", rate).
		Float64("price", price).
		Msg("Fetched rate")

	return pricing.Record{
		Symbol:     currency,
		Price:      price,
		ObservedAt: time.Now(),
	}, nil
}

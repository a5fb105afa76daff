// Package coingecko provides the crypto price provider, backed by the
// CoinGecko simple-price endpoint.
package coingecko

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

const providerName = "coingecko"

// symbolToID maps common crypto ticker symbols to CoinGecko identifiers.
// Symbols outside this table are rejected before any network call.
var symbolToID = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDT": "tether",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"XRP":  "ripple",
	"USDC": "usd-coin",
	"ADA":  "cardano",
	"AVAX": "avalanche-2",
	"DOGE": "dogecoin",
}

// Client is a CoinGecko API client.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new CoinGecko client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://api.coingecko.com",
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

// Fetch returns the USD price for a crypto symbol.
func (c *Client) Fetch(ctx context.Context, symbol string) (pricing.Record, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	coinID, ok := symbolToID[symbol]
	if !ok {
		return pricing.Record{}, &pricing.UnsupportedInstrumentError{
			Symbol: symbol,
			Class:  pricing.ClassCrypto,
		}
	}

	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")
	reqURL := fmt.Sprintf("%s/api/v3/simple/price?%s", c.baseURL, params.Encode())

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
			Message:     fmt.Sprintf("price request for %s failed", symbol),
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	// Response shape: {"bitcoin": {"usd": 50000.12}}
	var result map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("failed to parse response for %s", symbol),
			Err:      err,
		}
	}

	price, ok := result[coinID]["usd"]
	if !ok || price <= 0 {
		return pricing.Record{}, &pricing.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("no USD price returned for %s (%s)", symbol, coinID),
		}
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("coin_id", coinID).
		Float64("price", price).
		Msg("Fetched price")

	return pricing.Record{
		Symbol:     symbol,
		Price:      price,
		ObservedAt: time.Now(),
	}, nil
}

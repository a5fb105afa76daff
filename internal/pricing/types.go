// Package pricing defines the common price model, the two-tier price cache,
// and the router that dispatches instruments to their upstream providers.
package pricing

import (
	"fmt"
	"strings"
	"time"
)

// Class identifies the kind of instrument a symbol refers to. Together with
// the symbol it forms the instrument identity used for cache keys and
// provider dispatch.
type Class string

const (
	ClassEquity Class = "equity"
	ClassFund   Class = "fund"
	ClassCrypto Class = "crypto"
	ClassFiat   Class = "fiat"
)

// ParseClass normalizes a user-supplied instrument class string.
func ParseClass(s string) (Class, error) {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case ClassEquity:
		return ClassEquity, nil
	case ClassFund:
		return ClassFund, nil
	case ClassCrypto:
		return ClassCrypto, nil
	case ClassFiat:
		return ClassFiat, nil
	default:
		return "", fmt.Errorf("unknown instrument class: %q", s)
	}
}

// Valid reports whether c is one of the known instrument classes.
func (c Class) Valid() bool {
	switch c {
	case ClassEquity, ClassFund, ClassCrypto, ClassFiat:
		return true
	}
	return false
}

// Record is a normalized price snapshot for one instrument.
// Price is always expressed as USD per one unit of the instrument - for fiat
// this is the USD value of one unit of the foreign currency, so valuation
// arithmetic is uniform across instrument classes.
type Record struct {
	Symbol     string    `json:"symbol" msgpack:"symbol"`
	Price      float64   `json:"price" msgpack:"price"`
	ObservedAt time.Time `json:"observedAt" msgpack:"observed_at"`
}

// CacheKey derives the cache key for an instrument identity. Two lookups for
// the same identity always produce the same key regardless of input casing:
// the class tag is lowercased and the symbol uppercased (e.g. "crypto:BTC").
func CacheKey(symbol string, class Class) string {
	return strings.ToLower(string(class)) + ":" + strings.ToUpper(strings.TrimSpace(symbol))
}

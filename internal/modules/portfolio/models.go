// Package portfolio owns the authoritative position list for the active user,
// its derived valuation aggregates, and the local-first synchronization of
// every mutation to durable storage.
package portfolio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nestegg-io/nestegg/internal/pricing"
)

// ErrPositionNotFound is returned when an operation addresses a position id
// that is not in the ledger.
var ErrPositionNotFound = errors.New("position not found")

// ErrSuperseded is returned when an update's price fetch resolves after a
// newer mutation has already landed on the same position. The stale result is
// discarded and nothing is applied.
var ErrSuperseded = errors.New("update superseded by a newer mutation")

// ValidationError rejects a request before any network or storage call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SyncError records a durable-store failure that did not block the local
// mutation. The position list already reflects the change; only the remote
// copy is behind.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s applied locally, not yet synced: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Position is one holding of the active user.
//
// CurrentPrice keeps its last known-good value across failed refreshes; it is
// never reset on error. SyncPending marks a position whose latest local
// mutation has not reached durable storage.
type Position struct {
	ID           string        `json:"id"`
	Symbol       string        `json:"symbol"`
	Name         string        `json:"name"`
	Class        pricing.Class `json:"class"`
	Quantity     float64       `json:"quantity"`
	BuyPrice     float64       `json:"buyPrice"`
	CurrentPrice float64       `json:"currentPrice"`
	LastUpdated  time.Time     `json:"lastUpdated"`
	Currency     string        `json:"currency,omitempty"`
	Description  string        `json:"description,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	SyncPending  bool          `json:"syncPending,omitempty"`
}

// Value returns quantity x current price for this position.
func (p Position) Value() float64 {
	v, _ := decimal.NewFromFloat(p.Quantity).
		Mul(decimal.NewFromFloat(p.CurrentPrice)).
		Float64()
	return v
}

// GainLoss returns quantity x (current price - cost basis).
func (p Position) GainLoss() float64 {
	v, _ := decimal.NewFromFloat(p.Quantity).
		Mul(decimal.NewFromFloat(p.CurrentPrice).Sub(decimal.NewFromFloat(p.BuyPrice))).
		Float64()
	return v
}

// Summary is the derived valuation over the current position list. It is
// recomputed wholesale after every successful mutation, never incrementally.
type Summary struct {
	PositionCount int     `json:"positionCount"`
	TotalValue    float64 `json:"totalValue"`
	TotalGainLoss float64 `json:"totalGainLoss"`
}

// fiatDisplayName derives the display name for a fiat position, e.g.
// "2500 EUR". Trailing zeros are trimmed so 2500.00 reads as 2500.
func fiatDisplayName(quantity float64, currency string) string {
	qty := strconv.FormatFloat(quantity, 'f', -1, 64)
	return qty + " " + strings.ToUpper(currency)
}

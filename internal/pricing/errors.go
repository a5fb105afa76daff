package pricing

import "fmt"

// ProviderError is raised by a price provider when the upstream fetch fails.
// StatusCode is zero when the failure happened below HTTP (network, parse).
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RateLimited bool
	Err         error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether the upstream signalled quota exhaustion.
// The retry policy keys exponential backoff off this.
func (e *ProviderError) IsRateLimited() bool {
	return e.RateLimited
}

// UnsupportedInstrumentError is raised when a symbol cannot be resolved to a
// known upstream identifier. It is never retried.
type UnsupportedInstrumentError struct {
	Symbol string
	Class  Class
}

func (e *UnsupportedInstrumentError) Error() string {
	return fmt.Sprintf("unsupported %s instrument: %s", e.Class, e.Symbol)
}

// Retryable reports false: retrying cannot make an unknown symbol known.
func (e *UnsupportedInstrumentError) Retryable() bool {
	return false
}

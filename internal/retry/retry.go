// Package retry provides retry-with-backoff for asynchronous operations.
//
// The policy is transport-agnostic: it knows nothing about instruments or
// upstream APIs, only how to classify an error by its shape. Errors that
// report IsRateLimited() true get exponential backoff; everything else gets
// linear backoff. Errors that report Retryable() false abort immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the total number of attempts, including the first.
	DefaultMaxAttempts = 4
	// DefaultBaseDelay is the unit delay both backoff curves scale from.
	DefaultBaseDelay = time.Second
)

// rateLimited is implemented by errors signalling upstream quota exhaustion.
type rateLimited interface {
	IsRateLimited() bool
}

// permanent is implemented by errors that retrying cannot fix
// (e.g. an unsupported instrument symbol).
type permanent interface {
	Retryable() bool
}

// Policy configures retry behaviour.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Log         zerolog.Logger

	// Sleep is overridable in tests. When nil, a context-aware sleep is used.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns a policy with the standard attempt count and delays.
func DefaultPolicy(log zerolog.Logger) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Log:         log.With().Str("component", "retry").Logger(),
	}
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return p.BaseDelay
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Delay returns the backoff delay after a failure on the given zero-based
// attempt index. Rate-limited failures back off exponentially
// (base << attempt), everything else linearly (base * (attempt+1)).
func (p Policy) Delay(attempt int, err error) time.Duration {
	base := p.baseDelay()
	var rl rateLimited
	if errors.As(err, &rl) && rl.IsRateLimited() {
		return base << uint(attempt)
	}
	return base * time.Duration(attempt+1)
}

// Do executes op, retrying on failure up to the policy's attempt budget.
// The last error is returned unchanged when attempts are exhausted.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.maxAttempts()
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Permanent failures are not worth another attempt.
		var perm permanent
		if errors.As(err, &perm) && !perm.Retryable() {
			return zero, err
		}

		if attempt == attempts-1 {
			break
		}

		delay := p.Delay(attempt, err)
		p.Log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Operation failed, retrying")

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			// Context cancelled mid-backoff: surface the operation's error,
			// it is the one the caller can act on.
			return zero, lastErr
		}
	}

	return zero, lastErr
}

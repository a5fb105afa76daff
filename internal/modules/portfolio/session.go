package portfolio

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// SessionManager hands out the ledger for the active user. One user session
// is active at a time: switching users discards the previous ledger and
// loads a fresh one from durable storage.
type SessionManager struct {
	store    DurableStore
	prices   PriceSource
	notifier Notifier
	log      zerolog.Logger

	mu     sync.Mutex
	active *Ledger
}

// NewSessionManager creates a session manager. notifier may be nil.
func NewSessionManager(store DurableStore, prices PriceSource, notifier Notifier, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		store:    store,
		prices:   prices,
		notifier: notifier,
		log:      log.With().Str("service", "session").Logger(),
	}
}

// Ledger returns the ledger for userID, creating and loading it if the user
// differs from the active session. A first-load failure still yields a usable
// (empty) ledger; the load error is surfaced to the caller and recorded as
// the ledger's current error.
func (m *SessionManager) Ledger(ctx context.Context, userID string) (*Ledger, error) {
	m.mu.Lock()
	if m.active != nil && m.active.UserID() == userID {
		ledger := m.active
		m.mu.Unlock()
		return ledger, nil
	}

	if m.active != nil {
		m.log.Info().
			Str("previous_user", m.active.UserID()).
			Str("user_id", userID).
			Msg("User changed, discarding previous session")
	}

	ledger := NewLedger(userID, m.store, m.prices, m.notifier, m.log)
	m.active = ledger
	m.mu.Unlock()

	err := ledger.LoadPositions(ctx)
	return ledger, err
}

// Active returns the current session's ledger, or nil if none.
func (m *SessionManager) Active() *Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// End discards the active session, if any.
func (m *SessionManager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.log.Info().Str("user_id", m.active.UserID()).Msg("Session ended")
		m.active = nil
	}
}

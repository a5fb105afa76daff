package notify

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TokenRepository stores one push token per user.
type TokenRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(db *sql.DB, log zerolog.Logger) *TokenRepository {
	return &TokenRepository{
		db:  db,
		log: log.With().Str("repo", "push_token").Logger(),
	}
}

// Save records the user's current device token, replacing any previous one.
func (r *TokenRepository) Save(userID, token string) error {
	_, err := r.db.Exec(`INSERT OR REPLACE INTO push_tokens (user_id, token, updated_at)
		VALUES (?, ?, ?)`, userID, token, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save push token: %w", err)
	}
	return nil
}

// Get returns the user's token, or found=false if none is registered.
func (r *TokenRepository) Get(userID string) (token string, found bool, err error) {
	row := r.db.QueryRow(`SELECT token FROM push_tokens WHERE user_id = ?`, userID)
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get push token: %w", err)
	}
	return token, true, nil
}

// Delete removes the user's token. Removing an absent token is a no-op.
func (r *TokenRepository) Delete(userID string) error {
	_, err := r.db.Exec(`DELETE FROM push_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}

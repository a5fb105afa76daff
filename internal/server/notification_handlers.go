package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/notify"
)

// TokenHandlers manages push-token registration.
type TokenHandlers struct {
	tokens *notify.TokenRepository
	log    zerolog.Logger
}

// NewTokenHandlers creates the push-token handlers.
func NewTokenHandlers(tokens *notify.TokenRepository, log zerolog.Logger) *TokenHandlers {
	return &TokenHandlers{
		tokens: tokens,
		log:    log.With().Str("handler", "push_token").Logger(),
	}
}

func tokenUser(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "local"
}

// HandleRegister stores the caller's device token.
func (h *TokenHandlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		http.Error(w, `{"error":"token is required"}`, http.StatusBadRequest)
		return
	}

	if err := h.tokens.Save(tokenUser(r), req.Token); err != nil {
		h.log.Error().Err(err).Msg("Failed to save push token")
		http.Error(w, `{"error":"failed to save token"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnregister removes the caller's device token.
func (h *TokenHandlers) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Delete(tokenUser(r)); err != nil {
		h.log.Error().Err(err).Msg("Failed to delete push token")
		http.Error(w, `{"error":"failed to delete token"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Package handlers provides HTTP handlers for generated portfolio insights.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/modules/insights"
	"github.com/nestegg-io/nestegg/internal/modules/portfolio"
)

// Handler handles insight HTTP requests.
type Handler struct {
	service  *insights.Service
	sessions *portfolio.SessionManager
	log      zerolog.Logger
}

// NewHandler creates a new insights handler.
func NewHandler(service *insights.Service, sessions *portfolio.SessionManager, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		log:      log.With().Str("handler", "insights").Logger(),
	}
}

// Routes mounts the insight endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/summary", h.insight(h.service.PortfolioSummary))
	r.Get("/risk", h.insight(h.service.RiskProfile))
	r.Get("/rebalancing", h.insight(h.service.RebalancingSuggestions))
	r.Get("/trends", h.insight(h.service.MarketTrends))
	r.Get("/ideas", h.insight(h.service.InvestmentIdeas))
}

func (h *Handler) insight(generate func(context.Context, []portfolio.Position) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get("X-User-ID")
		if user == "" {
			user = "local"
		}

		ledger, err := h.sessions.Ledger(r.Context(), user)
		if err != nil {
			h.log.Warn().Err(err).Msg("Position load failed")
		}

		text := generate(r.Context(), ledger.Positions())

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"insight": text}); err != nil {
			h.log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

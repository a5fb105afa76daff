// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/modules/portfolio"
	"github.com/nestegg-io/nestegg/internal/pricing"
)

// defaultUser is used when the client does not identify itself. The app is
// single-user per running session; the header exists for device separation.
const defaultUser = "local"

// Handler handles portfolio HTTP requests.
type Handler struct {
	sessions *portfolio.SessionManager
	log      zerolog.Logger
}

// NewHandler creates a new portfolio handler.
func NewHandler(sessions *portfolio.SessionManager, log zerolog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		log:      log.With().Str("handler", "portfolio").Logger(),
	}
}

// Routes mounts the portfolio endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/positions", h.HandleListPositions)
	r.Post("/positions", h.HandleAddPosition)
	r.Patch("/positions/{id}", h.HandleUpdatePosition)
	r.Delete("/positions/{id}", h.HandleRemovePosition)
	r.Post("/refresh", h.HandleRefreshPrices)
	r.Get("/summary", h.HandleGetSummary)
}

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUser
}

type addPositionRequest struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Class       string  `json:"class"`
	Quantity    float64 `json:"quantity"`
	BuyPrice    float64 `json:"buyPrice"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
}

type updatePositionRequest struct {
	Symbol      *string  `json:"symbol"`
	Name        *string  `json:"name"`
	Class       *string  `json:"class"`
	Quantity    *float64 `json:"quantity"`
	BuyPrice    *float64 `json:"buyPrice"`
	Currency    *string  `json:"currency"`
	Description *string  `json:"description"`
}

// HandleListPositions returns the current position list with aggregates.
func (h *Handler) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.sessions.Ledger(r.Context(), userID(r))
	if err != nil {
		// A load failure still yields a usable empty ledger; report both.
		h.log.Warn().Err(err).Msg("Position load failed")
	}

	response := map[string]interface{}{
		"positions": ledger.Positions(),
		"summary":   ledger.Summary(),
	}
	if lastErr := ledger.LastError(); lastErr != nil {
		response["error"] = lastErr.Error()
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleAddPosition creates a new position.
func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req addPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	class, err := pricing.ParseClass(req.Class)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ledger, _ := h.sessions.Ledger(r.Context(), userID(r))
	pos, err := ledger.AddPosition(r.Context(), portfolio.AddRequest{
		Symbol:      req.Symbol,
		Name:        req.Name,
		Class:       class,
		Quantity:    req.Quantity,
		BuyPrice:    req.BuyPrice,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, pos)
}

// HandleUpdatePosition applies a partial update to one position.
func (h *Handler) HandleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req updatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := portfolio.UpdateRequest{
		Symbol:      req.Symbol,
		Name:        req.Name,
		Quantity:    req.Quantity,
		BuyPrice:    req.BuyPrice,
		Currency:    req.Currency,
		Description: req.Description,
	}
	if req.Class != nil {
		class, err := pricing.ParseClass(*req.Class)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		update.Class = &class
	}

	ledger, _ := h.sessions.Ledger(r.Context(), userID(r))
	pos, err := ledger.UpdatePosition(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pos)
}

// HandleRemovePosition deletes one position.
func (h *Handler) HandleRemovePosition(w http.ResponseWriter, r *http.Request) {
	ledger, _ := h.sessions.Ledger(r.Context(), userID(r))
	if err := ledger.RemovePosition(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefreshPrices refreshes every position's price and returns the new
// aggregates.
func (h *Handler) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	ledger, _ := h.sessions.Ledger(r.Context(), userID(r))
	// Per-position fetch failures are absorbed into the ledger's last error;
	// the refresh pass itself cannot fail.
	_ = ledger.RefreshAllPrices(r.Context())

	response := map[string]interface{}{
		"positions": ledger.Positions(),
		"summary":   ledger.Summary(),
	}
	if lastErr := ledger.LastError(); lastErr != nil {
		response["error"] = lastErr.Error()
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetSummary returns the portfolio aggregates.
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	ledger, _ := h.sessions.Ledger(r.Context(), userID(r))
	h.writeJSON(w, http.StatusOK, ledger.Summary())
}

// writeLedgerError maps ledger errors onto HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	var valErr *portfolio.ValidationError
	var unsupported *pricing.UnsupportedInstrumentError
	var provErr *pricing.ProviderError

	switch {
	case errors.As(err, &valErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, portfolio.ErrPositionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, portfolio.ErrSuperseded):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unsupported):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &provErr):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

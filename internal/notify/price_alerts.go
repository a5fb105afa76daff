package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/modules/portfolio"
)

// Sender is the outbound push transport. Implemented by Client.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TokenStore resolves a user to their registered device token.
// Implemented by TokenRepository.
type TokenStore interface {
	Get(userID string) (string, bool, error)
}

// PriceAlerter receives price-move hand-offs from the portfolio refresh path
// and turns them into push notifications. Delivery is best-effort: a user
// without a registered token, or a failed send, is logged and dropped.
type PriceAlerter struct {
	sender Sender
	tokens TokenStore
	log    zerolog.Logger
}

// NewPriceAlerter creates a price-move notifier.
func NewPriceAlerter(sender Sender, tokens TokenStore, log zerolog.Logger) *PriceAlerter {
	return &PriceAlerter{
		sender: sender,
		tokens: tokens,
		log:    log.With().Str("service", "price_alerts").Logger(),
	}
}

// NotifyPriceMove sends a price-alert push for one position.
func (a *PriceAlerter) NotifyPriceMove(ctx context.Context, userID string, pos portfolio.Position, oldPrice, newPrice float64) {
	token, found, err := a.tokens.Get(userID)
	if err != nil {
		a.log.Warn().Err(err).Str("user_id", userID).Msg("Push token lookup failed")
		return
	}
	if !found {
		return
	}

	change := (newPrice - oldPrice) / oldPrice * 100
	direction := "up"
	if change < 0 {
		direction = "down"
	}

	msg := Message{
		To:    token,
		Title: fmt.Sprintf("Price alert: %s", pos.Symbol),
		Body:  fmt.Sprintf("%s is %s %.1f%% at $%.2f", pos.Name, direction, abs(change), newPrice),
		Data: map[string]string{
			"positionId": pos.ID,
			"symbol":     pos.Symbol,
		},
	}

	if err := a.sender.Send(ctx, msg); err != nil {
		a.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Price alert delivery failed")
		return
	}

	a.log.Info().
		Str("symbol", pos.Symbol).
		Float64("old_price", oldPrice).
		Float64("new_price", newPrice).
		Msg("Price alert sent")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

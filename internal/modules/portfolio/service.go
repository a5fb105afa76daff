package portfolio

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nestegg-io/nestegg/internal/pricing"
)

// notifyThreshold is the relative price move beyond which a refresh hands off
// a push notification for the position.
const notifyThreshold = 0.05

// PriceSource resolves an instrument identity to a current price record.
// Implemented by pricing.Router.
type PriceSource interface {
	FetchPrice(ctx context.Context, symbol string, class pricing.Class) (pricing.Record, error)
}

// DurableStore is the per-user position collection the ledger syncs to.
// Implemented by Repository.
type DurableStore interface {
	Put(userID string, pos Position) error
	Patch(userID, positionID string, fields map[string]interface{}) error
	Delete(userID, positionID string) error
	ListByUser(userID string) ([]Position, error)
}

// Notifier receives price-move hand-offs from the refresh path. A nil
// notifier disables notifications.
type Notifier interface {
	NotifyPriceMove(ctx context.Context, userID string, pos Position, oldPrice, newPrice float64)
}

// AddRequest carries the fields of an add-position action.
type AddRequest struct {
	Symbol      string
	Name        string
	Class       pricing.Class
	Quantity    float64
	BuyPrice    float64
	Currency    string
	Description string
}

// UpdateRequest carries a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Symbol      *string
	Name        *string
	Class       *pricing.Class
	Quantity    *float64
	BuyPrice    *float64
	Currency    *string
	Description *string
}

// Ledger owns the in-memory position list for one user session and keeps it
// synchronized with durable storage, local-first: a durable write failure
// never rolls back a mutation that already landed locally.
//
// Mutations are serialized under a single mutex; price fetches and durable
// I/O happen outside it. A per-position generation counter discards price
// fetches that resolve after a newer mutation has landed on the same
// position.
type Ledger struct {
	userID   string
	store    DurableStore
	prices   PriceSource
	notifier Notifier
	log      zerolog.Logger

	now   func() time.Time
	newID func() string

	mu          sync.Mutex
	loaded      bool
	positions   []*Position
	generations map[string]uint64
	lastErr     error
	summary     Summary
}

// NewLedger creates a ledger for one user session. notifier may be nil.
func NewLedger(userID string, store DurableStore, prices PriceSource, notifier Notifier, log zerolog.Logger) *Ledger {
	return &Ledger{
		userID:      userID,
		store:       store,
		prices:      prices,
		notifier:    notifier,
		log:         log.With().Str("service", "ledger").Str("user_id", userID).Logger(),
		now:         time.Now,
		newID:       uuid.NewString,
		generations: make(map[string]uint64),
	}
}

// UserID returns the user this ledger belongs to.
func (l *Ledger) UserID() string { return l.userID }

// LoadPositions replaces the in-memory list wholesale from durable storage.
// On first load a failure yields an empty portfolio plus the surfaced error;
// on a reload the prior in-memory state is left untouched.
func (l *Ledger) LoadPositions(ctx context.Context) error {
	l.clearLastError()

	stored, err := l.store.ListByUser(l.userID)
	if err != nil {
		loadErr := fmt.Errorf("failed to load positions: %w", err)

		l.mu.Lock()
		if !l.loaded {
			l.positions = nil
			l.loaded = true
			l.recomputeLocked()
		}
		l.lastErr = loadErr
		l.mu.Unlock()

		return loadErr
	}

	l.mu.Lock()
	l.positions = make([]*Position, 0, len(stored))
	l.generations = make(map[string]uint64)
	for i := range stored {
		pos := stored[i]
		l.positions = append(l.positions, &pos)
	}
	l.loaded = true
	l.recomputeLocked()
	l.mu.Unlock()

	l.log.Info().Int("count", len(stored)).Msg("Loaded positions")
	return nil
}

// AddPosition validates the request, fetches the instrument's current price,
// and appends a new position. Price availability is a precondition: a failed
// fetch fails the whole operation and the list is untouched. Durability is
// not: a failed durable write leaves the position in the list, marked
// SyncPending, with the sync error recorded as the ledger's current error.
func (l *Ledger) AddPosition(ctx context.Context, req AddRequest) (Position, error) {
	l.clearLastError()

	if err := validateAdd(&req); err != nil {
		l.setLastError(err)
		return Position{}, err
	}

	record, err := l.prices.FetchPrice(ctx, req.Symbol, req.Class)
	if err != nil {
		fetchErr := fmt.Errorf("failed to fetch price for %s: %w", req.Symbol, err)
		l.setLastError(fetchErr)
		return Position{}, fetchErr
	}

	now := l.now()
	pos := Position{
		ID:           l.newID(),
		Symbol:       strings.ToUpper(req.Symbol),
		Name:         req.Name,
		Class:        req.Class,
		Quantity:     req.Quantity,
		BuyPrice:     req.BuyPrice,
		CurrentPrice: record.Price,
		LastUpdated:  now,
		Currency:     req.Currency,
		Description:  req.Description,
		CreatedAt:    now,
	}
	if pos.Class == pricing.ClassFiat {
		pos.Name = fiatDisplayName(pos.Quantity, pos.Currency)
	}

	l.mu.Lock()
	l.positions = append(l.positions, &pos)
	l.generations[pos.ID]++
	l.recomputeLocked()
	l.mu.Unlock()

	if err := l.store.Put(l.userID, pos); err != nil {
		l.markSyncPending(pos.ID, &SyncError{Op: "add", Err: err})
	}

	added := pos
	l.mu.Lock()
	if p := l.findLocked(pos.ID); p != nil {
		added = *p
	}
	l.mu.Unlock()
	return added, nil
}

// RemovePosition removes a position from the list and deletes its durable
// document. A failed durable delete is logged and recorded, never blocking:
// from the user's perspective the position is gone either way.
func (l *Ledger) RemovePosition(ctx context.Context, id string) error {
	l.clearLastError()

	l.mu.Lock()
	idx := -1
	for i, pos := range l.positions {
		if pos.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		l.setLastError(ErrPositionNotFound)
		return ErrPositionNotFound
	}
	l.positions = append(l.positions[:idx], l.positions[idx+1:]...)
	l.generations[id]++
	l.recomputeLocked()
	l.mu.Unlock()

	if err := l.store.Delete(l.userID, id); err != nil {
		syncErr := &SyncError{Op: "remove", Err: err}
		l.log.Warn().Err(err).Str("position_id", id).Msg("Durable delete failed")
		l.setLastError(syncErr)
	}
	return nil
}

// UpdatePosition applies a partial update. A symbol, class, or fiat currency
// change triggers a fresh price fetch for the new identity before anything is
// committed; if
// that fetch fails the whole update fails and the position is unchanged. If a
// newer mutation lands on the position while the fetch is in flight, the
// stale result is discarded and ErrSuperseded is returned.
func (l *Ledger) UpdatePosition(ctx context.Context, id string, req UpdateRequest) (Position, error) {
	l.clearLastError()

	l.mu.Lock()
	current := l.findLocked(id)
	if current == nil {
		l.mu.Unlock()
		l.setLastError(ErrPositionNotFound)
		return Position{}, ErrPositionNotFound
	}

	newSymbol := current.Symbol
	if req.Symbol != nil {
		newSymbol = strings.ToUpper(strings.TrimSpace(*req.Symbol))
	}
	newClass := current.Class
	if req.Class != nil {
		newClass = *req.Class
	}
	newCurrency := current.Currency
	if req.Currency != nil {
		newCurrency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	// Fiat positions are identified by their currency code, so a currency
	// change is an identity change: the symbol follows the currency and the
	// position is repriced against the new one.
	if newClass == pricing.ClassFiat && req.Currency != nil {
		newSymbol = newCurrency
	}
	identityChanged := newSymbol != current.Symbol || newClass != current.Class
	gen := l.generations[id]
	l.mu.Unlock()

	if req.Quantity != nil && *req.Quantity <= 0 {
		err := &ValidationError{Field: "quantity", Message: "must be greater than zero"}
		l.setLastError(err)
		return Position{}, err
	}
	if !newClass.Valid() {
		err := &ValidationError{Field: "class", Message: fmt.Sprintf("unknown instrument class %q", newClass)}
		l.setLastError(err)
		return Position{}, err
	}
	if newClass == pricing.ClassFiat && req.Currency != nil && newCurrency == "" {
		err := &ValidationError{Field: "currency", Message: "required for fiat positions"}
		l.setLastError(err)
		return Position{}, err
	}

	var fresh *pricing.Record
	if identityChanged {
		record, err := l.prices.FetchPrice(ctx, newSymbol, newClass)
		if err != nil {
			fetchErr := fmt.Errorf("failed to fetch price for %s: %w", newSymbol, err)
			l.setLastError(fetchErr)
			return Position{}, fetchErr
		}
		fresh = &record
	}

	l.mu.Lock()
	pos := l.findLocked(id)
	if pos == nil {
		// Removed while the fetch was in flight: remove wins.
		l.mu.Unlock()
		l.setLastError(ErrPositionNotFound)
		return Position{}, ErrPositionNotFound
	}
	if l.generations[id] != gen {
		l.mu.Unlock()
		l.setLastError(ErrSuperseded)
		return Position{}, ErrSuperseded
	}

	fields := make(map[string]interface{})
	if newSymbol != pos.Symbol {
		pos.Symbol = newSymbol
		fields["symbol"] = newSymbol
	}
	if req.Class != nil {
		pos.Class = newClass
		fields["class"] = string(newClass)
	}
	if req.Name != nil {
		pos.Name = *req.Name
		fields["name"] = *req.Name
	}
	if req.Quantity != nil {
		pos.Quantity = *req.Quantity
		fields["quantity"] = *req.Quantity
	}
	if req.BuyPrice != nil {
		pos.BuyPrice = *req.BuyPrice
		fields["buy_price"] = *req.BuyPrice
	}
	if req.Currency != nil {
		pos.Currency = newCurrency
		fields["currency"] = newCurrency
	}
	if req.Description != nil {
		pos.Description = *req.Description
		fields["description"] = *req.Description
	}
	if fresh != nil {
		pos.CurrentPrice = fresh.Price
		pos.LastUpdated = l.now()
		fields["current_price"] = pos.CurrentPrice
		fields["last_updated"] = pos.LastUpdated
	}
	if pos.Class == pricing.ClassFiat &&
		(req.Currency != nil || req.Quantity != nil || req.Symbol != nil) {
		pos.Name = fiatDisplayName(pos.Quantity, pos.Currency)
		fields["name"] = pos.Name
	}
	pos.SyncPending = false
	l.generations[id]++
	l.recomputeLocked()
	l.mu.Unlock()

	if err := l.store.Patch(l.userID, id, fields); err != nil {
		l.markSyncPending(id, &SyncError{Op: "update", Err: err})
	}

	l.mu.Lock()
	updated := *pos
	if p := l.findLocked(id); p != nil {
		updated = *p
	}
	l.mu.Unlock()
	return updated, nil
}

// RefreshAllPrices fetches a fresh price for every position concurrently and
// joins before recomputing aggregates once. A per-position fetch failure
// leaves that position untouched and is logged; one instrument's failure
// never blocks or rolls back the others. Always returns nil.
func (l *Ledger) RefreshAllPrices(ctx context.Context) error {
	l.clearLastError()

	type target struct {
		id       string
		symbol   string
		class    pricing.Class
		oldPrice float64
		gen      uint64
	}

	l.mu.Lock()
	targets := make([]target, 0, len(l.positions))
	for _, pos := range l.positions {
		targets = append(targets, target{
			id:       pos.ID,
			symbol:   pos.Symbol,
			class:    pos.Class,
			oldPrice: pos.CurrentPrice,
			gen:      l.generations[pos.ID],
		})
	}
	l.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	results := make([]*pricing.Record, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			record, err := l.prices.FetchPrice(ctx, t.symbol, t.class)
			if err != nil {
				l.log.Warn().Err(err).
					Str("symbol", t.symbol).
					Str("class", string(t.class)).
					Msg("Price refresh failed for position, keeping last known price")
				return
			}
			results[i] = &record
		}(i, t)
	}
	wg.Wait()

	type moved struct {
		pos      Position
		oldPrice float64
	}
	var notifications []moved
	patches := make(map[string]map[string]interface{})

	now := l.now()
	l.mu.Lock()
	for i, t := range targets {
		record := results[i]
		if record == nil {
			continue
		}
		pos := l.findLocked(t.id)
		if pos == nil || l.generations[t.id] != t.gen {
			// Removed or mutated while the fetch was in flight; discard.
			continue
		}
		pos.CurrentPrice = record.Price
		pos.LastUpdated = now
		patches[t.id] = map[string]interface{}{
			"current_price": record.Price,
			"last_updated":  now,
		}
		if t.oldPrice > 0 {
			change := math.Abs((record.Price - t.oldPrice) / t.oldPrice)
			if change > notifyThreshold {
				notifications = append(notifications, moved{pos: *pos, oldPrice: t.oldPrice})
			}
		}
	}
	l.recomputeLocked()
	l.mu.Unlock()

	for id, fields := range patches {
		if err := l.store.Patch(l.userID, id, fields); err != nil {
			l.markSyncPending(id, &SyncError{Op: "refresh", Err: err})
		}
	}

	if l.notifier != nil {
		for _, n := range notifications {
			l.notifier.NotifyPriceMove(ctx, l.userID, n.pos, n.oldPrice, n.pos.CurrentPrice)
		}
	}

	return nil
}

// Positions returns a copy of the current position list in insertion order.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// Summary returns the aggregates over the current position list.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary
}

// LastError returns the error recorded by the most recent operation, or nil.
// Each new operation clears it before starting.
func (l *Ledger) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// recomputeLocked rebuilds the aggregates from the full position list.
// Caller must hold l.mu.
func (l *Ledger) recomputeLocked() {
	total := decimal.Zero
	gainLoss := decimal.Zero
	for _, pos := range l.positions {
		qty := decimal.NewFromFloat(pos.Quantity)
		current := decimal.NewFromFloat(pos.CurrentPrice)
		buy := decimal.NewFromFloat(pos.BuyPrice)
		total = total.Add(qty.Mul(current))
		gainLoss = gainLoss.Add(qty.Mul(current.Sub(buy)))
	}

	totalValue, _ := total.Float64()
	totalGainLoss, _ := gainLoss.Float64()
	l.summary = Summary{
		PositionCount: len(l.positions),
		TotalValue:    totalValue,
		TotalGainLoss: totalGainLoss,
	}
}

// findLocked returns the position with the given id. Caller must hold l.mu.
func (l *Ledger) findLocked(id string) *Position {
	for _, pos := range l.positions {
		if pos.ID == id {
			return pos
		}
	}
	return nil
}

func (l *Ledger) clearLastError() {
	l.mu.Lock()
	l.lastErr = nil
	l.mu.Unlock()
}

func (l *Ledger) setLastError(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
}

// markSyncPending flags a position whose durable write failed and records the
// sync error without failing the operation.
func (l *Ledger) markSyncPending(id string, syncErr *SyncError) {
	l.log.Warn().Err(syncErr.Err).Str("position_id", id).Str("op", syncErr.Op).
		Msg("Durable write failed, position pending sync")

	l.mu.Lock()
	if pos := l.findLocked(id); pos != nil {
		pos.SyncPending = true
	}
	l.lastErr = syncErr
	l.mu.Unlock()
}

func validateAdd(req *AddRequest) error {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	if !req.Class.Valid() {
		return &ValidationError{Field: "class", Message: fmt.Sprintf("unknown instrument class %q", req.Class)}
	}
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return &ValidationError{Field: "quantity", Message: "must be greater than zero"}
	}
	if req.BuyPrice < 0 || math.IsNaN(req.BuyPrice) || math.IsInf(req.BuyPrice, 0) {
		return &ValidationError{Field: "buyPrice", Message: "must not be negative"}
	}
	if req.Class == pricing.ClassFiat {
		if req.Currency == "" {
			return &ValidationError{Field: "currency", Message: "required for fiat positions"}
		}
		// Fiat positions are identified by their currency code.
		req.Symbol = req.Currency
	}
	if req.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "must not be empty"}
	}
	return nil
}

package portfolio

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/pricing"
)

// Repository handles position database operations. Positions are stored as
// per-user documents addressed by (user_id, position_id); there are no
// cross-document constraints, and callers must not assume multi-row
// transactional semantics.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new position repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// Put writes a whole position document, replacing any existing row.
func (r *Repository) Put(userID string, pos Position) error {
	query := `INSERT OR REPLACE INTO positions
		(user_id, position_id, symbol, name, class, quantity, buy_price,
		 current_price, last_updated, currency, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		userID, pos.ID, pos.Symbol, pos.Name, string(pos.Class),
		pos.Quantity, pos.BuyPrice, pos.CurrentPrice, pos.LastUpdated.Unix(),
		pos.Currency, pos.Description, pos.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put position %s: %w", pos.ID, err)
	}
	return nil
}

// patchColumns maps patchable field names to their columns. Identity and
// creation time are immutable.
var patchColumns = map[string]string{
	"symbol":        "symbol",
	"name":          "name",
	"class":         "class",
	"quantity":      "quantity",
	"buy_price":     "buy_price",
	"current_price": "current_price",
	"last_updated":  "last_updated",
	"currency":      "currency",
	"description":   "description",
}

// Patch updates only the given fields of a position document. Unknown field
// names are rejected rather than silently dropped.
func (r *Repository) Patch(userID, positionID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+2)
	for field, value := range fields {
		column, ok := patchColumns[field]
		if !ok {
			return fmt.Errorf("field %q is not patchable", field)
		}
		if t, ok := value.(time.Time); ok {
			value = t.Unix()
		}
		setClauses = append(setClauses, column+" = ?")
		args = append(args, value)
	}
	args = append(args, userID, positionID)

	query := fmt.Sprintf("UPDATE positions SET %s WHERE user_id = ? AND position_id = ?",
		strings.Join(setClauses, ", "))

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch position %s: %w", positionID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("position %s: %w", positionID, ErrPositionNotFound)
	}
	return nil
}

// Delete removes a position document. Deleting an absent document is a no-op.
func (r *Repository) Delete(userID, positionID string) error {
	_, err := r.db.Exec(`DELETE FROM positions WHERE user_id = ? AND position_id = ?`,
		userID, positionID)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", positionID, err)
	}
	return nil
}

// ListByUser returns all positions for a user in insertion order.
func (r *Repository) ListByUser(userID string) ([]Position, error) {
	query := `SELECT position_id, symbol, name, class, quantity, buy_price,
		current_price, last_updated, currency, description, created_at
		FROM positions WHERE user_id = ? ORDER BY created_at, position_id`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var pos Position
		var class string
		var currency, description sql.NullString
		var lastUpdated, createdAt int64

		err := rows.Scan(&pos.ID, &pos.Symbol, &pos.Name, &class,
			&pos.Quantity, &pos.BuyPrice, &pos.CurrentPrice, &lastUpdated,
			&currency, &description, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		pos.Class = pricing.Class(class)
		pos.Currency = currency.String
		pos.Description = description.String
		pos.LastUpdated = time.Unix(lastUpdated, 0)
		pos.CreatedAt = time.Unix(createdAt, 0)
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftora/marketplace/internal/domain/model"
)

var ErrItemNotFound = errors.New("item not found")

type ItemRepo struct {
	pool *pgxpool.Pool
}

func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

func (r *ItemRepo) FindByID(ctx context.Context, itemID string) (model.Item, error) {
	if r.pool == nil {
		return model.Item{}, fmt.Errorf("postgres pool is nil")
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return model.Item{}, fmt.Errorf("item id is required")
	}

	var item model.Item
	err := r.pool.QueryRow(ctx, `
SELECT
	id,
	title,
	price_minor,
	payee_id,
	available,
	fulfillment_count,
	asset_object_key
FROM items
WHERE id = $1
LIMIT 1
`, itemID).Scan(
		&item.ID,
		&item.Title,
		&item.PriceMinor,
		&item.PayeeID,
		&item.Available,
		&item.FulfillmentCount,
		&item.AssetObjectKey,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Item{}, ErrItemNotFound
		}
		return model.Item{}, fmt.Errorf("find item by id: %w", err)
	}

	return item, nil
}

// IncrementFulfillment bumps the counter in a single statement. Callers never
// read-modify-write this value.
func (r *ItemRepo) IncrementFulfillment(ctx context.Context, itemID string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return fmt.Errorf("item id is required")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE items
SET fulfillment_count = fulfillment_count + 1
WHERE id = $1
`, itemID)
	if err != nil {
		return fmt.Errorf("increment item fulfillment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

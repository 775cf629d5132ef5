package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
)

var (
	// The conditional update matched no row: either the remaining stock could
	// not cover the delta, or the id does not exist.
	ErrStockConflict = errors.New("stock conflict")
	ErrNotFound      = errors.New("product not found")
	ErrZeroDelta     = errors.New("stock delta must be non-zero")
)

// InsufficientStockError carries how many units were actually available.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available", e.Available)
}

// Snapshot is the ledger row after an adjustment or lookup.
type Snapshot struct {
	ProductID  string  `json:"product_id"`
	OptionID   *string `json:"option_id,omitempty"`
	Stock      int     `json:"stock"`
	PriceCents int64   `json:"price_cents"`
}

// Ledger is the only writer of stock counters. Every mutation goes through
// the conditional update below; read-then-write from callers is forbidden.
type Ledger struct{ DB *pgxpool.Pool }

// Adjust applies delta (negative = reservation, positive = restock) if and
// only if the resulting stock stays >= 0. The check-and-apply is a single
// UPDATE, so two concurrent decrements can never both pass the check.
func (l *Ledger) Adjust(ctx context.Context, productID string, optionID *string, delta int) (Snapshot, error) {
	return l.AdjustIn(ctx, l.DB, productID, optionID, delta)
}

// AdjustIn is Adjust running on an existing transaction.
func (l *Ledger) AdjustIn(ctx context.Context, q postgres.Querier, productID string, optionID *string, delta int) (Snapshot, error) {
	if delta == 0 {
		return Snapshot{}, ErrZeroDelta
	}

	s := Snapshot{ProductID: productID, OptionID: optionID}
	var row pgx.Row
	if optionID != nil {
		row = q.QueryRow(ctx, `
			UPDATE product_options
			SET stock = stock + $3, updated_at = now()
			WHERE product_id = $1 AND id = $2 AND stock + $3 >= 0
			RETURNING stock, price_cents`, productID, *optionID, delta)
	} else {
		row = q.QueryRow(ctx, `
			UPDATE products
			SET stock = stock + $2, updated_at = now()
			WHERE id = $1 AND stock + $2 >= 0
			RETURNING stock, price_cents`, productID, delta)
	}
	if err := row.Scan(&s.Stock, &s.PriceCents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrStockConflict
		}
		return Snapshot{}, fmt.Errorf("stock adjust: %w", err)
	}
	return s, nil
}

// Lookup reads current stock and price without reserving anything.
func (l *Ledger) Lookup(ctx context.Context, productID string, optionID *string) (Snapshot, error) {
	return l.LookupIn(ctx, l.DB, productID, optionID)
}

func (l *Ledger) LookupIn(ctx context.Context, q postgres.Querier, productID string, optionID *string) (Snapshot, error) {
	s := Snapshot{ProductID: productID, OptionID: optionID}
	var row pgx.Row
	if optionID != nil {
		row = q.QueryRow(ctx,
			`SELECT stock, price_cents FROM product_options WHERE product_id = $1 AND id = $2`,
			productID, *optionID)
	} else {
		row = q.QueryRow(ctx,
			`SELECT stock, price_cents FROM products WHERE id = $1`, productID)
	}
	if err := row.Scan(&s.Stock, &s.PriceCents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("stock lookup: %w", err)
	}
	return s, nil
}

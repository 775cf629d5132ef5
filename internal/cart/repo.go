package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
)

type Repo struct{ DB *pgxpool.Pool }

// Get loads the cart; a user without a cart row gets an empty cart.
func (r *Repo) Get(ctx context.Context, userID string) (*Cart, error) {
	c := &Cart{UserID: userID}
	err := r.DB.QueryRow(ctx,
		`SELECT updated_at FROM carts WHERE user_id=$1`, userID).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// no row yet: lazily-created carts are empty, not missing
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT i.product_id, i.option_id, i.qty, i.unit_price_cents, i.shipping_cents
		FROM cart_items i JOIN carts c ON c.id = i.cart_id
		WHERE c.user_id=$1`, userID)
	if err != nil {
		return nil, fmt.Errorf("cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.OptionID, &it.Qty, &it.UnitPriceCents, &it.ShippingCents); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// ItemQty reports the quantity already in the cart for the exact key, 0 if
// none.
func (r *Repo) ItemQty(ctx context.Context, userID, productID string, optionID *string) (int, error) {
	var qty int
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(i.qty), 0)
		FROM cart_items i JOIN carts c ON c.id = i.cart_id
		WHERE c.user_id=$1 AND i.product_id=$2 AND i.option_id IS NOT DISTINCT FROM $3`,
		userID, productID, optionID).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("cart item qty: %w", err)
	}
	return qty, nil
}

// ensure creates the cart row on first touch and bumps updated_at.
func (r *Repo) ensure(ctx context.Context, userID string) (string, error) {
	var cartID string
	err := r.DB.QueryRow(ctx, `
		INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id`, uuid.NewString(), userID).Scan(&cartID)
	if err != nil {
		return "", fmt.Errorf("ensure cart: %w", err)
	}
	return cartID, nil
}

// SetItem writes the absolute quantity for the key, inserting or replacing
// the line item. The caller has already merged quantities under the lock.
func (r *Repo) SetItem(ctx context.Context, userID string, it Item) error {
	cartID, err := r.ensure(ctx, userID)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, option_id, qty, unit_price_cents, shipping_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (cart_id, product_id, option_id)
		DO UPDATE SET qty = EXCLUDED.qty,
		              unit_price_cents = EXCLUDED.unit_price_cents,
		              shipping_cents = EXCLUDED.shipping_cents`,
		uuid.NewString(), cartID, it.ProductID, it.OptionID, it.Qty, it.UnitPriceCents, it.ShippingCents)
	if err != nil {
		return fmt.Errorf("set cart item: %w", err)
	}
	return nil
}

// RemoveItem deletes by exact key; reports whether a row matched.
func (r *Repo) RemoveItem(ctx context.Context, userID, productID string, optionID *string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		DELETE FROM cart_items i USING carts c
		WHERE i.cart_id = c.id AND c.user_id=$1
		  AND i.product_id=$2 AND i.option_id IS NOT DISTINCT FROM $3`,
		userID, productID, optionID)
	if err != nil {
		return false, fmt.Errorf("remove cart item: %w", err)
	}
	if ct.RowsAffected() > 0 {
		_, err = r.DB.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE user_id=$1`, userID)
	}
	return ct.RowsAffected() > 0, err
}

func (r *Repo) Clear(ctx context.Context, userID string) error {
	return r.ClearIn(ctx, r.DB, userID)
}

// ClearIn empties the cart inside an existing transaction (checkout).
func (r *Repo) ClearIn(ctx context.Context, q postgres.Querier, userID string) error {
	if _, err := q.Exec(ctx, `
		DELETE FROM cart_items i USING carts c
		WHERE i.cart_id = c.id AND c.user_id=$1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	_, err := q.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE user_id=$1`, userID)
	return err
}

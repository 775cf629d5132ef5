package cart

import (
	"errors"
	"time"
)

const (
	MinQty = 1
	MaxQty = 50
)

var (
	ErrInvalidQuantity = errors.New("quantity must be an integer between 1 and 50")
	ErrNotFound        = errors.New("cart item not found")
)

// Cart is the per-user mutable collection of line items. An absent row in
// storage and an empty cart are the same thing: carts are created lazily on
// first add and survive clears.
type Cart struct {
	UserID    string    `json:"user_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is one line, keyed by (product_id, option_id). A nil option id is a
// distinct key from any real id.
type Item struct {
	ProductID      string  `json:"product_id"`
	OptionID       *string `json:"option_id,omitempty"`
	Qty            int     `json:"qty"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	ShippingCents  int64   `json:"shipping_cents"`
}

// ItemInput is what a caller supplies on add.
type ItemInput struct {
	ProductID     string  `json:"product_id"`
	OptionID      *string `json:"option_id,omitempty"`
	Qty           int     `json:"qty"`
	ShippingCents int64   `json:"shipping_cents"`
}

func sameKey(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Find returns the line item matching the exact (product, option) key.
func (c *Cart) Find(productID string, optionID *string) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && sameKey(c.Items[i].OptionID, optionID) {
			return &c.Items[i]
		}
	}
	return nil
}

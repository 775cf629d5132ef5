package order

import "time"

// Order is the durable record of a purchase. Items are a snapshot taken at
// checkout, not live references to current stock or price. Money amounts are
// integer cents; commission and earnings are computed once at creation and
// only toggled by later transitions, never silently recomputed.
type Order struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`

	Status           Status           `json:"status"`
	PrevStatus       *Status          `json:"prev_status,omitempty"` // set while a refund request is open
	EscrowStatus     EscrowStatus     `json:"escrow_status"`
	PayoutStatus     PayoutStatus     `json:"payout_status"`
	CommissionStatus CommissionStatus `json:"commission_status"`
	RefundStatus     RefundStatus     `json:"refund_status"`

	PaymentMethod   PaymentMethod `json:"payment_method"`
	ShippingAddress string        `json:"shipping_address"`

	SubTotalCents         int64   `json:"sub_total_cents"`
	ShippingCents         int64   `json:"shipping_cents"`
	CommissionRate        float64 `json:"commission_rate"`
	CommissionCents       int64   `json:"commission_cents"`
	SellerEarningsCents   int64   `json:"seller_earnings_cents"`
	EscrowCents           int64   `json:"escrow_cents"`
	RefundCents           int64   `json:"refund_cents"`
	CommissionRefundCents int64   `json:"commission_refund_cents"`
	SellerDeductionCents  int64   `json:"seller_deduction_cents"`
	PayoutCents           int64   `json:"payout_cents"`

	PayoutReleasedBy string `json:"payout_released_by,omitempty"`

	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	EscrowHeldAt      *time.Time `json:"escrow_held_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	CommissionPaidAt  *time.Time `json:"commission_paid_at,omitempty"`
	PayoutReleasedAt  *time.Time `json:"payout_released_at,omitempty"`
	RefundRequestedAt *time.Time `json:"refund_requested_at,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`

	Items []Item `json:"items,omitempty"`
}

// Item is a checkout-time snapshot of one cart line.
type Item struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"order_id"`
	ProductID      string  `json:"product_id"`
	OptionID       *string `json:"option_id,omitempty"`
	Qty            int     `json:"qty"`
	UnitPriceCents int64   `json:"unit_price_cents"`
}

package order

import (
	"encoding/json"
	"time"
)

const (
	EventTypeOrderCreated      = "OrderCreated"
	EventTypeOrderPaid         = "OrderPaid"
	EventTypeOrderShipped      = "OrderShipped"
	EventTypeOrderDelivered    = "OrderDelivered"
	EventTypePayoutReleased    = "PayoutReleased"
	EventTypeOrderRefunded     = "OrderRefunded"
	EventTypeOrderCancelled    = "OrderCancelled"
	EventTypePaymentConfirmed  = "PaymentConfirmed"
	EventTypeDeliveryConfirmed = "DeliveryConfirmed"
	EventTypeNotify            = "Notify"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemSnapshot struct {
	ProductID      string  `json:"product_id"`
	OptionID       *string `json:"option_id,omitempty"`
	Qty            int     `json:"qty"`
	UnitPriceCents int64   `json:"unit_price_cents"`
}

type CreatedPayload struct {
	OrderID       string         `json:"order_id"`
	ExternalID    string         `json:"external_id"`
	CustomerID    string         `json:"customer_id"`
	VendorID      string         `json:"vendor_id"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	SubTotalCents int64          `json:"sub_total_cents"`
	EscrowCents   int64          `json:"escrow_cents"`
	Items         []ItemSnapshot `json:"items"`
}

// TransitionPayload reports every observable track after a lifecycle event.
type TransitionPayload struct {
	OrderID          string           `json:"order_id"`
	Event            Event            `json:"event"`
	Status           Status           `json:"status"`
	EscrowStatus     EscrowStatus     `json:"escrow_status"`
	PayoutStatus     PayoutStatus     `json:"payout_status"`
	CommissionStatus CommissionStatus `json:"commission_status"`
	RefundStatus     RefundStatus     `json:"refund_status"`
	ActorID          string           `json:"actor_id,omitempty"`
}

type PaymentConfirmedPayload struct {
	OrderID     string `json:"order_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
}

type DeliveryConfirmedPayload struct {
	OrderID string `json:"order_id"`
	ActorID string `json:"actor_id"`
}

// NotifyPayload is a fire-and-forget hint for the notification collaborator.
type NotifyPayload struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`
	Kind       string `json:"kind"` // mirrors the lifecycle event name
}

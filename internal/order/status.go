package order

import "fmt"

type Status string

const (
	StatusPending         Status = "pending"
	StatusPaid            Status = "paid"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusPendingRelease  Status = "pending_release"
	StatusReleased        Status = "released"
	StatusCancelled       Status = "cancelled"
	StatusRefundRequested Status = "refund_requested"
	StatusRefundApproved  Status = "refund_approved"
	StatusRefunded        Status = "refunded"
)

type EscrowStatus string

const (
	EscrowNotApplicable  EscrowStatus = "not_applicable"
	EscrowHeld           EscrowStatus = "held"
	EscrowPendingRelease EscrowStatus = "pending_release"
	EscrowReleased       EscrowStatus = "released"
	EscrowRefunded       EscrowStatus = "refunded"
)

type PayoutStatus string

const (
	PayoutNotApplicable PayoutStatus = "not_applicable"
	PayoutPending       PayoutStatus = "pending"
	PayoutHeld          PayoutStatus = "held"
	PayoutReleased      PayoutStatus = "released"
)

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
	CommissionWaived  CommissionStatus = "waived"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = "none"
	RefundRequested RefundStatus = "requested"
	RefundApproved  RefundStatus = "approved"
	RefundRejected  RefundStatus = "rejected"
	RefundProcessed RefundStatus = "processed"
)

type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "cod"
	MethodWallet PaymentMethod = "wallet"
	MethodQR     PaymentMethod = "qr"
)

// Prepaid methods hold the subtotal in escrow from creation.
func (m PaymentMethod) Prepaid() bool { return m == MethodWallet || m == MethodQR }

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodWallet, MethodQR:
		return true
	}
	return false
}

type Event string

const (
	EventPay               Event = "pay"
	EventShip              Event = "ship"
	EventDeliver           Event = "deliver"
	EventReleasePayout     Event = "release_payout"
	EventRequestRefund     Event = "request_refund"
	EventApproveRefund     Event = "approve_refund"
	EventRejectRefund      Event = "reject_refund"
	EventProcessRefund     Event = "process_refund"
	EventCollectCommission Event = "collect_commission"
	EventWaiveCommission   Event = "waive_commission"
	EventCancel            Event = "cancel"
)

// allowedFrom is the authoritative transition table. An event fired from any
// other status is rejected, never coerced.
var allowedFrom = map[Event]map[Status]bool{
	EventPay:           {StatusPending: true},
	EventShip:          {StatusPaid: true},
	EventDeliver:       {StatusShipped: true},
	EventReleasePayout: {StatusDelivered: true, StatusPendingRelease: true},
	EventRequestRefund: {StatusPaid: true, StatusShipped: true, StatusDelivered: true},
	EventApproveRefund: {StatusRefundRequested: true},
	EventRejectRefund:  {StatusRefundRequested: true},
	EventProcessRefund: {StatusRefundApproved: true},
	EventCollectCommission: {
		StatusDelivered: true, StatusPendingRelease: true, StatusReleased: true,
	},
	EventWaiveCommission: {
		StatusDelivered: true, StatusPendingRelease: true, StatusReleased: true,
	},
	EventCancel: {StatusPending: true},
}

func Allowed(ev Event, from Status) bool { return allowedFrom[ev][from] }

// Events is the full set of recognised lifecycle events.
func Events() []Event {
	return []Event{
		EventPay, EventShip, EventDeliver, EventReleasePayout,
		EventRequestRefund, EventApproveRefund, EventRejectRefund, EventProcessRefund,
		EventCollectCommission, EventWaiveCommission, EventCancel,
	}
}

// InvalidTransitionError names the current status and the rejected event.
type InvalidTransitionError struct {
	Status Status
	Event  Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed from status %q", e.Event, e.Status)
}

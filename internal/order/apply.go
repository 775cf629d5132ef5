package order

import "time"

// Apply mutates o according to ev, or rejects it with InvalidTransitionError
// leaving o untouched. Pure in-memory: persistence, restocking and event
// publication are the caller's job (see Service.Transition).
func Apply(o *Order, ev Event, actorID string, now time.Time) error {
	if !Allowed(ev, o.Status) {
		return &InvalidTransitionError{Status: o.Status, Event: ev}
	}

	switch ev {
	case EventPay:
		o.Status = StatusPaid
		o.PayoutStatus = PayoutPending
		if o.PaymentMethod.Prepaid() {
			o.EscrowStatus = EscrowHeld
			o.EscrowHeldAt = &now
		}

	case EventShip:
		o.Status = StatusShipped

	case EventDeliver:
		o.Status = StatusDelivered
		o.DeliveredAt = &now
		o.PayoutStatus = PayoutHeld
		if o.EscrowStatus == EscrowHeld {
			o.EscrowStatus = EscrowPendingRelease
		}
		// Commission is considered collected immediately for digital
		// payments; COD waits for an explicit collect_commission.
		if o.PaymentMethod != MethodCOD && o.CommissionStatus == CommissionPending {
			o.CommissionStatus = CommissionPaid
			o.CommissionPaidAt = &now
		}

	case EventReleasePayout:
		if o.PaymentMethod.Prepaid() &&
			o.EscrowStatus != EscrowHeld && o.EscrowStatus != EscrowPendingRelease {
			return &InvalidTransitionError{Status: o.Status, Event: ev}
		}
		o.Status = StatusReleased
		if o.PaymentMethod.Prepaid() {
			o.EscrowStatus = EscrowReleased
		}
		o.PayoutStatus = PayoutReleased
		o.PayoutCents = o.SellerEarningsCents
		o.PayoutReleasedAt = &now
		o.PayoutReleasedBy = actorID

	case EventRequestRefund:
		prev := o.Status
		o.PrevStatus = &prev
		o.Status = StatusRefundRequested
		o.RefundStatus = RefundRequested
		o.RefundRequestedAt = &now

	case EventApproveRefund:
		o.Status = StatusRefundApproved
		o.RefundStatus = RefundApproved
		// Full refund of whatever is held; never more than the escrow.
		o.RefundCents = o.EscrowCents
		cr, sd := CommissionCents(o.RefundCents, o.CommissionRate)
		o.CommissionRefundCents = cr
		o.SellerDeductionCents = sd

	case EventRejectRefund:
		o.RefundStatus = RefundRejected
		if o.PrevStatus != nil {
			o.Status = *o.PrevStatus
			o.PrevStatus = nil
		}

	case EventProcessRefund:
		o.Status = StatusRefunded
		o.RefundStatus = RefundProcessed
		o.RefundedAt = &now
		if o.PaymentMethod.Prepaid() {
			o.EscrowStatus = EscrowRefunded
		}

	case EventCollectCommission:
		if o.CommissionStatus != CommissionPending {
			return &InvalidTransitionError{Status: o.Status, Event: ev}
		}
		o.CommissionStatus = CommissionPaid
		o.CommissionPaidAt = &now

	case EventWaiveCommission:
		if o.CommissionStatus != CommissionPending {
			return &InvalidTransitionError{Status: o.Status, Event: ev}
		}
		o.CommissionStatus = CommissionWaived

	case EventCancel:
		o.Status = StatusCancelled

	default:
		return &InvalidTransitionError{Status: o.Status, Event: ev}
	}

	o.UpdatedAt = now
	return nil
}

// NeedsRestock reports whether the event returns reserved units to the
// ledger: approved refunds and pre-payment cancellations.
func NeedsRestock(ev Event) bool {
	return ev == EventApproveRefund || ev == EventCancel
}

package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
)

var ErrNotFound = errors.New("order not found")

const orderColumns = `id, external_id, customer_id, vendor_id,
	status, prev_status, escrow_status, payout_status, commission_status, refund_status,
	payment_method, shipping_address,
	sub_total_cents, shipping_cents, commission_rate, commission_cents,
	seller_earnings_cents, escrow_cents, refund_cents, commission_refund_cents,
	seller_deduction_cents, payout_cents, payout_released_by,
	created_at, updated_at, escrow_held_at, delivered_at, commission_paid_at,
	payout_released_at, refund_requested_at, refunded_at`

type Repo struct{ DB *pgxpool.Pool }

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.ExternalID, &o.CustomerID, &o.VendorID,
		&o.Status, &o.PrevStatus, &o.EscrowStatus, &o.PayoutStatus, &o.CommissionStatus, &o.RefundStatus,
		&o.PaymentMethod, &o.ShippingAddress,
		&o.SubTotalCents, &o.ShippingCents, &o.CommissionRate, &o.CommissionCents,
		&o.SellerEarningsCents, &o.EscrowCents, &o.RefundCents, &o.CommissionRefundCents,
		&o.SellerDeductionCents, &o.PayoutCents, &o.PayoutReleasedBy,
		&o.CreatedAt, &o.UpdatedAt, &o.EscrowHeldAt, &o.DeliveredAt, &o.CommissionPaidAt,
		&o.PayoutReleasedAt, &o.RefundRequestedAt, &o.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

// GetWithItems loads the order plus its item snapshots.
func (r *Repo) GetWithItems(ctx context.Context, id string) (*Order, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := r.Items(ctx, r.DB, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *Repo) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID))
}

// GetForUpdate pins the row for the length of the surrounding transaction so
// concurrent transitions on the same order serialize.
func (r *Repo) GetForUpdate(ctx context.Context, q postgres.Querier, id string) (*Order, error) {
	return scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

func (r *Repo) Insert(ctx context.Context, q postgres.Querier, o *Order) error {
	_, err := q.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31)`,
		o.ID, o.ExternalID, o.CustomerID, o.VendorID,
		o.Status, o.PrevStatus, o.EscrowStatus, o.PayoutStatus, o.CommissionStatus, o.RefundStatus,
		o.PaymentMethod, o.ShippingAddress,
		o.SubTotalCents, o.ShippingCents, o.CommissionRate, o.CommissionCents,
		o.SellerEarningsCents, o.EscrowCents, o.RefundCents, o.CommissionRefundCents,
		o.SellerDeductionCents, o.PayoutCents, o.PayoutReleasedBy,
		o.CreatedAt, o.UpdatedAt, o.EscrowHeldAt, o.DeliveredAt, o.CommissionPaidAt,
		o.PayoutReleasedAt, o.RefundRequestedAt, o.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, it := range o.Items {
		if _, err := q.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, option_id, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, o.ID, it.ProductID, it.OptionID, it.Qty, it.UnitPriceCents,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// Save persists the fields a transition may touch.
func (r *Repo) Save(ctx context.Context, q postgres.Querier, o *Order) error {
	ct, err := q.Exec(ctx, `
		UPDATE orders SET
			status=$2, prev_status=$3, escrow_status=$4, payout_status=$5,
			commission_status=$6, refund_status=$7,
			refund_cents=$8, commission_refund_cents=$9, seller_deduction_cents=$10,
			payout_cents=$11, payout_released_by=$12,
			updated_at=$13, escrow_held_at=$14, delivered_at=$15, commission_paid_at=$16,
			payout_released_at=$17, refund_requested_at=$18, refunded_at=$19
		WHERE id=$1`,
		o.ID,
		o.Status, o.PrevStatus, o.EscrowStatus, o.PayoutStatus,
		o.CommissionStatus, o.RefundStatus,
		o.RefundCents, o.CommissionRefundCents, o.SellerDeductionCents,
		o.PayoutCents, o.PayoutReleasedBy,
		o.UpdatedAt, o.EscrowHeldAt, o.DeliveredAt, o.CommissionPaidAt,
		o.PayoutReleasedAt, o.RefundRequestedAt, o.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Items(ctx context.Context, q postgres.Querier, orderID string) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, option_id, qty, unit_price_cents
		FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.OptionID, &it.Qty, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

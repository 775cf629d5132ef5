// Package checkout turns a cart snapshot into a pending order. Stock is
// re-validated and reserved here, inside one unit-of-work, regardless of what
// the cart checked earlier: cart-time availability is advisory and may be
// stale by the time the customer checks out.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/cart"
	"github.com/ariefcatur/go-marketplace-core/internal/ident"
	"github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/order"
	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/stock"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
)

type CartStore interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	ClearIn(ctx context.Context, q postgres.Querier, userID string) error
}

type OrderStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*order.Order, error)
	Insert(ctx context.Context, q postgres.Querier, o *order.Order) error
}

// StockOps reserves and inspects the ledger inside the checkout transaction.
type StockOps interface {
	AdjustIn(ctx context.Context, q postgres.Querier, productID string, optionID *string, delta int) (stock.Snapshot, error)
	LookupIn(ctx context.Context, q postgres.Querier, productID string, optionID *string) (stock.Snapshot, error)
}

type Input struct {
	ExternalID      string
	CustomerID      string
	VendorID        string
	PaymentMethod   order.PaymentMethod
	ShippingAddress string
}

type Service struct {
	Run            order.TxRunner
	Carts          CartStore
	Orders         OrderStore
	Stock          StockOps
	Cache          order.SnapshotCache
	Pub            order.Publisher
	CommissionRate float64
	ServiceName    string
	Log            *zap.Logger
}

// CreateOrder reserves every cart line all-or-nothing and creates the order
// in pending. Idempotent by external id: replays return the existing order.
func (s *Service) CreateOrder(ctx context.Context, in Input) (o *order.Order, existed bool, err error) {
	if err := ident.Validate(in.CustomerID); err != nil {
		return nil, false, err
	}
	if err := ident.Validate(in.VendorID); err != nil {
		return nil, false, err
	}
	if in.ExternalID == "" {
		return nil, false, ident.ErrInvalid
	}
	if !in.PaymentMethod.Valid() {
		return nil, false, ErrInvalidPaymentMethod
	}

	// idempotency short-circuit
	if existing, err := s.Orders.GetByExternalID(ctx, in.ExternalID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return nil, false, err
	}

	c, err := s.Carts.Get(ctx, in.CustomerID)
	if err != nil {
		return nil, false, err
	}
	if len(c.Items) == 0 {
		return nil, false, ErrEmptyCart
	}

	now := time.Now().UTC()
	o = &order.Order{
		ID:               uuid.NewString(),
		ExternalID:       in.ExternalID,
		CustomerID:       in.CustomerID,
		VendorID:         in.VendorID,
		Status:           order.StatusPending,
		EscrowStatus:     order.EscrowNotApplicable,
		PayoutStatus:     order.PayoutNotApplicable,
		CommissionStatus: order.CommissionPending,
		RefundStatus:     order.RefundNone,
		PaymentMethod:    in.PaymentMethod,
		ShippingAddress:  in.ShippingAddress,
		CommissionRate:   s.CommissionRate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.Run.WithTx(ctx, func(q postgres.Querier) error {
		// the unit-of-work may retry on transient conflict: start each
		// attempt from a clean slate
		o.Items = o.Items[:0]
		o.ShippingCents = 0

		var subTotal int64
		for _, it := range c.Items {
			// conditional decrement: the reservation and the availability
			// check are one atomic update, prices snapshot from the same row
			snap, err := s.Stock.AdjustIn(ctx, q, it.ProductID, it.OptionID, -it.Qty)
			if err != nil {
				if errors.Is(err, stock.ErrStockConflict) {
					if cur, lerr := s.Stock.LookupIn(ctx, q, it.ProductID, it.OptionID); lerr == nil {
						return &stock.InsufficientStockError{Available: cur.Stock}
					}
					return err
				}
				return err
			}
			subTotal += snap.PriceCents * int64(it.Qty)
			o.ShippingCents += it.ShippingCents
			o.Items = append(o.Items, order.Item{
				ID:             uuid.NewString(),
				OrderID:        o.ID,
				ProductID:      it.ProductID,
				OptionID:       it.OptionID,
				Qty:            it.Qty,
				UnitPriceCents: snap.PriceCents,
			})
		}

		o.SubTotalCents = subTotal
		o.CommissionCents, o.SellerEarningsCents = order.CommissionCents(subTotal, s.CommissionRate)
		if in.PaymentMethod.Prepaid() {
			o.EscrowCents = subTotal
		}

		if err := s.Orders.Insert(ctx, q, o); err != nil {
			return err
		}
		return s.Carts.ClearIn(ctx, q, in.CustomerID)
	})
	if err != nil {
		return nil, false, err
	}

	s.Cache.Delete(ctx, redisx.CartKey(in.CustomerID))
	s.publishCreated(o)
	return o, false, nil
}

func (s *Service) publishCreated(o *order.Order) {
	items := make([]order.ItemSnapshot, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, order.ItemSnapshot{
			ProductID:      it.ProductID,
			OptionID:       it.OptionID,
			Qty:            it.Qty,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	env := order.Envelope{
		EventID:       uuid.NewString(),
		EventType:     order.EventTypeOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafka.MustMarshal(order.CreatedPayload{
			OrderID:       o.ID,
			ExternalID:    o.ExternalID,
			CustomerID:    o.CustomerID,
			VendorID:      o.VendorID,
			PaymentMethod: o.PaymentMethod,
			SubTotalCents: o.SubTotalCents,
			EscrowCents:   o.EscrowCents,
			Items:         items,
		}),
	}
	s.Pub.Publish(order.TopicOrderCreated, order.PartitionKey(o.ID), kafka.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(order.EventTypeOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

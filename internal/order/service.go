package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/ident"
	"github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/stock"
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(q postgres.Querier) error) error
}

type Store interface {
	GetWithItems(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, q postgres.Querier, id string) (*Order, error)
	Save(ctx context.Context, q postgres.Querier, o *Order) error
	Items(ctx context.Context, q postgres.Querier, orderID string) ([]Item, error)
}

// Restocker returns reserved units to the ledger on refund/cancel.
type Restocker interface {
	AdjustIn(ctx context.Context, q postgres.Querier, productID string, optionID *string, delta int) (stock.Snapshot, error)
}

type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, v any, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Service owns the order lifecycle: every status change goes through
// Transition, which loads the row under lock, applies the state machine and
// persists the result atomically with any restocking.
type Service struct {
	Run         TxRunner
	Store       Store
	Stock       Restocker
	Cache       SnapshotCache
	Pub         Publisher
	ServiceName string
	Log         *zap.Logger
}

// actor-gated events: only an identified admin/vendor actor may fire these.
var requiresActor = map[Event]bool{
	EventReleasePayout:     true,
	EventApproveRefund:     true,
	EventRejectRefund:      true,
	EventCollectCommission: true,
	EventWaiveCommission:   true,
}

func (s *Service) Transition(ctx context.Context, orderID string, ev Event, actorID string) (*Order, error) {
	if err := ident.Validate(orderID); err != nil {
		return nil, err
	}
	if requiresActor[ev] {
		if err := ident.Validate(actorID); err != nil {
			return nil, err
		}
	}

	var out *Order
	err := s.Run.WithTx(ctx, func(q postgres.Querier) error {
		o, err := s.Store.GetForUpdate(ctx, q, orderID)
		if err != nil {
			return err
		}
		if err := Apply(o, ev, actorID, time.Now().UTC()); err != nil {
			return err
		}
		if NeedsRestock(ev) {
			items, err := s.Store.Items(ctx, q, orderID)
			if err != nil {
				return err
			}
			for _, it := range items {
				if _, err := s.Stock.AdjustIn(ctx, q, it.ProductID, it.OptionID, it.Qty); err != nil {
					return err
				}
			}
		}
		if err := s.Store.Save(ctx, q, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Delete(ctx, redisx.OrderKey(orderID))
	s.publish(out, ev)
	return out, nil
}

// Get is a read-through: cached snapshot if present, otherwise storage, with
// a best-effort write-back.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	if err := ident.Validate(orderID); err != nil {
		return nil, err
	}
	key := redisx.OrderKey(orderID)
	if b, ok := s.Cache.Get(ctx, key); ok {
		if o, err := kafka.Unwrap[Order](b); err == nil {
			return &o, nil
		}
	}
	o, err := s.Store.GetWithItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, o, redisx.TTLOrderSnapshot)
	return o, nil
}

var lifecycleTopics = map[Event]struct {
	topic     string
	eventType string
}{
	EventPay:           {TopicOrderPaid, EventTypeOrderPaid},
	EventShip:          {TopicOrderShipped, EventTypeOrderShipped},
	EventDeliver:       {TopicOrderDelivered, EventTypeOrderDelivered},
	EventReleasePayout: {TopicPayoutReleased, EventTypePayoutReleased},
	EventProcessRefund: {TopicOrderRefunded, EventTypeOrderRefunded},
	EventCancel:        {TopicOrderCancelled, EventTypeOrderCancelled},
}

func (s *Service) publish(o *Order, ev Event) {
	lt, ok := lifecycleTopics[ev]
	if !ok {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     lt.eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafka.MustMarshal(TransitionPayload{
			OrderID:          o.ID,
			Event:            ev,
			Status:           o.Status,
			EscrowStatus:     o.EscrowStatus,
			PayoutStatus:     o.PayoutStatus,
			CommissionStatus: o.CommissionStatus,
			RefundStatus:     o.RefundStatus,
			ActorID:          o.PayoutReleasedBy,
		}),
	}
	s.Pub.Publish(lt.topic, PartitionKey(o.ID), kafka.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(lt.eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)

	// fire-and-forget hint for the notification collaborator
	notify := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventTypeNotify,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafka.MustMarshal(NotifyPayload{
			OrderID:    o.ID,
			CustomerID: o.CustomerID,
			VendorID:   o.VendorID,
			Kind:       string(ev),
		}),
	}
	s.Pub.Publish(TopicNotify, PartitionKey(o.ID), kafka.MustMarshal(notify))
}

// Package settlement drives the order state machine from collaborator
// events: payment gateway confirmations and delivery confirmations arrive on
// kafka and become pay/deliver transitions.
package settlement

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/order"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
)

type Transitioner interface {
	Transition(ctx context.Context, orderID string, ev order.Event, actorID string) (*order.Order, error)
}

// Deduper tracks processed event ids. Seen, handle, Mark: the id is claimed
// only after the transition committed, never before.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string, ttl time.Duration) error
}

type Service struct {
	Orders Transitioner
	Dedup  Deduper
	Log    *zap.Logger
}

// HandlePaymentConfirmed is wired as the consumer handler for
// payment.confirmed.
func (s *Service) HandlePaymentConfirmed(ctx context.Context, m kafkago.Message) error {
	return s.handle(ctx, m, order.EventTypePaymentConfirmed, func(env order.Envelope) error {
		p, err := kafka.Unwrap[order.PaymentConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		_, err = s.Orders.Transition(ctx, p.OrderID, order.EventPay, "")
		return s.swallowReplay(err, p.OrderID, order.EventPay)
	})
}

// HandleDeliveryConfirmed is wired as the consumer handler for
// shipping.delivered.
func (s *Service) HandleDeliveryConfirmed(ctx context.Context, m kafkago.Message) error {
	return s.handle(ctx, m, order.EventTypeDeliveryConfirmed, func(env order.Envelope) error {
		p, err := kafka.Unwrap[order.DeliveryConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		_, err = s.Orders.Transition(ctx, p.OrderID, order.EventDeliver, p.ActorID)
		return s.swallowReplay(err, p.OrderID, order.EventDeliver)
	})
}

func (s *Service) handle(ctx context.Context, m kafkago.Message, wantType string, fn func(order.Envelope) error) error {
	var env order.Envelope
	if err := kafka.UnmarshalEnvelope(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != wantType {
		return nil // ignore
	}

	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		s.Log.Warn("dedup check", zap.String("event_id", env.EventID), zap.Error(err))
	} else if seen {
		return nil // already processed
	}

	if err := fn(env); err != nil {
		// the id stays unclaimed: the redelivery gets a full retry
		return err
	}
	if err := s.Dedup.Mark(ctx, env.EventID, redisx.TTLDedup); err != nil {
		// worst case the redelivery re-runs the transition, which
		// swallowReplay absorbs
		s.Log.Warn("dedup mark", zap.String("event_id", env.EventID), zap.Error(err))
	}
	return nil
}

// swallowReplay commits redelivered events that raced the first delivery:
// an illegal transition on a replay means the order already moved on.
func (s *Service) swallowReplay(err error, orderID string, ev order.Event) error {
	var it *order.InvalidTransitionError
	if errors.As(err, &it) {
		s.Log.Info("transition replay ignored",
			zap.String("order_id", orderID),
			zap.String("event", string(ev)),
			zap.String("status", string(it.Status)))
		return nil
	}
	return err
}

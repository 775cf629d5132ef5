package order

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/ident"
	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
	"github.com/ariefcatur/go-marketplace-core/internal/stock"
)

const (
	orderA   = "66666666-6666-4666-8666-666666666666"
	actorOps = "77777777-7777-4777-8777-777777777777"
	prodA    = "88888888-8888-4888-8888-888888888888"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]Order
	items  map[string][]Item
	saves  int
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]Order{}, items: map[string][]Item{}}
}

func (m *memStore) put(o Order, items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	m.items[o.ID] = items
}

func (m *memStore) GetWithItems(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = append([]Item(nil), m.items[id]...)
	return &o, nil
}

func (m *memStore) GetForUpdate(_ context.Context, _ postgres.Querier, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, _ postgres.Querier, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return ErrNotFound
	}
	m.orders[o.ID] = *o
	m.saves++
	return nil
}

func (m *memStore) Items(_ context.Context, _ postgres.Querier, orderID string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.items[orderID]...), nil
}

type recordRestocker struct {
	mu      sync.Mutex
	adjusts map[string]int
}

func (r *recordRestocker) AdjustIn(_ context.Context, _ postgres.Querier, productID string, optionID *string, delta int) (stock.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adjusts == nil {
		r.adjusts = map[string]int{}
	}
	key := productID
	if optionID != nil {
		key += "|" + *optionID
	}
	r.adjusts[key] += delta
	return stock.Snapshot{ProductID: productID, OptionID: optionID}, nil
}

type passRunner struct{}

func (passRunner) WithTx(_ context.Context, fn func(q postgres.Querier) error) error {
	return fn(nil)
}

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes []string
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok
}

func (m *memCache) Set(_ context.Context, key string, v any, _ time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
}

func (m *memCache) Delete(_ context.Context, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		m.deletes = append(m.deletes, k)
	}
}

type memPub struct {
	mu     sync.Mutex
	topics []string
}

func (m *memPub) Publish(topic string, _, _ []byte, _ ...kafkago.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
}

func (m *memPub) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

func newTestService() (*Service, *memStore, *recordRestocker, *memCache, *memPub) {
	store := newMemStore()
	rst := &recordRestocker{}
	cache := newMemCache()
	pub := &memPub{}
	svc := &Service{
		Run:         passRunner{},
		Store:       store,
		Stock:       rst,
		Cache:       cache,
		Pub:         pub,
		ServiceName: "marketplace-test",
		Log:         zap.NewNop(),
	}
	return svc, store, rst, cache, pub
}

func storedOrder(status Status, method PaymentMethod) Order {
	now := time.Now().UTC().Add(-time.Hour)
	return Order{
		ID:                  orderA,
		ExternalID:          "ord-ext-1",
		CustomerID:          "11111111-1111-4111-8111-111111111111",
		VendorID:            "22222222-2222-4222-8222-222222222222",
		Status:              status,
		EscrowStatus:        EscrowNotApplicable,
		PayoutStatus:        PayoutNotApplicable,
		CommissionStatus:    CommissionPending,
		RefundStatus:        RefundNone,
		PaymentMethod:       method,
		SubTotalCents:       10000,
		CommissionCents:     700,
		SellerEarningsCents: 9300,
		CommissionRate:      0.07,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestTransitionPayPublishes(t *testing.T) {
	svc, store, _, cache, pub := newTestService()
	store.put(storedOrder(StatusPending, MethodWallet))
	ctx := context.Background()

	o, err := svc.Transition(ctx, orderA, EventPay, "")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != StatusPaid || o.EscrowStatus != EscrowHeld {
		t.Fatalf("got status=%s escrow=%s", o.Status, o.EscrowStatus)
	}
	got, _ := store.GetWithItems(ctx, orderA)
	if got.Status != StatusPaid {
		t.Fatal("transition not persisted")
	}
	topics := pub.published()
	if len(topics) != 2 || topics[0] != TopicOrderPaid || topics[1] != TopicNotify {
		t.Fatalf("published %v", topics)
	}
	if len(cache.deletes) == 0 {
		t.Fatal("snapshot not invalidated")
	}
}

func TestTransitionRejectsUnknownOrder(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	if _, err := svc.Transition(context.Background(), orderA, EventPay, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := svc.Transition(context.Background(), "oops", EventPay, ""); !errors.Is(err, ident.ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestTransitionRequiresActor(t *testing.T) {
	svc, store, _, _, _ := newTestService()
	o := storedOrder(StatusDelivered, MethodWallet)
	o.EscrowStatus = EscrowPendingRelease
	o.EscrowCents = 10000
	store.put(o)

	if _, err := svc.Transition(context.Background(), orderA, EventReleasePayout, ""); !errors.Is(err, ident.ErrInvalid) {
		t.Fatalf("missing actor: %v", err)
	}
	got, err := svc.Transition(context.Background(), orderA, EventReleasePayout, actorOps)
	if err != nil {
		t.Fatal(err)
	}
	if got.PayoutReleasedBy != actorOps || got.PayoutCents != 9300 {
		t.Fatalf("released by %q payout %d", got.PayoutReleasedBy, got.PayoutCents)
	}
}

func TestTransitionInvalidEventHasNoSideEffects(t *testing.T) {
	svc, store, _, _, pub := newTestService()
	store.put(storedOrder(StatusDelivered, MethodWallet))

	_, err := svc.Transition(context.Background(), orderA, EventPay, "")
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
	if store.saves != 0 {
		t.Fatal("rejected transition was persisted")
	}
	if len(pub.published()) != 0 {
		t.Fatal("rejected transition was published")
	}
}

func TestApproveRefundRestocksExactQuantities(t *testing.T) {
	svc, store, rst, _, _ := newTestService()
	o := storedOrder(StatusRefundRequested, MethodWallet)
	o.EscrowStatus = EscrowHeld
	o.EscrowCents = 10000
	o.RefundStatus = RefundRequested
	opt := "99999999-9999-4999-8999-999999999999"
	store.put(o,
		Item{ID: "i1", OrderID: orderA, ProductID: prodA, Qty: 3, UnitPriceCents: 2000},
		Item{ID: "i2", OrderID: orderA, ProductID: prodA, OptionID: &opt, Qty: 2, UnitPriceCents: 2000},
	)

	got, err := svc.Transition(context.Background(), orderA, EventApproveRefund, actorOps)
	if err != nil {
		t.Fatal(err)
	}
	if got.RefundCents != 10000 {
		t.Fatalf("refund = %d, want full escrow", got.RefundCents)
	}
	if got.CommissionRefundCents+got.SellerDeductionCents != got.RefundCents {
		t.Fatal("refund split does not sum")
	}
	if rst.adjusts[prodA] != 3 {
		t.Fatalf("base product restocked %d, want 3", rst.adjusts[prodA])
	}
	if rst.adjusts[prodA+"|"+opt] != 2 {
		t.Fatalf("optioned product restocked %d, want 2", rst.adjusts[prodA+"|"+opt])
	}
}

func TestCancelRestocks(t *testing.T) {
	svc, store, rst, _, pub := newTestService()
	store.put(storedOrder(StatusPending, MethodCOD),
		Item{ID: "i1", OrderID: orderA, ProductID: prodA, Qty: 4})

	got, err := svc.Transition(context.Background(), orderA, EventCancel, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if rst.adjusts[prodA] != 4 {
		t.Fatalf("restocked %d, want 4", rst.adjusts[prodA])
	}
	topics := pub.published()
	if len(topics) == 0 || topics[0] != TopicOrderCancelled {
		t.Fatalf("published %v", topics)
	}
}

func TestGetReadThrough(t *testing.T) {
	svc, store, _, cache, _ := newTestService()
	o := storedOrder(StatusPaid, MethodWallet)
	store.put(o, Item{ID: "i1", OrderID: orderA, ProductID: prodA, Qty: 1})
	ctx := context.Background()

	first, err := svc.Get(ctx, orderA)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Items) != 1 {
		t.Fatal("items not loaded")
	}

	// second read must come from the snapshot, not storage
	store.mu.Lock()
	delete(store.orders, orderA)
	store.mu.Unlock()

	second, err := svc.Get(ctx, orderA)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != orderA || second.Status != StatusPaid {
		t.Fatalf("cached read returned %+v", second)
	}

	cache.Delete(ctx, keysOf(cache)...)
	if _, err := svc.Get(ctx, orderA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("post-invalidate read: %v", err)
	}
}

func keysOf(c *memCache) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

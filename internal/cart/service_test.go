package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-marketplace-core/internal/ident"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/stock"
)

const (
	userA     = "11111111-1111-4111-8111-111111111111"
	productX  = "33333333-3333-4333-8333-333333333333"
	optionRed = "44444444-4444-4444-8444-444444444444"
)

type fakeStore struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func newFakeStore() *fakeStore { return &fakeStore{carts: map[string]*Cart{}} }

func (f *fakeStore) cart(userID string) *Cart {
	c, ok := f.carts[userID]
	if !ok {
		c = &Cart{UserID: userID}
		f.carts[userID] = c
	}
	return c
}

func (f *fakeStore) Get(_ context.Context, userID string) (*Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cart(userID)
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	return &cp, nil
}

func (f *fakeStore) ItemQty(_ context.Context, userID, productID string, optionID *string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it := f.cart(userID).Find(productID, optionID); it != nil {
		return it.Qty, nil
	}
	return 0, nil
}

func (f *fakeStore) SetItem(_ context.Context, userID string, it Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cart(userID)
	if cur := c.Find(it.ProductID, it.OptionID); cur != nil {
		*cur = it
	} else {
		c.Items = append(c.Items, it)
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) RemoveItem(_ context.Context, userID, productID string, optionID *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cart(userID)
	for i := range c.Items {
		if c.Items[i].ProductID == productID && sameKey(c.Items[i].OptionID, optionID) {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Clear(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart(userID).Items = nil
	return nil
}

type fakeCatalog struct {
	mu    sync.Mutex
	stock map[string]stock.Snapshot // key: product|option
}

func catKey(productID string, optionID *string) string {
	if optionID == nil {
		return productID
	}
	return productID + "|" + *optionID
}

func (f *fakeCatalog) Lookup(_ context.Context, productID string, optionID *string) (stock.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stock[catKey(productID, optionID)]
	if !ok {
		return stock.Snapshot{}, stock.ErrNotFound
	}
	return s, nil
}

// fakeLocker is a real per-key mutex so concurrent tests actually serialize.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLocker() *fakeLocker { return &fakeLocker{locks: map[string]*sync.Mutex{}} }

func (f *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	m, ok := f.locks[key]
	if !ok {
		m = &sync.Mutex{}
		f.locks[key] = m
	}
	f.mu.Unlock()
	m.Lock()
	return "token", nil
}

func (f *fakeLocker) Release(_ context.Context, key, _ string) error {
	f.mu.Lock()
	m := f.locks[key]
	f.mu.Unlock()
	m.Unlock()
	return nil
}

type downLocker struct{}

func (downLocker) Acquire(context.Context, string, time.Duration) (string, error) {
	return "", redisx.ErrLockUnavailable
}
func (downLocker) Release(context.Context, string, string) error { return nil }

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes int
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key]
	return b, ok
}

func (f *fakeCache) Set(_ context.Context, key string, v any, _ time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = b
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	f.deletes++
}

func newService(available int) (*Service, *fakeStore, *fakeCache) {
	store := newFakeStore()
	cache := newFakeCache()
	red := optionRed
	svc := &Service{
		Store: store,
		Catalog: &fakeCatalog{stock: map[string]stock.Snapshot{
			catKey(productX, nil):  {ProductID: productX, Stock: available, PriceCents: 1500},
			catKey(productX, &red): {ProductID: productX, OptionID: &red, Stock: available, PriceCents: 1800},
		}},
		Locks: newFakeLocker(),
		Cache: cache,
		Log:   zap.NewNop(),
	}
	return svc, store, cache
}

func TestAddItemMergesByKey(t *testing.T) {
	svc, _, _ := newService(100)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 2}); err != nil {
		t.Fatal(err)
	}
	c, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Items) != 1 {
		t.Fatalf("got %d line items, want 1", len(c.Items))
	}
	if c.Items[0].Qty != 5 {
		t.Fatalf("merged qty = %d, want 5", c.Items[0].Qty)
	}
}

func TestAddItemOptionIsDistinctKey(t *testing.T) {
	svc, _, _ := newService(100)
	ctx := context.Background()
	red := optionRed

	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 1}); err != nil {
		t.Fatal(err)
	}
	c, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, OptionID: &red, Qty: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Items) != 2 {
		t.Fatalf("got %d line items, want 2 distinct keys", len(c.Items))
	}
}

func TestAddItemInsufficientStock(t *testing.T) {
	svc, _, _ := newService(3)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 4})
	var ins *stock.InsufficientStockError
	if !errors.As(err, &ins) {
		t.Fatalf("want InsufficientStockError, got %v", err)
	}
	if ins.Available != 3 {
		t.Fatalf("available = %d, want 3", ins.Available)
	}

	// merged quantity is capped too
	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 2}); !errors.As(err, &ins) {
		t.Fatalf("merged add over stock: %v", err)
	}
}

func TestAddItemValidation(t *testing.T) {
	svc, _, _ := newService(100)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 0}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("qty 0: %v", err)
	}
	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 51}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("qty 51: %v", err)
	}
	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: "not-a-uuid", Qty: 1}); !errors.Is(err, ident.ErrInvalid) {
		t.Fatalf("bad product id: %v", err)
	}
	weird := `{"$gt":""}`
	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, OptionID: &weird, Qty: 1}); !errors.Is(err, ident.ErrInvalid) {
		t.Fatalf("operator-shaped option id: %v", err)
	}
}

func TestLockUnavailableRejectsMutation(t *testing.T) {
	svc, store, _ := newService(100)
	svc.Locks = downLocker{}
	ctx := context.Background()

	_, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 1})
	if !errors.Is(err, redisx.ErrLockUnavailable) {
		t.Fatalf("want ErrLockUnavailable, got %v", err)
	}
	if c, _ := store.Get(ctx, userA); len(c.Items) != 0 {
		t.Fatal("mutation ran without the lock")
	}
}

func TestRemoveItemExactKeyMatch(t *testing.T) {
	svc, _, _ := newService(100)
	ctx := context.Background()
	red := optionRed

	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, OptionID: &red, Qty: 1}); err != nil {
		t.Fatal(err)
	}

	// nil option must not match the optioned line item
	if err := svc.RemoveItem(ctx, userA, productX, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("nil option matched an optioned item: %v", err)
	}
	if err := svc.RemoveItem(ctx, userA, productX, &red); err != nil {
		t.Fatal(err)
	}
	c, _ := svc.Get(ctx, userA)
	if len(c.Items) != 0 {
		t.Fatal("item not removed")
	}
}

func TestUpdateItemDelta(t *testing.T) {
	svc, _, _ := newService(10)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 5}); err != nil {
		t.Fatal(err)
	}
	c, err := svc.UpdateItem(ctx, userA, productX, nil, -2)
	if err != nil {
		t.Fatal(err)
	}
	if c.Items[0].Qty != 3 {
		t.Fatalf("qty = %d, want 3", c.Items[0].Qty)
	}

	// below 1 is the caller's cue to remove instead
	if _, err := svc.UpdateItem(ctx, userA, productX, nil, -3); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("drop below 1: %v", err)
	}
	// over available stock
	var ins *stock.InsufficientStockError
	if _, err := svc.UpdateItem(ctx, userA, productX, nil, 20); !errors.As(err, &ins) {
		t.Fatalf("over stock: %v", err)
	}
	// unknown key
	red := optionRed
	if _, err := svc.UpdateItem(ctx, userA, productX, &red, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing line item: %v", err)
	}
}

func TestClearInvalidatesCache(t *testing.T) {
	svc, _, cacheF := newService(100)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, userA); err != nil {
		t.Fatal(err)
	}
	before := cacheF.deletes
	if err := svc.Clear(ctx, userA); err != nil {
		t.Fatal(err)
	}
	if cacheF.deletes != before+1 {
		t.Fatal("clear did not invalidate the snapshot")
	}
	c, _ := svc.Get(ctx, userA)
	if len(c.Items) != 0 {
		t.Fatal("cart not cleared")
	}
}

// Concurrent adds to the same line item serialize on the per-resource lock:
// no lost update, final quantity is the sum.
func TestConcurrentAddsMerge(t *testing.T) {
	svc, _, _ := newService(1000)
	ctx := context.Background()

	var g errgroup.Group
	const n = 20
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := svc.AddItem(ctx, userA, ItemInput{ProductID: productX, Qty: 1})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	c, _ := svc.Get(ctx, userA)
	if len(c.Items) != 1 || c.Items[0].Qty != n {
		t.Fatalf("got %d items qty %d, want one item qty %d", len(c.Items), c.Items[0].Qty, n)
	}
}

package cart

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/ident"
	"github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/stock"
)

type Store interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	ItemQty(ctx context.Context, userID, productID string, optionID *string) (int, error)
	SetItem(ctx context.Context, userID string, it Item) error
	RemoveItem(ctx context.Context, userID, productID string, optionID *string) (bool, error)
	Clear(ctx context.Context, userID string) error
}

// Catalog answers availability and price questions from the ledger, never
// from a cache.
type Catalog interface {
	Lookup(ctx context.Context, productID string, optionID *string) (stock.Snapshot, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string, lease time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, v any, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// Service is the cart aggregate. Stock-affecting mutations serialize on the
// per-(product, option) lock so two racing adds cannot both pass the
// availability check; without the lock the mutation is rejected, never run
// unguarded.
type Service struct {
	Store     Store
	Catalog   Catalog
	Locks     Locker
	Cache     SnapshotCache
	LockLease time.Duration
	Log       *zap.Logger
}

func (s *Service) lease() time.Duration {
	if s.LockLease > 0 {
		return s.LockLease
	}
	return 3 * time.Second
}

func validateKey(userID, productID string, optionID *string) error {
	if err := ident.Validate(userID); err != nil {
		return err
	}
	if err := ident.Validate(productID); err != nil {
		return err
	}
	return ident.ValidateOptional(optionID)
}

// AddItem merges in into the user's cart, capped by current availability.
func (s *Service) AddItem(ctx context.Context, userID string, in ItemInput) (*Cart, error) {
	if err := validateKey(userID, in.ProductID, in.OptionID); err != nil {
		return nil, err
	}
	if in.Qty < MinQty || in.Qty > MaxQty {
		return nil, ErrInvalidQuantity
	}

	key := redisx.StockLockKey(in.ProductID, in.OptionID)
	token, err := s.Locks.Acquire(ctx, key, s.lease())
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Locks.Release(ctx, key, token) }()

	snap, err := s.Catalog.Lookup(ctx, in.ProductID, in.OptionID)
	if err != nil {
		return nil, err
	}

	current, err := s.Store.ItemQty(ctx, userID, in.ProductID, in.OptionID)
	if err != nil {
		return nil, err
	}
	merged := current + in.Qty
	if merged > MaxQty {
		return nil, ErrInvalidQuantity
	}
	if merged > snap.Stock {
		return nil, &stock.InsufficientStockError{Available: snap.Stock}
	}

	if err := s.Store.SetItem(ctx, userID, Item{
		ProductID:      in.ProductID,
		OptionID:       in.OptionID,
		Qty:            merged,
		UnitPriceCents: snap.PriceCents,
		ShippingCents:  in.ShippingCents,
	}); err != nil {
		return nil, err
	}
	return s.refresh(ctx, userID)
}

// UpdateItem applies a quantity delta to an existing line item. The result
// must stay within [1, 50] and within availability; removing is RemoveItem's
// job.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, optionID *string, delta int) (*Cart, error) {
	if err := validateKey(userID, productID, optionID); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, ErrInvalidQuantity
	}

	key := redisx.StockLockKey(productID, optionID)
	token, err := s.Locks.Acquire(ctx, key, s.lease())
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Locks.Release(ctx, key, token) }()

	c, err := s.Store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	line := c.Find(productID, optionID)
	if line == nil {
		return nil, ErrNotFound
	}
	next := line.Qty + delta
	if next < MinQty || next > MaxQty {
		return nil, ErrInvalidQuantity
	}

	snap, err := s.Catalog.Lookup(ctx, productID, optionID)
	if err != nil {
		return nil, err
	}
	if next > snap.Stock {
		return nil, &stock.InsufficientStockError{Available: snap.Stock}
	}

	if err := s.Store.SetItem(ctx, userID, Item{
		ProductID:      productID,
		OptionID:       optionID,
		Qty:            next,
		UnitPriceCents: snap.PriceCents,
		ShippingCents:  line.ShippingCents,
	}); err != nil {
		return nil, err
	}
	return s.refresh(ctx, userID)
}

// RemoveItem deletes by exact (product, option) key; a nil option only
// matches line items without an option.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string, optionID *string) error {
	if err := validateKey(userID, productID, optionID); err != nil {
		return err
	}
	removed, err := s.Store.RemoveItem(ctx, userID, productID, optionID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	s.Cache.Delete(ctx, redisx.CartKey(userID))
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := ident.Validate(userID); err != nil {
		return err
	}
	if err := s.Store.Clear(ctx, userID); err != nil {
		return err
	}
	s.Cache.Delete(ctx, redisx.CartKey(userID))
	return nil
}

// Get is a read-through: cache first, storage on miss with write-back.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	if err := ident.Validate(userID); err != nil {
		return nil, err
	}
	key := redisx.CartKey(userID)
	if b, ok := s.Cache.Get(ctx, key); ok {
		if c, err := kafka.Unwrap[Cart](b); err == nil {
			return &c, nil
		}
	}
	c, err := s.Store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, c, redisx.TTLCartSnapshot)
	return c, nil
}

// refresh drops the stale snapshot and writes the fresh one through.
func (s *Service) refresh(ctx context.Context, userID string) (*Cart, error) {
	key := redisx.CartKey(userID)
	s.Cache.Delete(ctx, key)
	c, err := s.Store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, c, redisx.TTLCartSnapshot)
	return c, nil
}

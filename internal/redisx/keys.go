package redisx

import (
	"fmt"
	"time"
)

const (
	// Per-resource mutex for stock-affecting cart mutations:
	// lock:stock:{product_id}:{option_id|-}
	KeyStockLock = "lock:stock:%s:%s"

	// Cart snapshot cache: cart:{user_id}
	KeyCartSnapshot = "cart:%s"

	// Order snapshot cache: order:{order_id}
	KeyOrderSnapshot = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCartSnapshot  = 10 * time.Minute
	TTLOrderSnapshot = 5 * time.Minute
	TTLDedup         = 48 * time.Hour
)

func StockLockKey(productID string, optionID *string) string {
	opt := "-"
	if optionID != nil {
		opt = *optionID
	}
	return fmt.Sprintf(KeyStockLock, productID, opt)
}

func CartKey(userID string) string   { return fmt.Sprintf(KeyCartSnapshot, userID) }
func OrderKey(orderID string) string { return fmt.Sprintf(KeyOrderSnapshot, orderID) }

package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Dedup tracks processed event ids. The caller checks Seen before handling
// and Marks only after handling succeeded, so a failed attempt leaves the id
// unclaimed for the redelivery.
type Dedup struct {
	RDB     *redis.Client
	Service string
}

func (d *Dedup) key(eventID string) string {
	return fmt.Sprintf(KeyDedup, d.Service, eventID)
}

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.RDB.Exists(ctx, d.key(eventID)).Result()
	return n > 0, err
}

func (d *Dedup) Mark(ctx context.Context, eventID string, ttl time.Duration) error {
	return d.RDB.Set(ctx, d.key(eventID), "1", ttl).Err()
}

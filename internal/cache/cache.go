// Package cache is a best-effort snapshot cache over redis. It is advisory
// only: failures are logged and swallowed, and nothing here may feed a stock
// availability decision.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Snapshots struct {
	RDB *redis.Client
	Log *zap.Logger
}

// Get returns the cached JSON snapshot, or (nil, false) on miss or any error.
func (s *Snapshots) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := s.RDB.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.Log.Warn("cache get", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return b, true
}

func (s *Snapshots) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		s.Log.Warn("cache marshal", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.RDB.Set(ctx, key, b, ttl).Err(); err != nil {
		s.Log.Warn("cache set", zap.String("key", key), zap.Error(err))
	}
}

func (s *Snapshots) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.RDB.Del(ctx, keys...).Err(); err != nil {
		s.Log.Warn("cache delete", zap.Strings("keys", keys), zap.Error(err))
	}
}

// DeletePattern drops every key matching pattern (e.g. "cart:*" after a
// bulk promotion expiry). SCAN-based, so safe against large keyspaces.
func (s *Snapshots) DeletePattern(ctx context.Context, pattern string) {
	iter := s.RDB.Scan(ctx, 0, pattern, 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			s.Delete(ctx, batch...)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		s.Log.Warn("cache scan", zap.String("pattern", pattern), zap.Error(err))
	}
	s.Delete(ctx, batch...)
}

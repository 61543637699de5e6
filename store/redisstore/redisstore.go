// Package redisstore wires storecore to Redis via go-redis, for a
// cachegate.Store shared across proxy instances behind a load balancer.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaycache/cachegate/store/storecore"
)

// KV adapts a *redis.Client to storecore.KV.
type KV struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds a storecore.Store over a Redis client. ttl, when nonzero, is
// applied to every write; zero means entries never expire on their own and
// rely on EvictIfFound/purge for removal.
func New(rdb *redis.Client, ttl time.Duration) *storecore.Store {
	return storecore.New(&KV{rdb: rdb, ttl: ttl})
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := k.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	return k.rdb.Set(ctx, key, value, k.ttl).Err()
}

func (k *KV) Delete(ctx context.Context, key string) error {
	return k.rdb.Del(ctx, key).Err()
}

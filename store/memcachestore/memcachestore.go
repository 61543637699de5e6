// Package memcachestore wires storecore to a Memcached cluster via
// gomemcache.
package memcachestore

import (
	"context"
	"errors"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/relaycache/cachegate/store/storecore"
)

// KV adapts a *memcache.Client to storecore.KV.
type KV struct {
	client *memcache.Client
}

// New builds a storecore.Store over a client pointed at the given server
// addresses (host:port strings).
func New(servers ...string) *storecore.Store {
	return NewWithClient(memcache.New(servers...))
}

// NewWithClient builds a storecore.Store over a caller-managed client.
func NewWithClient(client *memcache.Client) *storecore.Store {
	return storecore.New(&KV{client: client})
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item, err := k.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	return k.client.Set(&memcache.Item{Key: key, Value: value})
}

func (k *KV) Delete(ctx context.Context, key string) error {
	err := k.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

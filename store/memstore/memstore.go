// Package memstore wires storecore to an in-process, zero-GC-overhead
// freecache instance, for a cachegate.Store that needs no external
// dependency.
package memstore

import (
	"context"

	"github.com/coocood/freecache"

	"github.com/relaycache/cachegate/store/storecore"
)

// KV adapts *freecache.Cache to storecore.KV.
type KV struct {
	cache *freecache.Cache
}

// New builds a storecore.Store backed by a freecache instance sized to
// sizeBytes. The cache size is clamped to freecache's own 512KB minimum.
func New(sizeBytes int) *storecore.Store {
	return storecore.New(&KV{cache: freecache.NewCache(sizeBytes)})
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := k.cache.Get([]byte(key))
	if err != nil {
		return nil, false, nil
	}
	return v, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	return k.cache.Set([]byte(key), value, 0)
}

func (k *KV) Delete(ctx context.Context, key string) error {
	k.cache.Del([]byte(key))
	return nil
}

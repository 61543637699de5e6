// Package hazelcaststore wires storecore to a Hazelcast distributed map,
// for a cachegate.Store shared across a cluster of proxy instances.
package hazelcaststore

import (
	"context"
	"fmt"

	"github.com/hazelcast/hazelcast-go-client"

	"github.com/relaycache/cachegate/store/storecore"
)

// KV adapts a *hazelcast.Map to storecore.KV.
type KV struct {
	m *hazelcast.Map
}

func mapKey(key string) string { return "cachegate:" + key }

// NewWithMap builds a storecore.Store over a caller-managed Hazelcast map.
func NewWithMap(m *hazelcast.Map) *storecore.Store {
	return storecore.New(&KV{m: m})
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := k.m.Get(ctx, mapKey(key))
	if err != nil {
		return nil, false, err
	}
	if val == nil {
		return nil, false, nil
	}
	data, ok := val.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("hazelcaststore: unexpected value type %T for key %q", val, key)
	}
	return data, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	return k.m.Set(ctx, mapKey(key), value)
}

func (k *KV) Delete(ctx context.Context, key string) error {
	_, err := k.m.Remove(ctx, mapKey(key))
	return err
}

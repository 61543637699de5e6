// Package multistore combines several storecore.KV tiers into one,
// ordered fastest/smallest first. Reads walk the tiers in order and
// promote a hit back into every faster tier; writes and deletes fan out
// to all of them.
package multistore

import (
	"context"

	"github.com/relaycache/cachegate/store/storecore"
)

// MultiKV implements storecore.KV over an ordered list of tiers.
type MultiKV struct {
	tiers []storecore.KV
}

// New builds a MultiKV over tiers, ordered fastest/smallest to
// slowest/largest. Returns nil if no tiers are given.
func New(tiers ...storecore.KV) *MultiKV {
	if len(tiers) == 0 {
		return nil
	}
	return &MultiKV{tiers: tiers}
}

// NewStore is a convenience wrapper returning a ready storecore.Store.
func NewStore(tiers ...storecore.KV) *storecore.Store {
	return storecore.New(New(tiers...))
}

func (m *MultiKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for i, tier := range m.tiers {
		value, ok, err := tier.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			m.promote(ctx, key, value, i)
			return value, true, nil
		}
	}
	return nil, false, nil
}

func (m *MultiKV) Set(ctx context.Context, key string, value []byte) error {
	for _, tier := range m.tiers {
		if err := tier.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiKV) Delete(ctx context.Context, key string) error {
	for _, tier := range m.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// promote writes value into every tier faster than foundAt. Promotion
// errors are best-effort: the lookup already succeeded.
func (m *MultiKV) promote(ctx context.Context, key string, value []byte, foundAt int) {
	for i := 0; i < foundAt; i++ {
		_ = m.tiers[i].Set(ctx, key, value)
	}
}

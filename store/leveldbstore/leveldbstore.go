// Package leveldbstore wires storecore to a local goleveldb database.
package leveldbstore

import (
	"context"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/relaycache/cachegate/store/storecore"
)

// KV adapts *leveldb.DB to storecore.KV.
type KV struct {
	db *leveldb.DB
}

// New opens (or creates) a leveldb database at path and returns a
// storecore.Store over it.
func New(path string) (*storecore.Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB builds a storecore.Store over a caller-managed database.
func NewWithDB(db *leveldb.DB) *storecore.Store {
	return storecore.New(&KV{db: db})
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := k.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	return k.db.Put([]byte(key), value, nil)
}

func (k *KV) Delete(ctx context.Context, key string) error {
	return k.db.Delete([]byte(key), nil)
}

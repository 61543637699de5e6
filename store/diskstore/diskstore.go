// Package diskstore wires storecore to a diskv-backed filesystem tree,
// giving a cachegate.Store that survives process restarts without a
// database dependency.
package diskstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/peterbourgon/diskv"

	"github.com/relaycache/cachegate/store/storecore"
)

// KV adapts *diskv.Diskv to storecore.KV, hashing cache keys into
// filenames the same way the sibling backends do.
type KV struct {
	d *diskv.Diskv
}

// New builds a storecore.Store rooted at basePath.
func New(basePath string) *storecore.Store {
	return storecore.New(&KV{d: diskv.New(diskv.Options{
		BasePath:     basePath,
		CacheSizeMax: 100 * 1024 * 1024,
	})})
}

// NewWithDiskv builds a storecore.Store using a caller-configured Diskv.
func NewWithDiskv(d *diskv.Diskv) *storecore.Store {
	return storecore.New(&KV{d: d})
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := k.d.Read(keyToFilename(key))
	if err != nil {
		return nil, false, nil
	}
	return data, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	return k.d.WriteStream(keyToFilename(key), bytes.NewReader(value), true)
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.d.Erase(keyToFilename(key)); err != nil {
		return nil
	}
	return nil
}

func keyToFilename(key string) string {
	h := sha256.New()
	_, _ = io.WriteString(h, key)
	return hex.EncodeToString(h.Sum(nil))
}

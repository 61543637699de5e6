// Package blobstore wires storecore to Go Cloud Development Kit blob
// storage, giving a cachegate.Store backed by S3, GCS, Azure Blob or any
// other gocloud.dev/blob driver the caller registers.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/relaycache/cachegate/store/storecore"
)

// Config configures a blob-backed store.
type Config struct {
	BucketURL string
	KeyPrefix string
	Timeout   time.Duration
	Bucket    *blob.Bucket
}

func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "cache/"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// KV adapts a *blob.Bucket to storecore.KV.
type KV struct {
	bucket    *blob.Bucket
	keyPrefix string
	timeout   time.Duration
}

// New opens cfg.BucketURL (unless cfg.Bucket is already set) and returns a
// storecore.Store over it.
func New(ctx context.Context, cfg Config) (*storecore.Store, error) {
	cfg = cfg.withDefaults()
	if cfg.Bucket == nil {
		if cfg.BucketURL == "" {
			return nil, fmt.Errorf("blobstore: BucketURL or Bucket must be provided")
		}
		bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
		if err != nil {
			return nil, fmt.Errorf("blobstore: open bucket: %w", err)
		}
		cfg.Bucket = bucket
	}
	return storecore.New(&KV{bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix, timeout: cfg.Timeout}), nil
}

func (k *KV) blobKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return k.keyPrefix + hex.EncodeToString(hash[:])
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	reader, err := k.bucket.NewReader(ctx, k.blobKey(key), nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	writer, err := k.bucket.NewWriter(ctx, k.blobKey(key), nil)
	if err != nil {
		return err
	}
	if _, err := writer.Write(value); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	err := k.bucket.Delete(ctx, k.blobKey(key))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return nil
}

// Package natskvstore wires storecore to a NATS JetStream Key/Value
// bucket.
package natskvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/relaycache/cachegate/store/storecore"
)

// Config configures a NATS K/V-backed store.
type Config struct {
	NATSUrl     string
	Bucket      string
	Description string
	TTL         time.Duration
	NATSOptions []nats.Option
}

// KV adapts a jetstream.KeyValue bucket to storecore.KV.
type KV struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

func bucketKey(key string) string { return "cachegate." + key }

// New connects to cfg.NATSUrl, creates or updates the configured bucket,
// and returns a storecore.Store over it.
func New(ctx context.Context, cfg Config) (*storecore.Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("natskvstore: bucket name is required")
	}
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, cfg.NATSOptions...)
	if err != nil {
		return nil, fmt.Errorf("natskvstore: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natskvstore: jetstream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: cfg.Description,
		TTL:         cfg.TTL,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natskvstore: create bucket: %w", err)
	}

	return storecore.New(&KV{kv: kv, nc: nc}), nil
}

// NewWithKeyValue builds a storecore.Store over a caller-managed bucket.
func NewWithKeyValue(kv jetstream.KeyValue) *storecore.Store {
	return storecore.New(&KV{kv: kv})
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := k.kv.Get(ctx, bucketKey(key))
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.kv.Put(ctx, bucketKey(key), value)
	return err
}

func (k *KV) Delete(ctx context.Context, key string) error {
	err := k.kv.Delete(ctx, bucketKey(key))
	if err == jetstream.ErrKeyNotFound {
		return nil
	}
	return err
}

// Package mongostore wires storecore to a MongoDB collection.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relaycache/cachegate/store/storecore"
)

// Config configures a MongoDB-backed store.
type Config struct {
	URI        string
	Database   string
	Collection string
	KeyPrefix  string
	Timeout    time.Duration
}

// DefaultConfig returns sensible defaults for Collection/KeyPrefix/Timeout.
func DefaultConfig() Config {
	return Config{Collection: "cachegate_entries", KeyPrefix: "cache:", Timeout: 5 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Collection == "" {
		c.Collection = d.Collection
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}

type entryDoc struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// KV adapts a mongo.Collection to storecore.KV.
type KV struct {
	client     *mongo.Client
	collection *mongo.Collection
	keyPrefix  string
	timeout    time.Duration
}

// New connects to cfg.URI and returns a storecore.Store over the
// configured collection.
func New(ctx context.Context, cfg Config) (*storecore.Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongostore: URI is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongostore: database name is required")
	}
	cfg = cfg.withDefaults()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	kv := &KV{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		keyPrefix:  cfg.KeyPrefix,
		timeout:    cfg.Timeout,
	}
	return storecore.New(kv), nil
}

// NewWithClient builds a storecore.Store over a caller-managed client.
func NewWithClient(client *mongo.Client, database, collection string, cfg Config) *storecore.Store {
	cfg = cfg.withDefaults()
	return storecore.New(&KV{
		collection: client.Database(database).Collection(collection),
		keyPrefix:  cfg.KeyPrefix,
		timeout:    cfg.Timeout,
	})
}

func (k *KV) cacheKey(key string) string { return k.keyPrefix + key }

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	var doc entryDoc
	err := k.collection.FindOne(ctx, bson.M{"_id": k.cacheKey(key)}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, false, nil
		}
		return nil, false, err
	}
	return doc.Data, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	doc := entryDoc{Key: k.cacheKey(key), Data: value, UpdatedAt: time.Now()}
	_, err := k.collection.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (k *KV) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	_, err := k.collection.DeleteOne(ctx, bson.M{"_id": k.cacheKey(key)})
	return err
}

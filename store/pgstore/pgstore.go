// Package pgstore wires storecore to PostgreSQL via pgx, for a
// cachegate.Store shared by every process pointed at the same database.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaycache/cachegate/store/storecore"
)

// ErrNilPool is returned when a nil pool is provided to NewWithPool.
var ErrNilPool = errors.New("pgstore: pool cannot be nil")

const (
	// DefaultTableName is the table storecore records are persisted to.
	DefaultTableName = "cachegate_entries"
	// DefaultTimeout bounds every query issued by KV.
	DefaultTimeout = 5 * time.Second
)

// KV adapts a pgx connection pool to storecore.KV.
type KV struct {
	pool      *pgxpool.Pool
	tableName string
	timeout   time.Duration
}

// Config configures a PostgreSQL-backed store.
type Config struct {
	TableName string
	Timeout   time.Duration
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// New opens a pool against connString, creates the table if missing, and
// returns a storecore.Store over it.
func New(ctx context.Context, connString string, cfg *Config) (*storecore.Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return NewWithPool(ctx, pool, cfg)
}

// NewWithPool builds a storecore.Store over a caller-managed pool.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool, cfg *Config) (*storecore.Store, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	cfg = cfg.withDefaults()
	kv := &KV{pool: pool, tableName: cfg.TableName, timeout: cfg.Timeout}
	if err := kv.createTable(ctx); err != nil {
		return nil, err
	}
	return storecore.New(kv), nil
}

func (k *KV) createTable(ctx context.Context) error {
	_, err := k.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+k.tableName+` (
			key TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	var data []byte
	err := k.pool.QueryRow(ctx, `SELECT data FROM `+k.tableName+` WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	_, err := k.pool.Exec(ctx, `
		INSERT INTO `+k.tableName+` (key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = $2, updated_at = $3
	`, key, value, time.Now())
	return err
}

func (k *KV) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	_, err := k.pool.Exec(ctx, `DELETE FROM `+k.tableName+` WHERE key = $1`, key)
	return err
}

// Package neighbors implements cachegate.Neighbors as a NATS pub/sub
// fan-out, generalizing HTCP UDP neighbor broadcast into a
// "purge.<key>" subject any number of sibling caches can subscribe to.
package neighbors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/relaycache/cachegate"
)

// ClearMessage is what NATSPublisher publishes on purge.<key> and what a
// sibling subscriber decodes to act on the invalidation.
type ClearMessage struct {
	Key    string                 `json:"key"`
	URI    string                 `json:"uri"`
	Method string                 `json:"method"`
	Reason cachegate.PurgeReason  `json:"reason"`
}

// NATSPublisher implements cachegate.Neighbors over a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// New wraps nc for publishing neighbor-clear broadcasts. prefix defaults
// to "purge" when empty, giving subjects "purge.<key>".
func New(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "purge"
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// HTCPClear implements cachegate.Neighbors.HTCPClear.
func (p *NATSPublisher) HTCPClear(ctx context.Context, e cachegate.Entry, req *cachegate.Request, method string, reason cachegate.PurgeReason) error {
	key := cachegate.CacheKey(req)
	msg := ClearMessage{Key: key, URI: req.EffectiveURI, Method: method, Reason: reason}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("neighbors: encoding clear message: %w", err)
	}

	subject := p.prefix + "." + key
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("neighbors: publishing to %q: %w", subject, err)
	}
	return nil
}

// Subscribe registers handler for every clear broadcast on prefix.>,
// letting a sibling cache evict its own copy of a purged entry.
func Subscribe(nc *nats.Conn, prefix string, handler func(ClearMessage)) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = "purge"
	}
	return nc.Subscribe(prefix+".>", func(m *nats.Msg) {
		var msg ClearMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			return
		}
		handler(msg)
	})
}

package cachegate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Engine owns the Store/Forwarding/AccessChecker/Neighbors handles and
// drives ReplyContext instances. It replaces the teacher's http.RoundTripper
// Transport: this module isn't invoked by dialing out from a RoundTrip
// call, it's invoked by a stream head handing it a parsed request (spec.md
// §2's "Data flow").
//
// Per spec.md §9's design note, every dependency an original C-style
// implementation would reach for as ambient global state is instead
// injected here at construction time.
type Engine struct {
	store      Store
	forwarding Forwarding
	access     AccessChecker
	neighbors  Neighbors
	logger     *slog.Logger

	cfg config

	collapse singleflight.Group

	metrics *Metrics

	resilience *ResilienceConfig

	qos QoSMarker
}

// config holds every tunable spec.md names, set via Option.
type config struct {
	CollapsedForwarding bool
	Offline             bool
	EnablePurge         bool
	ErrorPconns         bool
	ClientPconns        bool
	PublicCache         bool
	FailOnValidationErr bool
	SendHitDenyList     []string
	Hostname            string
	PeerPassesAuth      bool
	MaxBodyBytes        int64
}

func defaultConfig() config {
	return config{
		CollapsedForwarding: true,
		EnablePurge:         true,
		ErrorPconns:         true,
		ClientPconns:        true,
		Hostname:            "cachegate",
		MaxBodyBytes:        0, // 0 == unlimited
	}
}

var errNilStore = fmt.Errorf("store must not be nil")

// New builds an Engine. Store is required; Forwarding, AccessChecker and
// Neighbors may be nil (forwarding launches fail fast, purge broadcast and
// reply-access become no-ops).
func New(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("cachegate: New: %w", errNilStore)
	}
	e := &Engine{
		store: store,
		cfg:   defaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("cachegate: applying option: %w", err)
		}
	}
	if e.metrics == nil {
		e.metrics = newMetrics(nil)
	}
	return e, nil
}

// ReplyContext is spec.md §3's Reply Context: one per client HTTP
// transaction. It is owned by exactly one goroutine at a time; the
// Engine's collapse group is the only field shared across contexts.
type ReplyContext struct {
	engine *Engine

	ctx    context.Context
	cancel context.CancelFunc

	req *Request

	entry Entry
	sub   Subscription

	reqofs  int64
	reqsize int64

	reply *Reply

	shadow *shadowState

	headersSent        bool
	storeLogicComplete bool
	complete           bool

	collapseRole   CollapseRole
	purgeStatus    int
	firstLookup    string
	firstLookupSet bool

	tag Tag

	deleting atomic.Bool

	qosMarked bool

	mu sync.Mutex
}

// shadowState is spec.md §3's "saved shadow" used only during
// revalidation: the previous entry/subscription/validators kept around in
// case the revalidation needs to fall back to serving the old reply.
type shadowState struct {
	entry        Entry
	sub          Subscription
	lastModified time.Time
	etag         string
	reqofs       int64
}

// Attach creates a ReplyContext for req, the engine's sole construction
// path (spec.md §3's Lifecycle).
func (e *Engine) Attach(ctx context.Context, req *Request) *ReplyContext {
	cctx, cancel := context.WithCancel(ctx)
	return &ReplyContext{
		engine: e,
		ctx:    cctx,
		cancel: cancel,
		req:    req,
	}
}

// Detach tears the context down: unsubscribes and unlocks the current
// entry, unlocks any saved shadow, and releases the cloned reply. Safe to
// call more than once.
func (rc *ReplyContext) Detach() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.deleting.Swap(true) {
		return
	}

	rc.detachCurrentLocked()
	if rc.shadow != nil {
		rc.detachShadowLocked()
	}
	rc.reply = nil
	rc.cancel()
}

func (rc *ReplyContext) detachCurrentLocked() {
	if rc.sub != nil {
		_ = rc.sub.Close()
		rc.sub = nil
	}
	if rc.entry != nil {
		_ = rc.engine.store.Unlock(rc.ctx, rc.entry, "reply-context")
		rc.entry = nil
	}
}

func (rc *ReplyContext) detachShadowLocked() {
	if rc.shadow.sub != nil {
		_ = rc.shadow.sub.Close()
	}
	if rc.shadow.entry != nil {
		_ = rc.engine.store.Unlock(rc.ctx, rc.shadow.entry, "shadow")
	}
	rc.shadow = nil
}

// alive implements spec.md §5's resumption check: validate the
// back-reference is alive and the deleting flag is clear. Every callback
// entry point calls this first.
func (rc *ReplyContext) alive() bool {
	return !rc.deleting.Load()
}

// ReplyStatus implements spec.md §4.1's replyStatus operation.
func (rc *ReplyContext) ReplyStatus() StreamStatus {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.entry == nil {
		return StreamFailed
	}
	if rc.entry.Flags().Aborted {
		return StreamFailed
	}
	if rc.engine.cfg.MaxBodyBytes > 0 && rc.reqofs > rc.engine.cfg.MaxBodyBytes {
		return StreamFailed
	}
	if rc.storeLogicComplete {
		if rc.entry.Flags().BadLength || rc.reqofs < rc.entry.Length() {
			return StreamUnplannedComplete
		}
		return StreamComplete
	}
	return StreamNone
}

package cachegate

import (
	"context"
	"io"
	"time"
)

// EntryFlags mirrors spec.md §3's Store Entry flag set.
type EntryFlags struct {
	Special    bool
	Aborted    bool
	BadLength  bool
}

// EntryStatus is the store-side lifecycle of an Entry.
type EntryStatus int

const (
	EntryPending EntryStatus = iota
	EntryOK
)

// MemoryObject is the in-memory header/reply bundle of an Entry, per
// spec.md §3.
type MemoryObject struct {
	Headers      []byte
	FreshestReply *Reply
	BaseReply     *Reply
}

// Entry is the opaque store-owned object spec.md §3 describes. The engine
// only ever holds a handle returned by Store; it never constructs one
// itself.
type Entry interface {
	Key() string
	StoreID() string
	Flags() EntryFlags
	Memory() *MemoryObject
	Status() EntryStatus
	Date() time.Time
	LastModified() time.Time
	Expires() time.Time
	StoredAt() time.Time
	Length() int64
	RefCount() int32

	// Resident reports whether this entry was already live in the store's
	// process memory at the most recent lookup, as opposed to having just
	// been decoded from a backend round trip. Feeds spec.md §4.3's MEM_HIT
	// tag.
	Resident() bool
}

// CopyBuffer is handed to Store.Copy; the store fills it with the next
// slice of bytes for a subscription.
type CopyBuffer struct {
	Offset int64
	Data   []byte
	Flags  CopyFlags
}

// CopyFlags flags a CopyBuffer delivery.
type CopyFlags struct {
	Error       bool
	TransferDone bool
}

// CopyCallback is invoked by Store.Copy once the requested range is ready.
type CopyCallback func(buf CopyBuffer, err error)

// Subscription is the 1:1 registration between a ReplyContext and an
// Entry described in spec.md §3. It must be replaced, never reused,
// whenever the context's attached entry changes.
type Subscription interface {
	io.Closer
}

// LookupKind distinguishes a public lookup from a private (revalidation
// shadow, purge-synthesized) one.
type LookupKind int

const (
	LookupPublic LookupKind = iota
	LookupPrivate
)

// Store is the external collaborator spec.md §6 names. Concrete
// implementations live under the store subpackages; the engine only ever
// depends on this interface.
type Store interface {
	LookupPublic(ctx context.Context, req *Request, kind LookupKind) (Entry, bool, error)
	Create(ctx context.Context, url, logURI string, flags EntryFlags, method string) (Entry, error)
	AllowCollapsing(ctx context.Context, e Entry, flags RequestFlags, method string) bool
	Subscribe(ctx context.Context, e Entry, cb CopyCallback) (Subscription, error)
	Copy(ctx context.Context, sub Subscription, e Entry, offset int64, size int) error
	Lock(ctx context.Context, e Entry, tag string) error
	Unlock(ctx context.Context, e Entry, tag string) error
	EvictIfFound(ctx context.Context, key string) (bool, error)
	UpdateOnNotModified(ctx context.Context, oldEntry, newEntry Entry) error
	HasIfMatchETag(req *Request, e Entry) bool
	HasIfNoneMatchETag(req *Request, e Entry) bool
	ModifiedSince(e Entry, since time.Time, length int64) bool
	FreshestReply(e Entry) *Reply
	Make304(e Entry) *Reply
}

// Forwarding is the external collaborator that fetches from an origin or
// peer on the engine's behalf.
type Forwarding interface {
	Start(ctx context.Context, target Entry, req *Request) error
}

// AccessDecision is the verdict from AccessChecker.
type AccessDecision int

const (
	AccessAllow AccessDecision = iota
	AccessDeny
)

// ReplyView is a read-only view of a Reply handed to access checks,
// resolving spec.md §9's "ACLChecklist API bug" open question: checks
// never get a mutable pointer into the context's reply.
type ReplyView struct {
	StatusCode int
	Header     map[string][]string
}

func newReplyView(r *Reply) ReplyView {
	h := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		h[k] = v
	}
	return ReplyView{StatusCode: r.StatusCode, Header: h}
}

// AccessChecker is the external reply-access ACL collaborator.
type AccessChecker interface {
	FastCheck(ctx context.Context, req *Request, rv ReplyView) AccessDecision
	NonBlockingCheck(ctx context.Context, req *Request, rv ReplyView, done func(AccessDecision))
}

// Neighbors is the external collaborator that broadcasts invalidation to
// sibling caches.
type Neighbors interface {
	HTCPClear(ctx context.Context, e Entry, req *Request, method string, reason PurgeReason) error
}

package cachegate

import (
	"context"
	"testing"
	"time"
)

type fakeLookupStore struct {
	entry           Entry
	found           bool
	err             error
	allowCollapsing bool
}

func (s *fakeLookupStore) LookupPublic(ctx context.Context, req *Request, kind LookupKind) (Entry, bool, error) {
	return s.entry, s.found, s.err
}
func (s *fakeLookupStore) Create(ctx context.Context, url, logURI string, flags EntryFlags, method string) (Entry, error) {
	return nil, nil
}
func (s *fakeLookupStore) AllowCollapsing(ctx context.Context, e Entry, flags RequestFlags, method string) bool {
	return s.allowCollapsing
}
func (s *fakeLookupStore) Subscribe(ctx context.Context, e Entry, cb CopyCallback) (Subscription, error) {
	return nil, nil
}
func (s *fakeLookupStore) Copy(ctx context.Context, sub Subscription, e Entry, offset int64, size int) error {
	return nil
}
func (s *fakeLookupStore) Lock(ctx context.Context, e Entry, tag string) error   { return nil }
func (s *fakeLookupStore) Unlock(ctx context.Context, e Entry, tag string) error { return nil }
func (s *fakeLookupStore) EvictIfFound(ctx context.Context, key string) (bool, error) {
	return false, nil
}
func (s *fakeLookupStore) UpdateOnNotModified(ctx context.Context, oldEntry, newEntry Entry) error {
	return nil
}
func (s *fakeLookupStore) HasIfMatchETag(req *Request, e Entry) bool     { return false }
func (s *fakeLookupStore) HasIfNoneMatchETag(req *Request, e Entry) bool { return false }
func (s *fakeLookupStore) ModifiedSince(e Entry, since time.Time, length int64) bool {
	return false
}
func (s *fakeLookupStore) FreshestReply(e Entry) *Reply { return nil }
func (s *fakeLookupStore) Make304(e Entry) *Reply       { return nil }

type fakeLookupEntry struct {
	flags    EntryFlags
	resident bool
}

func (e *fakeLookupEntry) Key() string             { return "k" }
func (e *fakeLookupEntry) StoreID() string         { return "k" }
func (e *fakeLookupEntry) Flags() EntryFlags       { return e.flags }
func (e *fakeLookupEntry) Memory() *MemoryObject   { return &MemoryObject{} }
func (e *fakeLookupEntry) Status() EntryStatus     { return EntryOK }
func (e *fakeLookupEntry) Date() time.Time         { return time.Time{} }
func (e *fakeLookupEntry) LastModified() time.Time { return time.Time{} }
func (e *fakeLookupEntry) Expires() time.Time      { return time.Time{} }
func (e *fakeLookupEntry) StoredAt() time.Time     { return time.Time{} }
func (e *fakeLookupEntry) Length() int64           { return 0 }
func (e *fakeLookupEntry) RefCount() int32         { return 0 }
func (e *fakeLookupEntry) Resident() bool          { return e.resident }

func newClassifyContext(store Store, req *Request) *ReplyContext {
	e := &Engine{store: store, cfg: config{CollapsedForwarding: true}, metrics: newMetrics(nil)}
	return &ReplyContext{engine: e, req: req}
}

func TestClassifyNoCacheRequestSkipsStore(t *testing.T) {
	store := &fakeLookupStore{}
	rc := newClassifyContext(store, &Request{Flags: RequestFlags{NoCache: true}})
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictMiss || result.detail != "no-cache" {
		t.Fatalf("result = %+v, want MISS/no-cache", result)
	}
}

func TestClassifyInternalNoCacheStillQueriesStore(t *testing.T) {
	entry := &fakeLookupEntry{}
	store := &fakeLookupStore{entry: entry, found: true}
	rc := newClassifyContext(store, &Request{Flags: RequestFlags{NoCache: true, Internal: true}})
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictClientRefreshMiss {
		t.Fatalf("verdict = %v, want CLIENT_REFRESH_MISS", result.verdict)
	}
}

func TestClassifyMissWhenNotFound(t *testing.T) {
	store := &fakeLookupStore{found: false}
	rc := newClassifyContext(store, &Request{})
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictMiss || result.detail != "miss" {
		t.Fatalf("result = %+v, want MISS/miss", result)
	}
}

func TestClassifyOfflineAlwaysHits(t *testing.T) {
	entry := &fakeLookupEntry{}
	store := &fakeLookupStore{entry: entry, found: true}
	rc := newClassifyContext(store, &Request{})
	rc.engine.cfg.Offline = true
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictHit || result.entry != entry {
		t.Fatalf("result = %+v, want HIT with entry", result)
	}
}

func TestClassifyBadLengthIsInvalidMiss(t *testing.T) {
	entry := &fakeLookupEntry{flags: EntryFlags{BadLength: true}}
	store := &fakeLookupStore{entry: entry, found: true}
	rc := newClassifyContext(store, &Request{})
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictInvalidMiss {
		t.Fatalf("verdict = %v, want INVALID_MISS", result.verdict)
	}
}

func TestClassifySpecialEntryAlwaysHits(t *testing.T) {
	entry := &fakeLookupEntry{flags: EntryFlags{Special: true}}
	store := &fakeLookupStore{entry: entry, found: true}
	rc := newClassifyContext(store, &Request{Flags: RequestFlags{NoCache: true, Internal: true}})
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictHit {
		t.Fatalf("verdict = %v, want HIT for a SPECIAL entry even with client no-cache", result.verdict)
	}
}

func TestClassifyClientNoCacheIsClientRefreshMiss(t *testing.T) {
	entry := &fakeLookupEntry{}
	store := &fakeLookupStore{entry: entry, found: true}
	rc := newClassifyContext(store, &Request{Flags: RequestFlags{NoCache: true, Internal: true}})
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictClientRefreshMiss {
		t.Fatalf("verdict = %v, want CLIENT_REFRESH_MISS", result.verdict)
	}
}

func TestClassifyCollapseProhibitedMiss(t *testing.T) {
	entry := &fakeLookupEntry{}
	store := &fakeLookupStore{entry: entry, found: true, allowCollapsing: true}
	rc := newClassifyContext(store, &Request{})
	rc.engine.cfg.CollapsedForwarding = false
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictCollapseProhibitedMiss {
		t.Fatalf("verdict = %v, want COLLAPSE_PROHIBITED_MISS", result.verdict)
	}
}

func TestClassifyPlainHit(t *testing.T) {
	entry := &fakeLookupEntry{}
	store := &fakeLookupStore{entry: entry, found: true}
	rc := newClassifyContext(store, &Request{})
	result, err := rc.classify(context.Background())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.verdict != VerdictHit || result.entry != entry {
		t.Fatalf("result = %+v, want HIT with entry", result)
	}
}

func TestRecordFirstLookupOnlySetsOnce(t *testing.T) {
	rc := &ReplyContext{}
	rc.recordFirstLookup("hit")
	rc.recordFirstLookup("miss")
	if rc.firstLookup != "hit" {
		t.Fatalf("firstLookup = %q, want the first recorded value", rc.firstLookup)
	}
}

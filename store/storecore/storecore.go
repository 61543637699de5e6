// Package storecore implements the cachegate.Store interface once, over a
// pluggable KV persistence backend. Every concrete store/* package wires
// its own client library in as a KV and gets entry lifecycle, locking,
// subscription and conditional-header logic for free.
package storecore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaycache/cachegate"
)

// KV is the minimal persistence contract a backend must provide. Get
// returns ok=false for a missing key without an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store implements cachegate.Store over kv. Runtime bookkeeping that has
// no business crossing a process boundary anyway - locks, refcounts,
// subscriptions - lives in-process; kv only persists the entry's
// serialized headers/reply/body so a lookup survives a restart or is
// visible to a sibling process sharing the same backend.
type Store struct {
	kv KV

	mu      sync.Mutex
	records map[string]*record // live entries, keyed by cachegate.CacheKey (method and URL)
}

// New builds a Store over kv.
func New(kv KV) *Store {
	return &Store{kv: kv, records: make(map[string]*record)}
}

type record struct {
	mu sync.Mutex

	key      string
	storeID  string
	flags    cachegate.EntryFlags
	status   cachegate.EntryStatus
	date     time.Time
	lastMod  time.Time
	expires  time.Time
	storedAt time.Time
	length   int64
	refCount atomic.Int32
	resident atomic.Bool

	mem cachegate.MemoryObject

	lockTags map[string]bool
}

func (r *record) Key() string                      { return r.key }
func (r *record) StoreID() string                  { return r.storeID }
func (r *record) Flags() cachegate.EntryFlags       { return r.flags }
func (r *record) Memory() *cachegate.MemoryObject   { return &r.mem }
func (r *record) Status() cachegate.EntryStatus     { return r.status }
func (r *record) Date() time.Time                   { return r.date }
func (r *record) LastModified() time.Time            { return r.lastMod }
func (r *record) Expires() time.Time                 { return r.expires }
func (r *record) StoredAt() time.Time                { return r.storedAt }
func (r *record) Length() int64                      { return r.length }
func (r *record) RefCount() int32                     { return r.refCount.Load() }
func (r *record) Resident() bool                      { return r.resident.Load() }

type subscription struct {
	rec    *record
	cb     cachegate.CopyCallback
	closed atomic.Bool
}

func (s *subscription) Close() error {
	s.closed.Store(true)
	return nil
}

// wireEntry is the JSON-serializable projection of a record persisted to
// kv once it reaches EntryOK.
type wireEntry struct {
	Key          string               `json:"key"`
	StoreID      string               `json:"store_id"`
	Flags        cachegate.EntryFlags `json:"flags"`
	Date         time.Time            `json:"date"`
	LastModified time.Time            `json:"last_modified"`
	Expires      time.Time            `json:"expires"`
	StoredAt     time.Time            `json:"stored_at"`
	Length       int64                `json:"length"`
	ReplyStatus  int                  `json:"reply_status"`
	ReplyHeader  http.Header          `json:"reply_header"`
	ReplyProto   string               `json:"reply_proto"`
	ReplyBody    []byte               `json:"reply_body"`
}

// LookupPublic implements cachegate.Store.LookupPublic.
func (s *Store) LookupPublic(ctx context.Context, req *cachegate.Request, kind cachegate.LookupKind) (cachegate.Entry, bool, error) {
	key := cachegate.CacheKey(req)

	s.mu.Lock()
	if rec, ok := s.records[key]; ok {
		s.mu.Unlock()
		rec.resident.Store(true)
		return rec, true, nil
	}
	s.mu.Unlock()

	if kind == cachegate.LookupPrivate {
		return nil, false, nil
	}

	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("storecore: lookup %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, false, fmt.Errorf("storecore: decoding %q: %w", key, err)
	}

	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()
	return rec, true, nil
}

// Create implements cachegate.Store.Create.
func (s *Store) Create(ctx context.Context, url, logURI string, flags cachegate.EntryFlags, method string) (cachegate.Entry, error) {
	req := &cachegate.Request{Method: method, EffectiveURI: url}
	key := cachegate.CacheKey(req)

	rec := &record{
		key:      key,
		storeID:  url,
		flags:    flags,
		status:   cachegate.EntryPending,
		lockTags: make(map[string]bool),
	}
	rec.resident.Store(true)

	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()

	_ = logURI
	return rec, nil
}

// AllowCollapsing implements cachegate.Store.AllowCollapsing: storecore has
// no SMP-shared-memory notion, so every request is eligible as far as the
// store is concerned; the engine's own singleflight group is the dedup
// point (see collapse.go's grounding note).
func (s *Store) AllowCollapsing(ctx context.Context, e cachegate.Entry, flags cachegate.RequestFlags, method string) bool {
	return true
}

// Subscribe implements cachegate.Store.Subscribe.
func (s *Store) Subscribe(ctx context.Context, e cachegate.Entry, cb cachegate.CopyCallback) (cachegate.Subscription, error) {
	rec, ok := e.(*record)
	if !ok {
		return nil, fmt.Errorf("storecore: foreign entry type %T", e)
	}
	return &subscription{rec: rec, cb: cb}, nil
}

// Copy implements cachegate.Store.Copy. Because Deliver (called by a
// Forwarding implementation) populates the entire reply before this
// module's streaming pump ever calls Copy, Copy can resolve synchronously.
func (s *Store) Copy(ctx context.Context, sub cachegate.Subscription, e cachegate.Entry, offset int64, size int) error {
	ss, ok := sub.(*subscription)
	if !ok {
		return fmt.Errorf("storecore: foreign subscription type %T", sub)
	}
	if ss.closed.Load() {
		return nil
	}

	rec, ok := e.(*record)
	if !ok {
		return fmt.Errorf("storecore: foreign entry type %T", e)
	}

	rec.mu.Lock()
	var body []byte
	if rec.mem.FreshestReply != nil {
		body = rec.mem.FreshestReply.Body
	}
	var headerBytes []byte
	if offset == 0 {
		headerBytes = rec.mem.Headers
	}
	status := rec.status
	rec.mu.Unlock()

	if headerBytes != nil && offset == 0 && size > 0 {
		ss.cb(cachegate.CopyBuffer{Offset: offset, Data: headerBytes}, nil)
		return nil
	}

	end := offset + int64(size)
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	var chunk []byte
	if offset < int64(len(body)) && offset <= end {
		chunk = body[offset:end]
	}

	done := status == cachegate.EntryOK && end >= int64(len(body))
	ss.cb(cachegate.CopyBuffer{Offset: offset, Data: chunk, Flags: cachegate.CopyFlags{TransferDone: done}}, nil)
	return nil
}

// Lock implements cachegate.Store.Lock.
func (s *Store) Lock(ctx context.Context, e cachegate.Entry, tag string) error {
	rec, ok := e.(*record)
	if !ok {
		return fmt.Errorf("storecore: foreign entry type %T", e)
	}
	rec.refCount.Add(1)
	rec.mu.Lock()
	rec.lockTags[tag] = true
	rec.mu.Unlock()
	return nil
}

// Unlock implements cachegate.Store.Unlock.
func (s *Store) Unlock(ctx context.Context, e cachegate.Entry, tag string) error {
	rec, ok := e.(*record)
	if !ok {
		return fmt.Errorf("storecore: foreign entry type %T", e)
	}
	rec.refCount.Add(-1)
	rec.mu.Lock()
	delete(rec.lockTags, tag)
	rec.mu.Unlock()
	return nil
}

// EvictIfFound implements cachegate.Store.EvictIfFound.
func (s *Store) EvictIfFound(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, inMemory := s.records[key]
	delete(s.records, key)
	s.mu.Unlock()

	_, existedInKV, err := s.kv.Get(ctx, key)
	if err != nil {
		return inMemory, fmt.Errorf("storecore: evict lookup %q: %w", key, err)
	}
	if existedInKV {
		if err := s.kv.Delete(ctx, key); err != nil {
			return inMemory, fmt.Errorf("storecore: evict %q: %w", key, err)
		}
	}
	return inMemory || existedInKV, nil
}

// UpdateOnNotModified implements cachegate.Store.UpdateOnNotModified: merge
// the freshened metadata from a 304 revalidation response into the old
// entry (spec.md §4.4's "merge the freshened metadata").
func (s *Store) UpdateOnNotModified(ctx context.Context, oldEntry, newEntry cachegate.Entry) error {
	oldRec, ok := oldEntry.(*record)
	if !ok {
		return fmt.Errorf("storecore: foreign entry type %T", oldEntry)
	}
	newRec, ok := newEntry.(*record)
	if !ok {
		return fmt.Errorf("storecore: foreign entry type %T", newEntry)
	}

	newRec.mu.Lock()
	newHeader := newRec.mem.FreshestReply
	newRec.mu.Unlock()

	oldRec.mu.Lock()
	if newHeader != nil && oldRec.mem.FreshestReply != nil {
		for k, v := range newHeader.Header {
			oldRec.mem.FreshestReply.Header[k] = v
		}
	}
	oldRec.storedAt = time.Now()
	oldRec.lastMod = newRec.lastMod
	body := oldRec
	oldRec.mu.Unlock()

	return s.persist(ctx, body)
}

// HasIfMatchETag implements cachegate.Store.HasIfMatchETag.
func (s *Store) HasIfMatchETag(req *cachegate.Request, e cachegate.Entry) bool {
	etag := entryETag(e)
	if etag == "" {
		return false
	}
	for _, candidate := range req.IfMatch {
		if candidate == "*" || etagsEqual(candidate, etag) {
			return true
		}
	}
	return false
}

// HasIfNoneMatchETag implements cachegate.Store.HasIfNoneMatchETag.
func (s *Store) HasIfNoneMatchETag(req *cachegate.Request, e cachegate.Entry) bool {
	etag := entryETag(e)
	if etag == "" {
		return false
	}
	for _, candidate := range req.IfNoneMatch {
		if candidate == "*" || etagsEqual(candidate, etag) {
			return true
		}
	}
	return false
}

// ModifiedSince implements cachegate.Store.ModifiedSince.
func (s *Store) ModifiedSince(e cachegate.Entry, since time.Time, length int64) bool {
	if length >= 0 && e.Length() != length {
		return true
	}
	return e.LastModified().After(since)
}

// FreshestReply implements cachegate.Store.FreshestReply.
func (s *Store) FreshestReply(e cachegate.Entry) *cachegate.Reply {
	rec, ok := e.(*record)
	if !ok {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.mem.FreshestReply
}

// Make304 implements cachegate.Store.Make304.
func (s *Store) Make304(e cachegate.Entry) *cachegate.Reply {
	reply := s.FreshestReply(e)
	r := &cachegate.Reply{StatusCode: http.StatusNotModified, Header: make(http.Header)}
	if reply == nil {
		return r
	}
	if lm := reply.Header.Get("last-modified"); lm != "" {
		r.Header.Set("Last-Modified", lm)
	}
	if et := reply.Header.Get("etag"); et != "" {
		r.Header.Set("ETag", et)
	}
	return r
}

// Deliver is called by a Forwarding implementation (or a test double)
// once an upstream response is available, populating the entry's memory
// object and, when final, persisting it to kv and marking it EntryOK.
func (s *Store) Deliver(ctx context.Context, e cachegate.Entry, reply *cachegate.Reply, final bool) error {
	rec, ok := e.(*record)
	if !ok {
		return fmt.Errorf("storecore: foreign entry type %T", e)
	}

	rec.mu.Lock()
	rec.mem.FreshestReply = reply
	if rec.mem.BaseReply == nil {
		rec.mem.BaseReply = reply
	}
	if reply != nil {
		rec.length = int64(len(reply.Body))
		if lm := reply.Header.Get("last-modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				rec.lastMod = t
			}
		}
		if d := reply.Header.Get("date"); d != "" {
			if t, err := http.ParseTime(d); err == nil {
				rec.date = t
			}
		}
	}
	if final {
		rec.status = cachegate.EntryOK
		rec.storedAt = time.Now()
	}
	rec.mu.Unlock()

	if final {
		return s.persist(ctx, rec)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, rec *record) error {
	rec.mu.Lock()
	w := wireEntry{
		Key: rec.key, StoreID: rec.storeID, Flags: rec.flags,
		Date: rec.date, LastModified: rec.lastMod, Expires: rec.expires, StoredAt: rec.storedAt,
		Length: rec.length,
	}
	if rec.mem.FreshestReply != nil {
		w.ReplyStatus = rec.mem.FreshestReply.StatusCode
		w.ReplyHeader = rec.mem.FreshestReply.Header
		w.ReplyProto = rec.mem.FreshestReply.Proto
		w.ReplyBody = rec.mem.FreshestReply.Body
	}
	rec.mu.Unlock()

	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("storecore: encoding %q: %w", rec.key, err)
	}
	if err := s.kv.Set(ctx, rec.key, raw); err != nil {
		return fmt.Errorf("storecore: persisting %q: %w", rec.key, err)
	}
	return nil
}

func decodeRecord(raw []byte) (*record, error) {
	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	rec := &record{
		key: w.Key, storeID: w.StoreID, flags: w.Flags,
		date: w.Date, lastMod: w.LastModified, expires: w.Expires, storedAt: w.StoredAt,
		length: w.Length, status: cachegate.EntryOK, lockTags: make(map[string]bool),
	}
	rec.mem.FreshestReply = &cachegate.Reply{
		StatusCode: w.ReplyStatus, Header: w.ReplyHeader, Proto: w.ReplyProto, Body: w.ReplyBody,
	}
	rec.mem.BaseReply = rec.mem.FreshestReply
	return rec, nil
}

func entryETag(e cachegate.Entry) string {
	rec, ok := e.(*record)
	if !ok {
		return ""
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.mem.FreshestReply == nil {
		return ""
	}
	return rec.mem.FreshestReply.Header.Get("etag")
}

func etagsEqual(a, b string) bool {
	return trimWeak(a) == trimWeak(b)
}

func trimWeak(etag string) string {
	if len(etag) > 2 && etag[0:2] == "W/" {
		return etag[2:]
	}
	return etag
}

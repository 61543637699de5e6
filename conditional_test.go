package cachegate

import (
	"net/http"
	"testing"
	"time"
)

type fakeConditionalStore struct {
	fakeLookupStore
	freshest       *Reply
	ifMatch        bool
	ifNoneMatch    bool
	modifiedSince  bool
}

func (s *fakeConditionalStore) FreshestReply(e Entry) *Reply                  { return s.freshest }
func (s *fakeConditionalStore) HasIfMatchETag(req *Request, e Entry) bool     { return s.ifMatch }
func (s *fakeConditionalStore) HasIfNoneMatchETag(req *Request, e Entry) bool { return s.ifNoneMatch }
func (s *fakeConditionalStore) ModifiedSince(e Entry, since time.Time, length int64) bool {
	return s.modifiedSince
}

func okReply() *Reply { return &Reply{StatusCode: http.StatusOK, Header: http.Header{}} }

func TestEvaluateConditionalNonOKFreshestFallsThrough(t *testing.T) {
	store := &fakeConditionalStore{freshest: &Reply{StatusCode: http.StatusNotFound}}
	outcome, _ := evaluateConditional(&Request{}, &fakeLookupEntry{}, store)
	if outcome != conditionalFallThrough {
		t.Fatalf("outcome = %v, want fall-through for non-200 stored reply", outcome)
	}
}

func TestEvaluateConditionalIfMatchFailureIsPreconditionFailed(t *testing.T) {
	store := &fakeConditionalStore{freshest: okReply(), ifMatch: false}
	outcome, status := evaluateConditional(&Request{IfMatch: []string{`"x"`}}, &fakeLookupEntry{}, store)
	if outcome != conditionalHandled || status != http.StatusPreconditionFailed {
		t.Fatalf("outcome=%v status=%d, want handled/412", outcome, status)
	}
}

func TestEvaluateConditionalIfNoneMatchGetIsNotModified(t *testing.T) {
	store := &fakeConditionalStore{freshest: okReply(), ifNoneMatch: true}
	outcome, status := evaluateConditional(&Request{Method: http.MethodGet, IfNoneMatch: []string{`"x"`}}, &fakeLookupEntry{}, store)
	if outcome != conditionalHandled || status != http.StatusNotModified {
		t.Fatalf("outcome=%v status=%d, want handled/304", outcome, status)
	}
}

func TestEvaluateConditionalIfNoneMatchNonGetIsPreconditionFailed(t *testing.T) {
	store := &fakeConditionalStore{freshest: okReply(), ifNoneMatch: true}
	outcome, status := evaluateConditional(&Request{Method: http.MethodPost, IfNoneMatch: []string{`"x"`}}, &fakeLookupEntry{}, store)
	if outcome != conditionalHandled || status != http.StatusPreconditionFailed {
		t.Fatalf("outcome=%v status=%d, want handled/412", outcome, status)
	}
}

func TestEvaluateConditionalIfNoneMatchNoMatchFallsThrough(t *testing.T) {
	store := &fakeConditionalStore{freshest: okReply(), ifNoneMatch: false}
	outcome, _ := evaluateConditional(&Request{IfNoneMatch: []string{`"x"`}}, &fakeLookupEntry{}, store)
	if outcome != conditionalFallThrough {
		t.Fatalf("outcome = %v, want fall-through when no etag matches", outcome)
	}
}

func TestEvaluateConditionalIMSNotModifiedIsNotModified(t *testing.T) {
	store := &fakeConditionalStore{freshest: okReply(), modifiedSince: false}
	req := &Request{IMSTime: time.Now()}
	outcome, status := evaluateConditional(req, &fakeLookupEntry{}, store)
	if outcome != conditionalHandled || status != http.StatusNotModified {
		t.Fatalf("outcome=%v status=%d, want handled/304", outcome, status)
	}
}

func TestEvaluateConditionalIMSModifiedFallsThrough(t *testing.T) {
	store := &fakeConditionalStore{freshest: okReply(), modifiedSince: true}
	req := &Request{IMSTime: time.Now()}
	outcome, _ := evaluateConditional(req, &fakeLookupEntry{}, store)
	if outcome != conditionalFallThrough {
		t.Fatalf("outcome = %v, want fall-through when modified since", outcome)
	}
}

func TestEvaluateConditionalNoConditionalHeadersFallsThrough(t *testing.T) {
	store := &fakeConditionalStore{freshest: okReply()}
	outcome, _ := evaluateConditional(&Request{}, &fakeLookupEntry{}, store)
	if outcome != conditionalFallThrough {
		t.Fatalf("outcome = %v, want fall-through with no conditional headers", outcome)
	}
}

func TestIsNegativeCache(t *testing.T) {
	if !isNegativeCache(&Reply{StatusCode: 404}) {
		t.Fatal("expected 404 to be a negative-cache status")
	}
	if isNegativeCache(&Reply{StatusCode: 200}) {
		t.Fatal("expected 200 not to be a negative-cache status")
	}
	if isNegativeCache(&Reply{StatusCode: 500}) {
		t.Fatal("expected 500 not to be a negative-cache status")
	}
}

func TestIsHTTPScheme(t *testing.T) {
	if !isHTTPScheme("http://example.com") {
		t.Fatal("expected http:// to match")
	}
	if !isHTTPScheme("https://example.com") {
		t.Fatal("expected https:// to match (shares the http prefix)")
	}
	if isHTTPScheme("ftp://example.com") {
		t.Fatal("expected ftp:// not to match")
	}
}

func TestIsPurgeMethod(t *testing.T) {
	if !isPurgeMethod("PURGE") {
		t.Fatal("expected PURGE to be recognized")
	}
	if isPurgeMethod("GET") {
		t.Fatal("expected GET not to be recognized as PURGE")
	}
}

func TestIsConditional(t *testing.T) {
	if isConditional(&Request{}) {
		t.Fatal("expected a bare request not to be conditional")
	}
	if !isConditional(&Request{IfMatch: []string{`"x"`}}) {
		t.Fatal("expected If-Match to make the request conditional")
	}
	if !isConditional(&Request{IfNoneMatch: []string{`"x"`}}) {
		t.Fatal("expected If-None-Match to make the request conditional")
	}
	if !isConditional(&Request{IMSTime: time.Now()}) {
		t.Fatal("expected a non-zero If-Modified-Since to make the request conditional")
	}
}

func TestRecordFirstLookupConcurrentCallersSeeFirstWinner(t *testing.T) {
	rc := &ReplyContext{}
	done := make(chan struct{})
	go func() {
		rc.recordFirstLookup("a")
		close(done)
	}()
	<-done
	rc.recordFirstLookup("b")
	if rc.firstLookup != "a" {
		t.Fatalf("firstLookup = %q, want a", rc.firstLookup)
	}
}

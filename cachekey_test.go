package cachegate

import "testing"

func TestCacheKeyGetHasNoMethodPrefix(t *testing.T) {
	req := &Request{Method: "GET", EffectiveURI: "http://example.com/a"}
	if got := cacheKey(req); got != "http://example.com/a" {
		t.Fatalf("cacheKey(GET) = %q, want bare URI", got)
	}
	if got := CacheKey(req); got != cacheKey(req) {
		t.Fatalf("CacheKey diverged from cacheKey: %q vs %q", got, cacheKey(req))
	}
}

func TestCacheKeyNonGetCarriesMethodPrefix(t *testing.T) {
	req := &Request{Method: "PURGE", EffectiveURI: "http://example.com/a"}
	want := "PURGE http://example.com/a"
	if got := cacheKey(req); got != want {
		t.Fatalf("cacheKey(PURGE) = %q, want %q", got, want)
	}
}

func TestCacheKeyWithHeadersSortsAndFilters(t *testing.T) {
	req := &Request{
		Method:       "GET",
		EffectiveURI: "http://example.com/a",
		Header: map[string][]string{
			"Accept-Language": {"en"},
			"X-Empty":         {""},
		},
	}
	got := cacheKeyWithHeaders(req, []string{"X-Empty", "Accept-Language"})
	want := "http://example.com/a|Accept-Language:en"
	if got != want {
		t.Fatalf("cacheKeyWithHeaders = %q, want %q", got, want)
	}
}

func TestCacheKeyWithHeadersNoMatchingHeadersLeavesKeyBare(t *testing.T) {
	req := &Request{Method: "GET", EffectiveURI: "http://example.com/a"}
	if got := cacheKeyWithHeaders(req, []string{"X-Missing"}); got != req.EffectiveURI {
		t.Fatalf("cacheKeyWithHeaders = %q, want bare URI", got)
	}
}

package cachegate

import (
	"net/http"
	"testing"
)

func TestParseCacheControlBasic(t *testing.T) {
	h := http.Header{"Cache-Control": {"max-age=60, no-transform"}}
	cc := parseCacheControl(h, discardLogger())
	if cc[ccMaxAge] != "60" {
		t.Fatalf("max-age = %q, want 60", cc[ccMaxAge])
	}
	if _, ok := cc["no-transform"]; !ok {
		t.Fatal("expected no-transform directive present with empty value")
	}
}

func TestParseCacheControlDuplicateKeepsFirst(t *testing.T) {
	h := http.Header{"Cache-Control": {"max-age=60, max-age=120"}}
	cc := parseCacheControl(h, discardLogger())
	if cc[ccMaxAge] != "60" {
		t.Fatalf("max-age = %q, want first value 60", cc[ccMaxAge])
	}
}

func TestParseCacheControlPrivateOverridesPublic(t *testing.T) {
	h := http.Header{"Cache-Control": {"public, private"}}
	cc := parseCacheControl(h, discardLogger())
	if _, ok := cc[ccPublic]; ok {
		t.Fatal("expected public to be dropped when private is also present")
	}
}

func TestParseCacheControlInvalidMaxAgeIsDropped(t *testing.T) {
	h := http.Header{"Cache-Control": {"max-age=notanumber"}}
	cc := parseCacheControl(h, discardLogger())
	if _, ok := cc[ccMaxAge]; ok {
		t.Fatal("expected invalid max-age to be dropped")
	}
}

func TestParseCacheControlNegativeMaxAgeClampedToZero(t *testing.T) {
	h := http.Header{"Cache-Control": {"max-age=-10"}}
	cc := parseCacheControl(h, discardLogger())
	if cc[ccMaxAge] != "0" {
		t.Fatalf("max-age = %q, want 0", cc[ccMaxAge])
	}
}

func TestCanStoreRejectsNoStoreInResponse(t *testing.T) {
	resp := cacheControl{ccNoStore: ""}
	if canStore(false, cacheControl{}, resp, false, 200, discardLogger()) {
		t.Fatal("expected no-store in response to forbid storage")
	}
}

func TestCanStoreRejectsNoStoreInRequest(t *testing.T) {
	req := cacheControl{ccNoStore: ""}
	if canStore(false, req, cacheControl{}, false, 200, discardLogger()) {
		t.Fatal("expected no-store in request to forbid storage")
	}
}

func TestCanStoreRejectsAuthorizedSharedWithoutPublicDirective(t *testing.T) {
	if canStore(true, cacheControl{}, cacheControl{}, true, 200, discardLogger()) {
		t.Fatal("expected shared cache to refuse an authorized response with no public/must-revalidate/s-maxage")
	}
}

func TestCanStoreAllowsAuthorizedSharedWithPublicDirective(t *testing.T) {
	resp := cacheControl{ccPublic: ""}
	if !canStore(true, cacheControl{}, resp, true, 200, discardLogger()) {
		t.Fatal("expected shared cache to allow an authorized response marked public")
	}
}

func TestCanStoreRejectsPrivateInSharedCache(t *testing.T) {
	resp := cacheControl{ccPrivate: ""}
	if canStore(false, cacheControl{}, resp, true, 200, discardLogger()) {
		t.Fatal("expected private response to be unstorable in a shared cache")
	}
}

func TestCanStoreAllowsPrivateInPrivateCache(t *testing.T) {
	resp := cacheControl{ccPrivate: ""}
	if !canStore(false, cacheControl{}, resp, false, 200, discardLogger()) {
		t.Fatal("expected private response to be storable in a private cache")
	}
}

func TestCanStoreMustUnderstandRejectsUnknownStatus(t *testing.T) {
	resp := cacheControl{ccMustUnderstand: ""}
	if canStore(false, cacheControl{}, resp, false, 999, discardLogger()) {
		t.Fatal("expected must-understand to reject an unrecognized status code")
	}
}

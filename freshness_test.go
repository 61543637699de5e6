package cachegate

import (
	"net/http"
	"testing"
	"time"
)

func dateHeader(d time.Time) http.Header {
	return http.Header{"Date": {d.UTC().Format(time.RFC1123)}}
}

func TestGetFreshnessFreshWithinMaxAge(t *testing.T) {
	h := dateHeader(time.Now().Add(-10 * time.Second))
	h.Set("Cache-Control", "max-age=60")
	if got := getFreshness(h, http.Header{}, discardLogger()); got != fresh {
		t.Fatalf("getFreshness = %d, want fresh", got)
	}
}

func TestGetFreshnessStaleAfterMaxAge(t *testing.T) {
	h := dateHeader(time.Now().Add(-120 * time.Second))
	h.Set("Cache-Control", "max-age=60")
	if got := getFreshness(h, http.Header{}, discardLogger()); got != stale {
		t.Fatalf("getFreshness = %d, want stale", got)
	}
}

func TestGetFreshnessRespNoCacheIsStale(t *testing.T) {
	h := dateHeader(time.Now())
	h.Set("Cache-Control", "no-cache")
	if got := getFreshness(h, http.Header{}, discardLogger()); got != stale {
		t.Fatalf("getFreshness = %d, want stale", got)
	}
}

func TestGetFreshnessReqNoCacheIsTransparent(t *testing.T) {
	h := dateHeader(time.Now())
	req := http.Header{"Cache-Control": {"no-cache"}}
	if got := getFreshness(h, req, discardLogger()); got != transparent {
		t.Fatalf("getFreshness = %d, want transparent", got)
	}
}

func TestGetFreshnessOnlyIfCachedIsFresh(t *testing.T) {
	h := dateHeader(time.Now().Add(-1000 * time.Second))
	req := http.Header{"Cache-Control": {"only-if-cached"}}
	if got := getFreshness(h, req, discardLogger()); got != fresh {
		t.Fatalf("getFreshness = %d, want fresh for only-if-cached", got)
	}
}

func TestGetFreshnessStaleWhileRevalidateWindow(t *testing.T) {
	h := dateHeader(time.Now().Add(-70 * time.Second))
	h.Set("Cache-Control", "max-age=60, stale-while-revalidate=30")
	if got := getFreshness(h, http.Header{}, discardLogger()); got != staleWhileRevalidate {
		t.Fatalf("getFreshness = %d, want staleWhileRevalidate", got)
	}
}

func TestGetFreshnessMaxStaleExtendsFreshness(t *testing.T) {
	h := dateHeader(time.Now().Add(-90 * time.Second))
	h.Set("Cache-Control", "max-age=60")
	req := http.Header{"Cache-Control": {"max-stale=60"}}
	if got := getFreshness(h, req, discardLogger()); got != fresh {
		t.Fatalf("getFreshness = %d, want fresh under max-stale tolerance", got)
	}
}

func TestGetFreshnessMustRevalidateOverridesMaxStale(t *testing.T) {
	h := dateHeader(time.Now().Add(-90 * time.Second))
	h.Set("Cache-Control", "max-age=60, must-revalidate")
	req := http.Header{"Cache-Control": {"max-stale=60"}}
	if got := getFreshness(h, req, discardLogger()); got != stale {
		t.Fatalf("getFreshness = %d, want stale because must-revalidate overrides max-stale", got)
	}
}

func TestIsActuallyStaleIgnoresMaxStale(t *testing.T) {
	h := dateHeader(time.Now().Add(-90 * time.Second))
	h.Set("Cache-Control", "max-age=60")
	if !isActuallyStale(h, discardLogger()) {
		t.Fatal("expected isActuallyStale to report stale regardless of any request tolerance")
	}
}

func TestIsActuallyStaleMissingDateIsStale(t *testing.T) {
	if !isActuallyStale(http.Header{}, discardLogger()) {
		t.Fatal("expected missing Date header to be treated as stale")
	}
}

func TestParseStaleIfErrorAcceptAny(t *testing.T) {
	cc := cacheControl{ccStaleIfError: ""}
	_, acceptAny, found := parseStaleIfError(cc)
	if !found || !acceptAny {
		t.Fatal("expected bare stale-if-error to accept any lifetime")
	}
}

func TestParseStaleIfErrorWithDuration(t *testing.T) {
	cc := cacheControl{ccStaleIfError: "30"}
	d, acceptAny, found := parseStaleIfError(cc)
	if !found || acceptAny || d != 30*time.Second {
		t.Fatalf("parseStaleIfError = %v,%v,%v", d, acceptAny, found)
	}
}

func TestCanStaleOnErrorRespectsResponseDirective(t *testing.T) {
	h := dateHeader(time.Now().Add(-10 * time.Second))
	h.Set("Cache-Control", "stale-if-error=30")
	if !canStaleOnError(h, http.Header{}, discardLogger()) {
		t.Fatal("expected stale-if-error=30 to cover a 10s-old response")
	}
}

func TestCanStaleOnErrorFalseWithoutDirective(t *testing.T) {
	h := dateHeader(time.Now())
	if canStaleOnError(h, http.Header{}, discardLogger()) {
		t.Fatal("expected no stale-if-error directive to disallow stale-on-error")
	}
}

func TestFreshnessStringMapsKnownValues(t *testing.T) {
	cases := map[int]string{
		fresh:                freshnessStringFresh,
		stale:                freshnessStringStale,
		staleWhileRevalidate: freshnessStringStaleWhileRevalidate,
		transparent:          freshnessStringTransparent,
	}
	for in, want := range cases {
		if got := freshnessString(in); got != want {
			t.Fatalf("freshnessString(%d) = %q, want %q", in, got, want)
		}
	}
}

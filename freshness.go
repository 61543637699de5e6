package cachegate

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// timer is an interface for time-related operations, allowing for testing.
type timer interface {
	since(d time.Time) time.Duration
}

type realClock struct{}

func (c *realClock) since(d time.Time) time.Duration {
	return time.Since(d)
}

var clock timer = &realClock{}

// getFreshness returns one of fresh/stale/transparent/staleWhileRevalidate
// based on the Cache-Control values of the request and the stored reply,
// feeding spec.md §4.3's "refresh check decides the entry is stale" step.
func getFreshness(respHeaders, reqHeaders http.Header, log *slog.Logger) (freshness int) {
	respCacheControl := parseCacheControl(respHeaders, log)
	reqCacheControl := parseCacheControl(reqHeaders, log)

	if result, done := checkCacheControl(respCacheControl, reqCacheControl, reqHeaders); done {
		return result
	}

	date, err := Date(respHeaders)
	if err != nil {
		return stale
	}
	currentAge := clock.since(date)

	lifetime := calculateLifetime(respCacheControl, respHeaders, date)

	var returnFresh bool
	currentAge, lifetime, returnFresh = adjustAgeForRequestControls(respCacheControl, reqCacheControl, currentAge, lifetime)
	if returnFresh {
		return fresh
	}

	if lifetime > currentAge {
		return fresh
	}

	if swr, ok := respCacheControl[ccStaleWhileRevalidate]; ok {
		if d, err := time.ParseDuration(swr + "s"); err == nil {
			if lifetime+d > currentAge {
				return staleWhileRevalidate
			}
		}
	}

	return stale
}

// checkCacheControl checks for no-cache directives, Pragma: no-cache, and only-if-cached.
// RFC 7234 Section 5.4: Pragma: no-cache is treated as Cache-Control: no-cache for HTTP/1.0 compatibility.
func checkCacheControl(respCacheControl, reqCacheControl cacheControl, reqHeaders http.Header) (int, bool) {
	if _, ok := reqCacheControl[ccNoCache]; ok {
		return transparent, true
	}
	if len(reqCacheControl) == 0 {
		if strings.EqualFold(reqHeaders.Get(headerPragma), pragmaNoCache) {
			return transparent, true
		}
	}
	if _, ok := respCacheControl[ccNoCache]; ok {
		return stale, true
	}
	if _, ok := reqCacheControl[ccOnlyIfCached]; ok {
		return fresh, true
	}
	return 0, false
}

// calculateLifetime calculates the response lifetime based on max-age or Expires header.
func calculateLifetime(respCacheControl cacheControl, respHeaders http.Header, date time.Time) time.Duration {
	var lifetime time.Duration

	if maxAge, ok := respCacheControl[ccMaxAge]; ok {
		if d, err := time.ParseDuration(maxAge + "s"); err == nil {
			lifetime = d
		}
	} else if expiresHeader := respHeaders.Get("Expires"); expiresHeader != "" {
		if expires, err := time.Parse(time.RFC1123, expiresHeader); err == nil {
			lifetime = expires.Sub(date)
		}
	}

	return lifetime
}

// adjustAgeForRequestControls adjusts the current age based on request
// cache control directives and enforces must-revalidate from the response.
func adjustAgeForRequestControls(respCacheControl, reqCacheControl cacheControl, currentAge, lifetime time.Duration) (time.Duration, time.Duration, bool) {
	if maxAge, ok := reqCacheControl[ccMaxAge]; ok {
		if d, err := time.ParseDuration(maxAge + "s"); err == nil {
			lifetime = d
		} else {
			lifetime = 0
		}
	}

	if minFresh, ok := reqCacheControl[ccMinFresh]; ok {
		if d, err := time.ParseDuration(minFresh + "s"); err == nil {
			currentAge += d
		}
	}

	// RFC 7234 §5.2.2.1: must-revalidate overrides max-stale from the request.
	if _, mustRevalidate := respCacheControl[ccMustRevalidate]; mustRevalidate {
		return currentAge, lifetime, false
	}

	if maxStale, ok := reqCacheControl[ccMaxStale]; ok {
		if maxStale == "" {
			return currentAge, lifetime, true
		}
		if d, err := time.ParseDuration(maxStale + "s"); err == nil {
			currentAge -= d
		}
	}

	return currentAge, lifetime, false
}

// isActuallyStale ignores the client's max-stale tolerance; its only
// caller is hit.go's refreshCheckIsStale, which logs it as a diagnostic
// comparison without changing the refresh decision.
func isActuallyStale(respHeaders http.Header, log *slog.Logger) bool {
	respCacheControl := parseCacheControl(respHeaders, log)

	date, err := Date(respHeaders)
	if err != nil {
		return true
	}

	currentAge := clock.since(date)
	lifetime := calculateLifetime(respCacheControl, respHeaders, date)

	if swr, ok := respCacheControl[ccStaleWhileRevalidate]; ok {
		if d, err := time.ParseDuration(swr + "s"); err == nil {
			if lifetime+d > currentAge {
				return false
			}
		}
	}

	return lifetime <= currentAge
}

func freshnessString(freshness int) string {
	switch freshness {
	case fresh:
		return freshnessStringFresh
	case stale:
		return freshnessStringStale
	case staleWhileRevalidate:
		return freshnessStringStaleWhileRevalidate
	case transparent:
		return freshnessStringTransparent
	default:
		return freshnessStringUnknown
	}
}

// parseStaleIfError parses the stale-if-error directive (RFC 5861).
func parseStaleIfError(cc cacheControl) (lifetime time.Duration, acceptAny bool, found bool) {
	v, ok := cc[ccStaleIfError]
	if !ok {
		return 0, false, false
	}
	if v == "" {
		return 0, true, true
	}
	d, err := time.ParseDuration(v + "s")
	if err != nil {
		return 0, false, true
	}
	return d, false, true
}

func checkStaleIfErrorLifetime(respHeaders http.Header, lifetime time.Duration) bool {
	date, err := Date(respHeaders)
	if err != nil {
		return false
	}
	return lifetime > clock.since(date)
}

// canStaleOnError determines whether a stale stored reply may stand in for
// a failed revalidation (RFC 5861 stale-if-error), feeding §4.4's
// fail_on_validation_err / REFRESH_FAIL_OLD decision.
func canStaleOnError(respHeaders, reqHeaders http.Header, log *slog.Logger) bool {
	respCacheControl := parseCacheControl(respHeaders, log)
	reqCacheControl := parseCacheControl(reqHeaders, log)

	lifetime := time.Duration(-1)

	if respLifetime, acceptAny, found := parseStaleIfError(respCacheControl); found {
		if acceptAny {
			return true
		}
		lifetime = respLifetime
	}

	if reqLifetime, acceptAny, found := parseStaleIfError(reqCacheControl); found {
		if acceptAny {
			return true
		}
		lifetime = reqLifetime
	}

	if lifetime >= 0 {
		return checkStaleIfErrorLifetime(respHeaders, lifetime)
	}

	return false
}

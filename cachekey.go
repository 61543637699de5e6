package cachegate

import (
	"net/http"
	"sort"
	"strings"
)

// cacheKey returns the cache key for req: method + effective URI, with GET
// requests carrying no method prefix (spec.md §3's "cache key derived from
// method + effective URI").
func cacheKey(req *Request) string {
	if req.Method == "" || req.Method == "GET" {
		return req.EffectiveURI
	}
	return req.Method + " " + req.EffectiveURI
}

// CacheKey exposes cacheKey to Store implementations outside this
// package, so a backend's own indexing agrees with the keys the engine
// passes to EvictIfFound.
func CacheKey(req *Request) string {
	return cacheKey(req)
}

// cacheKeyWithHeaders extends the cache key with configured header values,
// used when a deployment needs extra key differentiation beyond Vary.
func cacheKeyWithHeaders(req *Request, headers []string) string {
	key := cacheKey(req)

	if len(headers) == 0 {
		return key
	}

	var parts []string
	for _, h := range headers {
		canonical := http.CanonicalHeaderKey(h)
		if v := req.Header.Get(canonical); v != "" {
			parts = append(parts, canonical+":"+v)
		}
	}
	if len(parts) > 0 {
		sort.Strings(parts)
		key = key + "|" + strings.Join(parts, "|")
	}
	return key
}

package cachegate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// cacheableMethods are the methods purgeEntriesByUrl enumerates when an
// unsafe method's response must invalidate sibling cached variants
// (spec.md §4.6's "method-fanout purge").
var cacheableMethods = []string{http.MethodGet, http.MethodHead}

// isUnsafeMethod returns true for methods whose successful response
// invalidates cached representations of the same resource (RFC 9111 §4.4).
func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}

// runPurge implements spec.md §4.6's Purge Path.
func (rc *ReplyContext) runPurge(ctx context.Context) error {
	if !rc.engine.cfg.EnablePurge {
		rc.mu.Lock()
		rc.purgeStatus = http.StatusForbidden
		rc.mu.Unlock()
		return rc.SetReplyToError(ctx, http.StatusForbidden, "Access Denied")
	}

	// Invalidate IP cache for the request host: no IP-cache collaborator
	// is wired in (external, out of scope per spec.md §1); documented
	// no-op hook.

	uri := rc.req.EffectiveURI
	anyPurged := false

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		purged, forbidden, err := rc.purgeOneVariant(ctx, method, uri)
		if err != nil {
			return fmt.Errorf("runPurge: %w", err)
		}
		if forbidden {
			rc.mu.Lock()
			rc.purgeStatus = http.StatusForbidden
			rc.mu.Unlock()
			return rc.SetReplyToError(ctx, http.StatusForbidden, "Access Denied: SPECIAL entry")
		}
		anyPurged = anyPurged || purged
	}

	if varyKey := extractVaryKey(uri); varyKey != "" {
		base := stripVaryKey(uri)
		for _, method := range []string{http.MethodGet, http.MethodHead} {
			purged, forbidden, err := rc.purgeOneVariant(ctx, method, base)
			if err != nil {
				return fmt.Errorf("runPurge: vary variant: %w", err)
			}
			if forbidden {
				rc.mu.Lock()
				rc.purgeStatus = http.StatusForbidden
				rc.mu.Unlock()
				return rc.SetReplyToError(ctx, http.StatusForbidden, "Access Denied: SPECIAL entry")
			}
			anyPurged = anyPurged || purged
		}
	}

	status := http.StatusNotFound
	if anyPurged {
		status = http.StatusOK
	}

	rc.mu.Lock()
	rc.purgeStatus = status
	rc.mu.Unlock()
	rc.engine.metrics.observePurge(status)

	if rc.engine.neighbors != nil {
		if err := rc.engine.neighbors.HTCPClear(ctx, nil, rc.req, rc.req.Method, ReasonPurge); err != nil {
			rc.engine.log().Warn("HTCP CLR broadcast failed", "error", err)
		}
	}

	if status == http.StatusOK {
		return rc.SetReplyToError(ctx, http.StatusOK, "Purged")
	}
	return rc.SetReplyToError(ctx, http.StatusNotFound, "Not Found")
}

// purgeOneVariant purges a single method+URI variant, reporting whether a
// SPECIAL entry blocked the purge (spec.md §4.6's 403-and-abandon rule).
func (rc *ReplyContext) purgeOneVariant(ctx context.Context, method, uri string) (purged, forbidden bool, err error) {
	probe := &Request{Method: method, EffectiveURI: uri}
	key := cacheKey(probe)

	entry, found, err := rc.engine.store.LookupPublic(ctx, probe, LookupPublic)
	if err != nil {
		return false, false, err
	}
	if found && entry.Flags().Special {
		return false, true, nil
	}

	ok, err := rc.engine.store.EvictIfFound(ctx, key)
	if err != nil {
		return false, false, err
	}
	return ok, false, nil
}

// purgeEntriesByURL implements spec.md §4.6's method-fanout purge, used
// from the Miss Path when an unsafe method's response must invalidate
// sibling cached variants (RFC 9111 §4.4).
func (rc *ReplyContext) purgeEntriesByURL(ctx context.Context, uri string) error {
	for _, method := range cacheableMethods {
		probe := &Request{Method: method, EffectiveURI: uri}
		if _, err := rc.engine.store.EvictIfFound(ctx, cacheKey(probe)); err != nil {
			return err
		}
	}
	if rc.engine.neighbors != nil {
		return rc.engine.neighbors.HTCPClear(ctx, nil, rc.req, rc.req.Method, ReasonInvalidation)
	}
	return nil
}

// invalidateOnResponse implements RFC 9111 §4.4: a non-error response to
// an unsafe method invalidates the effective request URI plus any
// same-origin Location/Content-Location target, both GET and HEAD keys.
// miss.go's startForwarding calls this after a successful forward of an
// unsafe method, grounded on the
// teacher's invalidateCache/invalidateHeaderURI/invalidateURI trio.
func (rc *ReplyContext) invalidateOnResponse(ctx context.Context, reqURI string, reply *Reply) {
	if reply.StatusCode >= 400 {
		return
	}

	rc.invalidateURIString(ctx, reqURI)

	base, err := url.Parse(reqURI)
	if err != nil {
		return
	}

	if loc := reply.Header.Get("Location"); loc != "" {
		rc.invalidateSameOriginHeaderURI(ctx, base, loc)
	}
	if loc := reply.Header.Get("Content-Location"); loc != "" {
		rc.invalidateSameOriginHeaderURI(ctx, base, loc)
	}
}

func (rc *ReplyContext) invalidateSameOriginHeaderURI(ctx context.Context, base *url.URL, headerValue string) {
	target, err := base.Parse(headerValue)
	if err != nil {
		return
	}
	if target.Scheme != base.Scheme || target.Host != base.Host {
		rc.engine.log().Debug("skipping cross-origin invalidation", "target", target.String())
		return
	}
	rc.invalidateURIString(ctx, target.String())
}

func (rc *ReplyContext) invalidateURIString(ctx context.Context, uri string) {
	for _, method := range cacheableMethods {
		probe := &Request{Method: method, EffectiveURI: uri}
		if _, err := rc.engine.store.EvictIfFound(ctx, cacheKey(probe)); err != nil {
			rc.engine.log().Warn("invalidation evict failed", "uri", uri, "method", method, "error", err)
		}
	}
}

// extractVaryKey and stripVaryKey support spec.md §4.6's "request carries
// a Vary key (=-bearing)" check: the engine encodes the vary-separated
// cache key as "<uri>|vary:K1:V1|K2:V2", so an '=' (or, here, the
// "|vary:" delimiter with ':'-joined pairs) signals a variant key.
func extractVaryKey(uri string) string {
	if idx := strings.Index(uri, "|vary:"); idx >= 0 {
		return uri[idx+len("|vary:"):]
	}
	return ""
}

func stripVaryKey(uri string) string {
	if idx := strings.Index(uri, "|vary:"); idx >= 0 {
		return uri[:idx]
	}
	return uri
}

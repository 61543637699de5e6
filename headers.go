package cachegate

import (
	"net/http"
	"strings"
	"time"
)

// hopByHopHeaders lists the hop-by-hop headers RFC 9110 §7.6.1 and the
// Connection header's own listed tokens name; these never survive a
// cache-to-client hop.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

var connectionAuthSchemes = []string{"NTLM", "Negotiate", "Kerberos"}

// headerOptions carries the transaction-scoped inputs the header builder
// needs beyond rc itself, per spec.md §4.7's numbered steps.
type headerOptions struct {
	peerPassesAuth   bool
	connectionAuthOK bool
	surrogateCapable bool
	mangler          func(http.Header)
}

// buildHeaders implements spec.md §4.7's Header Builder, applied once per
// transaction on the cloned outgoing reply (rc.reply).
func (rc *ReplyContext) buildHeaders(opts headerOptions) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.reply == nil {
		return
	}
	h := rc.reply.Header

	// 1. Strip Set-Cookie on hit / on collapsed slave.
	switch {
	case rc.collapseRole == CollapseSlave:
		h.Del("Set-Cookie")
	case rc.tag == TagHit, rc.tag == TagMemHit, rc.tag == TagOfflineHit, rc.tag == TagNegativeHit,
		rc.tag == TagRefreshUnmodified, rc.tag == TagRefreshFailOld:
		h.Del("Set-Cookie")
	}

	// 2. Strip Proxy-Authenticate unless the peer passes auth through.
	if !opts.peerPassesAuth {
		h.Del("Proxy-Authenticate")
	}

	// 3. Strip hop-by-hop headers; drop spurious Content-Length.
	stripHopByHop(h)
	if rc.entry != nil && rc.entry.Flags().BadLength {
		h.Del("Content-Length")
	}

	// 4/5. Age and Date.
	rc.applyAgeAndDate(h)

	// 6. Filter connection-oriented WWW-Authenticate schemes.
	filterConnectionAuth(h, opts.connectionAuthOK)

	// 8. Cache-Status.
	h.Set("Cache-Status", rc.cacheStatusValue())

	// 9/11. Keep-alive decision, Connection header.
	keepAlive := rc.keepAliveDecision(opts)
	if keepAlive {
		h.Set("Connection", "keep-alive")
	} else {
		h.Set("Connection", "close")
	}

	// 10. Transfer-Encoding.
	if rc.chunkingPermissible(h) {
		h.Set("Transfer-Encoding", "chunked")
		rc.req.Flags.ChunkedReply = true
	}

	// 11. Via.
	h.Add("Via", "1.1 "+rc.engine.cfg.Hostname)

	// 12. Surrogate-Control.
	if !opts.surrogateCapable {
		h.Del("Surrogate-Control")
	}

	// 13. User header-mangling rules.
	if opts.mangler != nil {
		opts.mangler(h)
	}
}

func stripHopByHop(h http.Header) {
	for _, tok := range headerAllCommaSepValues(h, "Connection") {
		h.Del(tok)
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// applyAgeAndDate implements spec.md §4.7 steps 4-5. A reply that already
// carries Age/X-Request-Time/X-Response-Time was relayed through another
// caching hop (a revalidation peer, or an upstream cache); for those, Age
// is reconstructed the full RFC 9111 §4.2.3 way via calculateAge rather
// than assumed to start counting from this store's own StoredAt.
func (rc *ReplyContext) applyAgeAndDate(h http.Header) {
	isSpecial := rc.entry != nil && rc.entry.Flags().Special
	if isSpecial {
		h.Del(headerAge)
		now := time.Now().UTC()
		h.Set("Date", now.Format(http.TimeFormat))
		if exp := h.Get("Expires"); exp != "" {
			h.Set("X-Origin-Expires", exp)
		}
		h.Set("X-Cache-Age", "0")
		return
	}

	relayed := hasRelayTimingSignal(h)
	relayedAge, relayErr := time.Duration(0), ErrNoDateHeader
	if relayed {
		relayedAge, relayErr = calculateAge(h, rc.engine.log())
	}

	h.Del(headerAge)

	storedAt := time.Time{}
	if rc.entry != nil {
		storedAt = rc.entry.StoredAt()
	}

	switch {
	case relayed && relayErr == nil:
		h.Set(headerAge, formatAge(relayedAge))
	case !storedAt.IsZero() && !storedAt.After(time.Now()):
		h.Set(headerAge, formatAge(ageFromStoredAt(storedAt)))
	}

	if h.Get("Date") == "" {
		if !storedAt.IsZero() {
			h.Set("Date", storedAt.UTC().Format(http.TimeFormat))
		} else {
			h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
			rc.engine.log().Error("reply has neither Date header nor stored timestamp")
		}
	}
}

// hasRelayTimingSignal reports whether h carries a hop-timing header that
// implies it was relayed through another cache (RFC 9111 §4.2.3's
// Age/X-Request-Time/X-Response-Time triple), rather than originating at
// this store's own StoredAt.
func hasRelayTimingSignal(h http.Header) bool {
	return h.Get(headerAge) != "" || h.Get(xRequestTime) != "" || h.Get(xResponseTime) != "" || h.Get(xCachedTime) != ""
}

// filterConnectionAuth implements spec.md §4.7 step 6.
func filterConnectionAuth(h http.Header, connectionAuthOK bool) {
	values := h.Values("WWW-Authenticate")
	if len(values) == 0 {
		return
	}

	var kept []string
	dropped := false
	for _, v := range values {
		if isConnectionAuthScheme(v) {
			if !connectionAuthOK {
				dropped = true
				continue
			}
		}
		kept = append(kept, v)
	}

	h.Del("WWW-Authenticate")
	for _, v := range kept {
		h.Add("WWW-Authenticate", v)
	}

	if dropped {
		return
	}
	if connectionAuthOK && hasConnectionAuthScheme(values) {
		h.Set("Proxy-Support", "Session-Based-Authentication")
		h.Add("Connection", "Proxy-support")
	}
}

func isConnectionAuthScheme(v string) bool {
	for _, scheme := range connectionAuthSchemes {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(v)), strings.ToUpper(scheme)) {
			return true
		}
	}
	return false
}

func hasConnectionAuthScheme(values []string) bool {
	for _, v := range values {
		if isConnectionAuthScheme(v) {
			return true
		}
	}
	return false
}

// cacheStatusValue implements spec.md §4.7 step 8.
func (rc *ReplyContext) cacheStatusValue() string {
	verdict := "fwd"
	if rc.tag != "" {
		verdict = string(rc.tag)
	}
	detail := rc.firstLookup
	if detail == "" {
		detail = "none"
	}
	return "cachegate; host=" + rc.engine.cfg.Hostname + "; verdict=" + verdict + "; detail=" + detail
}

// keepAliveDecision implements spec.md §4.7 step 9.
func (rc *ReplyContext) keepAliveDecision(opts headerOptions) bool {
	status := 0
	if rc.reply != nil {
		status = rc.reply.StatusCode
	}
	if !rc.engine.cfg.ErrorPconns && status >= 400 {
		return false
	}
	if !rc.engine.cfg.ClientPconns {
		return false
	}
	if rc.req.Pinned {
		return false
	}
	return true
}

// chunkingPermissible implements spec.md §4.7 step 10: chunk when body
// size is unknown and the method is not HEAD; the protocol version is not
// examined. This module hands off
// bodies to a downstream stream node (its Non-goal), so "unknown size" is
// read off the absence of Content-Length.
func (rc *ReplyContext) chunkingPermissible(h http.Header) bool {
	if rc.req.Method == http.MethodHead {
		return false
	}
	return h.Get("Content-Length") == "" && h.Get("Content-Range") == ""
}

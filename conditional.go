package cachegate

import "net/http"

// conditionalOutcome is the result of evaluating the client's conditional
// request headers against a stored entry, per spec.md §4.3's "Conditional
// processing" rules.
type conditionalOutcome int

const (
	conditionalFallThrough conditionalOutcome = iota // not conditional, or not eligible: proceed to plain hit
	conditionalHandled                                // reply already set (304/412/unconditional-hit)
)

// evaluateConditional implements spec.md §4.3's conditional block. A
// stored reply with status != 200 disqualifies conditional semantics
// entirely (falls through to the caller's MISS handling).
func evaluateConditional(req *Request, entry Entry, store Store) (outcome conditionalOutcome, status int) {
	freshest := store.FreshestReply(entry)
	if freshest == nil || freshest.StatusCode != http.StatusOK {
		return conditionalFallThrough, 0
	}

	if len(req.IfMatch) > 0 {
		if !store.HasIfMatchETag(req, entry) {
			return conditionalHandled, http.StatusPreconditionFailed
		}
	}

	if len(req.IfNoneMatch) > 0 {
		// RFC 9111 guidance (spec.md §9 open question, preserved as-is):
		// If-None-Match silently drops any If-Modified-Since on the
		// request.
		if store.HasIfNoneMatchETag(req, entry) {
			if req.Method == http.MethodGet || req.Method == http.MethodHead {
				return conditionalHandled, http.StatusNotModified
			}
			return conditionalHandled, http.StatusPreconditionFailed
		}
		// No ETag matched: treated as an unconditional hit even though
		// an If-Modified-Since may also be present.
		return conditionalFallThrough, 0
	}

	if req.hasIMS() {
		if store.ModifiedSince(entry, req.IMSTime, req.IMSLen) {
			return conditionalFallThrough, 0
		}
		return conditionalHandled, http.StatusNotModified
	}

	return conditionalFallThrough, 0
}

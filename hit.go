package cachegate

import (
	"context"
	"fmt"
	"net/http"
)

// processHit implements spec.md §4.3's Hit Path. It is entered once the
// first store-copy callback for a HIT-classified entry has delivered
// headers.
func (rc *ReplyContext) processHit(ctx context.Context, entry Entry, headerBuf []byte, copyErr error) error {
	if !rc.alive() {
		return ErrDeleting
	}

	if len(headerBuf) == 0 || copyErr != nil {
		return rc.enterMiss(ctx, "store-copy-error")
	}

	freshest := rc.engine.store.FreshestReply(entry)
	if freshest == nil {
		return rc.enterMiss(ctx, "no-stored-reply")
	}

	if entry.StoreID() != "" && entry.StoreID() != rc.req.EffectiveURI {
		return rc.enterMiss(ctx, "storeid-mismatch")
	}

	switch evaluateVary(freshest.Header, rc.req, false) {
	case VaryOther:
		storeVaryHeaders(freshest.Header, rc.req)
		return rc.relookupAfterVaryMiss(ctx)
	case VaryCancel:
		return rc.enterMiss(ctx, "vary-loop")
	}

	if isPurgeMethod(rc.req.Method) {
		return rc.runPurge(ctx)
	}

	if isNegativeCache(freshest) && !rc.req.Flags.Refresh {
		rc.setTag(TagNegativeHit)
		return rc.serveEntry(ctx, entry, freshest)
	}

	if rc.engine.access != nil {
		decision := rc.engine.access.FastCheck(ctx, rc.req, newReplyView(freshest))
		if decision == AccessDeny {
			return rc.enterMiss(ctx, "send_hit-denied")
		}
	}

	if !rc.req.Flags.Internal && rc.refreshCheckIsStale(entry, freshest) {
		rc.req.Flags.NeedValidation = true

		if freshest.Header.Get(headerLastModified) == "" {
			return rc.enterMiss(ctx, "stale-no-last-modified")
		}
		if rc.req.Flags.NoCache {
			return rc.enterClientRefreshMiss(ctx)
		}
		if isHTTPScheme(rc.req.EffectiveURI) {
			return rc.startRevalidation(ctx, entry)
		}
		return rc.enterMiss(ctx, "stale-non-http-scheme")
	}

	if isConditional(rc.req) {
		outcome, status := evaluateConditional(rc.req, entry, rc.engine.store)
		if outcome == conditionalHandled {
			return rc.serveConditionalReply(ctx, entry, freshest, status)
		}
	}

	rc.setTag(pickHitTag(rc, entry))
	return rc.serveEntry(ctx, entry, freshest)
}

// pickHitTag implements spec.md §4.3's tag selection: OFFLINE_HIT overrides
// everything, MEM_HIT when the entry is already resident in the store's
// process memory (no backend round trip was needed to serve it), else a
// plain HIT.
func pickHitTag(rc *ReplyContext, entry Entry) Tag {
	switch {
	case rc.engine.cfg.Offline:
		return TagOfflineHit
	case entry.Resident():
		return TagMemHit
	default:
		return TagHit
	}
}

func isPurgeMethod(method string) bool {
	return method == "PURGE"
}

func isConditional(req *Request) bool {
	return len(req.IfMatch) > 0 || len(req.IfNoneMatch) > 0 || req.hasIMS()
}

func isNegativeCache(r *Reply) bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func isHTTPScheme(uri string) bool {
	return len(uri) >= 4 && (uri[:4] == "http")
}

// refreshCheckIsStale mirrors spec.md §4.3's "refresh check decides the
// entry is stale", reusing the freshness evaluator grounded in
// freshness.go.
func (rc *ReplyContext) refreshCheckIsStale(entry Entry, freshest *Reply) bool {
	freshness := getFreshness(freshest.Header, rc.req.Header, rc.engine.log())
	result := freshness == stale

	if objectively := isActuallyStale(freshest.Header, rc.engine.log()); result != objectively {
		rc.engine.log().Debug("request's own cache-control leniency changed the refresh-check outcome",
			"freshness", freshnessString(freshness), "objectively_stale", objectively)
	}
	return result
}

// relookupAfterVaryMiss implements the OTHER branch of Vary evaluation:
// detach the current entry and re-enter lookup; the bookkeeping update
// above (storeVaryHeaders) prevents this from looping, and a second
// mismatch is treated as CANCEL by evaluateVary's alreadyRetried flag.
func (rc *ReplyContext) relookupAfterVaryMiss(ctx context.Context) error {
	rc.mu.Lock()
	rc.detachCurrentLocked()
	rc.mu.Unlock()

	result, err := rc.classify(ctx)
	if err != nil {
		return fmt.Errorf("vary re-lookup: %w", err)
	}
	if result.verdict == VerdictHit && result.entry != nil {
		if fr := rc.engine.store.FreshestReply(result.entry); fr != nil && evaluateVary(fr.Header, rc.req, true) == VaryCancel {
			return rc.enterMiss(ctx, "vary-loop")
		}
	}
	return rc.dispatchVerdict(ctx, result)
}

func (rc *ReplyContext) setTag(t Tag) {
	rc.mu.Lock()
	rc.tag = t
	rc.mu.Unlock()
	rc.engine.metrics.observeVerdict(VerdictHit)
}

// serveEntry clones the entry's freshest reply into rc.reply; the
// streaming pump (stream.go) is responsible for actually delivering
// bytes.
func (rc *ReplyContext) serveEntry(ctx context.Context, entry Entry, freshest *Reply) error {
	rc.mu.Lock()
	rc.entry = entry
	rc.reply = cloneReply(freshest)
	rc.storeLogicComplete = true
	rc.mu.Unlock()
	return nil
}

// serveConditionalReply synthesizes the 304/412 reply a conditional check
// produced and attaches it to a new SPECIAL private entry, so the header
// builder stamps the current Date and an X-Cache-Age of 0; the old entry's
// timestamp is not carried over (grounded on client_side_reply.cc's
// sendNotModified).
func (rc *ReplyContext) serveConditionalReply(ctx context.Context, entry Entry, freshest *Reply, status int) error {
	var reply *Reply
	if status == http.StatusNotModified {
		reply = rc.engine.store.Make304(entry)
	} else {
		reply = &Reply{StatusCode: status, Header: make(http.Header)}
	}

	priv, err := rc.engine.store.Create(ctx, rc.req.EffectiveURI, rc.req.EffectiveURI, EntryFlags{Special: true}, rc.req.Method)
	if err != nil {
		return fmt.Errorf("conditional reply: creating private entry: %w", err)
	}

	rc.mu.Lock()
	rc.entry = priv
	rc.reply = reply
	rc.storeLogicComplete = true
	rc.mu.Unlock()
	return nil
}

package cachegate

import (
	"context"
	"fmt"
	"net/http"
)

// startRevalidation implements spec.md §4.4's Revalidation Path.
//
// Collapsed slaves join via singleflight.Group.Do, which blocks the
// caller until the initiator's fn returns; slaves therefore receive the
// initiator's fully-computed outcome rather than independently
// subscribing and streaming the revalidation entry's bytes as they
// arrive. This keeps P8's "at most one in-flight upstream request per
// cache key" guarantee exactly, trading away only the incremental
// delivery-to-slaves-before-completion optimization, which no invariant
// in spec.md §8 requires.
func (rc *ReplyContext) startRevalidation(ctx context.Context, oldEntry Entry) error {
	if rc.req.Flags.OnlyIfCached {
		return rc.SetReplyToError(ctx, http.StatusGatewayTimeout, "Gateway Timeout: only-if-cached")
	}

	shadow := rc.saveShadow(ctx, oldEntry)

	outcome, err := rc.joinOrStartCollapse(ctx, oldEntry, func(ctx context.Context, entry Entry, role CollapseRole) (*revalidationOutcome, error) {
		return rc.runRevalidation(ctx, entry, shadow, role)
	})
	if err != nil {
		return fmt.Errorf("startRevalidation: %w", err)
	}
	if outcome == nil {
		return fmt.Errorf("startRevalidation: collapse returned no outcome")
	}

	rc.engine.metrics.observeRevalidation(outcome.tag)

	if outcome.restartMiss {
		rc.restoreShadow(ctx)
		rc.setTag(TagMiss)
		return rc.enterMiss(ctx, "collapsed-entry-non-shareable")
	}

	if outcome.serveNew {
		rc.discardShadow(ctx)
		rc.setTag(outcome.tag)
		if outcome.entry != nil {
			rc.attachCollapsedEntry(ctx, outcome.entry)
		}
		if outcome.reply != nil {
			rc.mu.Lock()
			rc.reply = cloneReply(outcome.reply)
			rc.mu.Unlock()
		}
		rc.mu.Lock()
		rc.storeLogicComplete = true
		rc.mu.Unlock()
		return nil
	}

	rc.restoreShadow(ctx)
	rc.setTag(outcome.tag)
	rc.mu.Lock()
	rc.storeLogicComplete = true
	rc.mu.Unlock()
	return nil
}

// attachCollapsedEntry gives a collapsed-revalidation participant its own
// lock on entry. The initiator's own rc.entry is already set to entry from
// inside runRevalidation, so this is a no-op for it; every slave, which
// never ran runRevalidation itself, locks and attaches here instead.
func (rc *ReplyContext) attachCollapsedEntry(ctx context.Context, entry Entry) {
	rc.mu.Lock()
	already := rc.entry == entry
	rc.mu.Unlock()
	if already {
		return
	}

	if err := rc.engine.store.Lock(ctx, entry, "collapse-slave"); err != nil {
		rc.engine.log().Warn("collapsed slave failed to attach entry", "error", err)
		return
	}

	rc.mu.Lock()
	rc.entry = entry
	rc.mu.Unlock()
}

// runRevalidation performs spec.md §4.4 steps 6-8 for whichever goroutine
// ends up actually running them (the collapse initiator, or the sole
// caller when collapsing is disallowed).
func (rc *ReplyContext) runRevalidation(ctx context.Context, oldEntry Entry, shadow *shadowState, role CollapseRole) (*revalidationOutcome, error) {
	revReq := cloneRequestForRevalidation(rc.req, oldEntry)

	newEntry, err := rc.engine.store.Create(ctx, rc.req.EffectiveURI, rc.req.EffectiveURI, EntryFlags{}, rc.req.Method)
	if err != nil {
		return nil, fmt.Errorf("runRevalidation: creating entry: %w", err)
	}
	if err := rc.engine.store.Lock(ctx, newEntry, "revalidation"); err != nil {
		return nil, fmt.Errorf("runRevalidation: locking entry: %w", err)
	}

	rc.mu.Lock()
	rc.entry = newEntry
	rc.mu.Unlock()

	if role != CollapseSlave {
		if rc.engine.forwarding == nil {
			return nil, fmt.Errorf("runRevalidation: %w", errNoForwarding)
		}
		if err := rc.engine.callForwarding(ctx, newEntry, revReq); err != nil {
			return &revalidationOutcome{tag: TagRefreshFailOld}, nil
		}
	}

	headerBuf, copyErr := rc.syncFetchHeaders(ctx, newEntry)
	newReply := rc.engine.store.FreshestReply(newEntry)
	if newReply == nil || len(headerBuf) == 0 {
		return &revalidationOutcome{tag: TagRefreshFailOld}, nil
	}

	outcome := classifyIMSReply(rc, shadow, newEntry, newReply, copyErr)
	if outcome.tag == TagRefreshUnmodified && !outcome.serveNew {
		if err := rc.engine.store.UpdateOnNotModified(ctx, shadow.entry, newEntry); err != nil {
			rc.engine.log().Warn("revalidation merge failed", "error", err)
		}
	}
	return outcome, nil
}

// cloneRequestForRevalidation implements spec.md §4.4 step 6: propagate
// the old entry's Last-Modified, and its strong ETag when the client
// didn't already supply an If-None-Match, into the outgoing request.
func cloneRequestForRevalidation(req *Request, oldEntry Entry) *Request {
	out := *req
	out.IMSTime = oldEntry.LastModified()
	out.IMSLen = oldEntry.Length()
	if len(out.IfNoneMatch) == 0 {
		if freshest := oldEntry.Memory(); freshest != nil && freshest.FreshestReply != nil {
			if et := freshest.FreshestReply.Header.Get(headerETag); et != "" && isStrongETag(et) {
				out.IfNoneMatch = []string{et}
			}
		}
	}
	return &out
}

func isStrongETag(etag string) bool {
	return len(etag) > 0 && etag[0] != 'W'
}

// saveShadow implements spec.md §4.4 step 2.
func (rc *ReplyContext) saveShadow(ctx context.Context, oldEntry Entry) *shadowState {
	var lastModified = oldEntry.LastModified()
	var etag string
	if mem := oldEntry.Memory(); mem != nil && mem.FreshestReply != nil {
		etag = mem.FreshestReply.Header.Get(headerETag)
	}

	rc.mu.Lock()
	shadow := &shadowState{
		entry:        oldEntry,
		sub:          rc.sub,
		lastModified: lastModified,
		etag:         etag,
		reqofs:       rc.reqofs,
	}
	rc.shadow = shadow
	rc.sub = nil
	rc.entry = nil
	rc.mu.Unlock()
	return shadow
}

// restoreShadow swaps the shadow entry back in as rc's current entry and
// discards the revalidation entry, per spec.md §4.4's closing sentence.
func (rc *ReplyContext) restoreShadow(ctx context.Context) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.entry != nil {
		_ = rc.engine.store.Unlock(ctx, rc.entry, "revalidation")
	}
	if rc.shadow == nil {
		return
	}
	rc.entry = rc.shadow.entry
	rc.sub = rc.shadow.sub
	rc.reqofs = rc.shadow.reqofs
	rc.shadow = nil
}

// discardShadow releases the saved shadow without restoring it, per
// spec.md §4.4's closing sentence ("sending upstream" branch).
func (rc *ReplyContext) discardShadow(ctx context.Context) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.shadow == nil {
		return
	}
	if rc.shadow.sub != nil {
		_ = rc.shadow.sub.Close()
	}
	if rc.shadow.entry != nil {
		_ = rc.engine.store.Unlock(ctx, rc.shadow.entry, "shadow")
	}
	rc.shadow = nil
}

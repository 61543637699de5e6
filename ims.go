package cachegate

import "net/http"

// revalidationOutcome is what the IMS reply handler decides once bytes
// land on the revalidation entry, per spec.md §4.4's "IMS reply handling"
// bullet list.
type revalidationOutcome struct {
	tag         Tag
	serveNew    bool // true: send the freshly arrived reply; false: restore shadow and send the old one
	restartMiss bool // true: shadow was non-shareable, caller must fall through to a full miss
	reply       *Reply
	entry       Entry // set alongside serveNew: the revalidation entry every collapse participant must attach to
}

// classifyIMSReply implements spec.md §4.4's IMS reply handling: given the
// newly arrived reply on the revalidation entry, decide whether to serve
// it, restore the shadow (old entry), or fall through to a full miss.
func classifyIMSReply(rc *ReplyContext, shadow *shadowState, newEntry Entry, newReply *Reply, copyErr error) *revalidationOutcome {
	if copyErr != nil && !newEntry.Flags().Aborted {
		// Store error with the entry not yet aborted: caller should wait
		// for a further callback rather than decide now. Callers only
		// invoke classifyIMSReply once headers are in, so this is treated
		// as a fail-old rather than looping.
		return &revalidationOutcome{tag: TagRefreshFailOld}
	}

	if rc.collapseRole == CollapseSlave && newEntry.Flags().Special && !newEntry.Flags().BadLength {
		// The entry this slave attached to turned out non-shareable
		// (became private/special after attach): fall through to a full
		// miss rather than serve it.
		return &revalidationOutcome{tag: TagMiss, restartMiss: true}
	}

	if newEntry.Flags().Aborted {
		return &revalidationOutcome{tag: TagRefreshFailOld}
	}

	switch {
	case newReply.StatusCode == http.StatusNotModified:
		if shadow != nil && isConditionalIMSStillUnmodified(rc.req, shadow) {
			return &revalidationOutcome{tag: TagRefreshUnmodified, serveNew: true, reply: make304Like(newReply, shadow), entry: newEntry}
		}
		return &revalidationOutcome{tag: TagRefreshUnmodified, serveNew: false}

	case newReply.StatusCode < http.StatusInternalServerError:
		if shadow != nil && replyIsOlderThan(newReply, shadow) {
			newReply.ignored = true
			return &revalidationOutcome{tag: TagRefreshFailOld, serveNew: false}
		}
		return &revalidationOutcome{tag: TagRefreshModified, serveNew: true, reply: newReply, entry: newEntry}

	default:
		// RFC 5861 stale-if-error: a stale-if-error directive on either the
		// stored response or this request can serve the old entry even when
		// fail_on_validation_err would otherwise forward the error.
		serveStale := !rc.engine.cfg.FailOnValidationErr
		if shadow != nil {
			if oldReply := rc.engine.store.FreshestReply(shadow.entry); oldReply != nil {
				if canStaleOnError(oldReply.Header, rc.req.Header, rc.engine.log()) {
					serveStale = true
				}
			}
		}
		if !serveStale {
			return &revalidationOutcome{tag: TagRefreshFailErr, serveNew: true, reply: newReply, entry: newEntry}
		}
		return &revalidationOutcome{tag: TagRefreshFailOld, serveNew: false}
	}
}

// isConditionalIMSStillUnmodified implements spec.md §4.4's "client itself
// sent a conditional IMS that is still not modified" check.
func isConditionalIMSStillUnmodified(req *Request, shadow *shadowState) bool {
	if !req.hasIMS() {
		return false
	}
	return !shadow.lastModified.After(req.IMSTime)
}

// replyIsOlderThan implements RFC 9111 §4's Date-based staleness guard: an
// upstream response whose Date predates the stored entry's is ignored.
func replyIsOlderThan(newReply *Reply, shadow *shadowState) bool {
	newDate, err := Date(newReply.Header)
	if err != nil {
		return false
	}
	if shadow.entry == nil {
		return false
	}
	stored := shadow.entry.Date()
	if stored.IsZero() {
		return false
	}
	return newDate.Before(stored)
}

// make304Like builds the 304 handed to the client when the client's own
// conditional request is still unmodified after revalidation, carrying
// the old entry's validators forward.
func make304Like(newReply *Reply, shadow *shadowState) *Reply {
	r := &Reply{StatusCode: http.StatusNotModified, Header: make(http.Header)}
	if lm := newReply.Header.Get(headerLastModified); lm != "" {
		r.Header.Set(headerLastModified, lm)
	} else if !shadow.lastModified.IsZero() {
		r.Header.Set(headerLastModified, shadow.lastModified.UTC().Format(http.TimeFormat))
	}
	if et := newReply.Header.Get(headerETag); et != "" {
		r.Header.Set(headerETag, et)
	} else if shadow.etag != "" {
		r.Header.Set(headerETag, shadow.etag)
	}
	return r
}

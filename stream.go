package cachegate

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// pumpOne implements spec.md §4.8's Streaming Pump: one delivery cycle per
// GetMoreData call once classification/revalidation has produced a final
// entry (rc.storeLogicComplete).
func (rc *ReplyContext) pumpOne(ctx context.Context, next NextNode) error {
	if !rc.alive() {
		return ErrDeleting
	}

	rc.markQoSOnce()

	rc.mu.Lock()
	entry := rc.entry
	headersSent := rc.headersSent
	reqofs := rc.reqofs
	rc.mu.Unlock()

	if entry == nil {
		return fmt.Errorf("pumpOne: %w", ErrContextNotAttached)
	}

	if entry.Flags().Aborted {
		return rc.deliverStreamError(ctx, next)
	}

	if !headersSent {
		return rc.deliverHeadAndFirstBody(ctx, entry, next)
	}

	return rc.deliverBody(ctx, entry, next, reqofs)
}

// markQoSOnce implements the supplemented QoS-marking-on-first-callback
// feature (SUPPLEMENTED FEATURES #2 in SPEC_FULL.md).
func (rc *ReplyContext) markQoSOnce() {
	rc.mu.Lock()
	already := rc.qosMarked
	hit := rc.tag != "" && rc.tag != TagMiss
	rc.qosMarked = true
	rc.mu.Unlock()

	if !already && rc.engine.qos != nil {
		rc.engine.qos.MarkReply(hit)
	}
}

// deliverHeadAndFirstBody implements spec.md §4.8's "headers not yet
// sent" branch: clone the reply, run reply-access, build headers, then
// hand off the body slice past the header boundary.
func (rc *ReplyContext) deliverHeadAndFirstBody(ctx context.Context, entry Entry, next NextNode) error {
	freshest := rc.engine.store.FreshestReply(entry)
	if freshest == nil {
		rc.mu.Lock()
		reply := rc.reply
		rc.mu.Unlock()
		freshest = reply
	}
	if freshest == nil {
		return fmt.Errorf("deliverHeadAndFirstBody: no reply available")
	}

	rc.mu.Lock()
	if rc.reply == nil {
		rc.reply = cloneReply(freshest)
	}
	rc.mu.Unlock()

	if rc.engine.access != nil {
		decision := rc.engine.access.FastCheck(ctx, rc.req, newReplyView(rc.reply))
		if decision == AccessDeny {
			return rc.synthesizeAccessDenied(ctx, next)
		}

		// FastCheck already gated the decision; this slower recheck runs
		// off the hot path and only ever surfaces a disagreement for audit
		// purposes, since the reply is already committed to being sent.
		rc.engine.access.NonBlockingCheck(ctx, rc.req, newReplyView(rc.reply), func(recheck AccessDecision) {
			if recheck == AccessDeny {
				rc.engine.log().Warn("non-blocking access recheck disagreed with fast check",
					"uri", rc.req.EffectiveURI)
			}
		})
	}

	rc.buildHeaders(headerOptions{
		peerPassesAuth:   rc.engine.cfg.PeerPassesAuth,
		connectionAuthOK: true,
		surrogateCapable: true,
	})

	rc.mu.Lock()
	rc.headersSent = true
	headOnly := rc.req.Method == http.MethodHead
	reply := rc.reply
	rc.mu.Unlock()

	if headOnly {
		rc.mu.Lock()
		rc.storeLogicComplete = true
		rc.complete = true
		rc.mu.Unlock()
		return next.Deliver(reply, nil, StreamComplete)
	}

	return rc.deliverBody(ctx, entry, next, 0)
}

// deliverBody implements spec.md §4.8's byte-copy branch plus the
// transfer-done computation.
func (rc *ReplyContext) deliverBody(ctx context.Context, entry Entry, next NextNode, offset int64) error {
	start := time.Now()

	type result struct {
		buf CopyBuffer
		err error
	}
	ch := make(chan result, 1)

	rc.mu.Lock()
	sub := rc.sub
	rc.mu.Unlock()

	if sub == nil {
		s, err := rc.engine.store.Subscribe(ctx, entry, func(buf CopyBuffer, err error) {
			ch <- result{buf, err}
		})
		if err != nil {
			return fmt.Errorf("deliverBody: subscribe: %w", err)
		}
		rc.mu.Lock()
		rc.sub = s
		sub = s
		rc.mu.Unlock()
	}

	if err := rc.engine.store.Copy(ctx, sub, entry, offset, bodyCopySize); err != nil {
		return fmt.Errorf("deliverBody: copy: %w", err)
	}

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}

	if r.err != nil || r.buf.Flags.Error {
		return rc.deliverStreamError(ctx, next)
	}

	n := len(r.buf.Data)
	rc.mu.Lock()
	rc.reqofs = offset + int64(n)
	newOfs := rc.reqofs
	reply := rc.reply
	rc.mu.Unlock()

	rc.engine.metrics.observeStream(n, time.Since(start))

	status := rc.transferStatus(entry, newOfs, r.buf.Flags.TransferDone)
	if status == StreamComplete || status == StreamUnplannedComplete {
		rc.mu.Lock()
		rc.storeLogicComplete = true
		rc.complete = true
		rc.mu.Unlock()
	}

	return next.Deliver(reply, r.buf.Data, status)
}

// transferStatus implements spec.md §4.8's "Transfer-done computation".
func (rc *ReplyContext) transferStatus(entry Entry, offset int64, storeSignaledDone bool) StreamStatus {
	if entry.Status() == EntryOK {
		if offset >= entry.Length() {
			return StreamComplete
		}
		return StreamNone
	}
	if storeSignaledDone {
		return StreamUnplannedComplete
	}
	return StreamNone
}

func (rc *ReplyContext) deliverStreamError(ctx context.Context, next NextNode) error {
	rc.mu.Lock()
	rc.storeLogicComplete = true
	rc.complete = true
	reply := rc.reply
	rc.mu.Unlock()
	return next.Deliver(reply, nil, StreamFailed)
}

// synthesizeAccessDenied implements spec.md §4.8's "on deny, synthesize
// an error page" branch.
func (rc *ReplyContext) synthesizeAccessDenied(ctx context.Context, next NextNode) error {
	if err := rc.SetReplyToError(ctx, http.StatusForbidden, "Access Denied"); err != nil {
		return err
	}
	rc.buildHeaders(headerOptions{peerPassesAuth: rc.engine.cfg.PeerPassesAuth})
	rc.mu.Lock()
	rc.headersSent = true
	reply := rc.reply
	rc.mu.Unlock()
	return next.Deliver(reply, reply.Body, StreamComplete)
}

const bodyCopySize = 64 * 1024

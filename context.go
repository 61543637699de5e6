package cachegate

import (
	"context"
	"fmt"
	"net/http"
)

// NextNode is the downstream stream node the engine hands finished
// deliveries to (spec.md §6's outbound interface).
type NextNode interface {
	Deliver(reply *Reply, buf []byte, status StreamStatus) error
}

// GetMoreData is spec.md §4.1's sole driver, invoked by the stream head.
// Preconditions: next is non-nil and the context is attached (or about to
// dispatch for the first time).
func (rc *ReplyContext) GetMoreData(ctx context.Context, next NextNode) error {
	if !rc.alive() {
		return ErrDeleting
	}
	if next == nil {
		return ErrNoNextNode
	}

	rc.mu.Lock()
	storeLogicComplete := rc.storeLogicComplete
	rc.mu.Unlock()

	if storeLogicComplete {
		return rc.pumpOne(ctx, next)
	}

	switch {
	case isPurgeMethod(rc.req.Method):
		return rc.runPurge(ctx)
	case rc.req.Method == http.MethodTrace && rc.req.Header.Get("Max-Forwards") == "0":
		return rc.traceReply(ctx)
	default:
		return rc.identifyStoreObject(ctx)
	}
}

// identifyStoreObject runs classification and dispatches on its verdict,
// per spec.md §4.2/§4.3/§4.5.
func (rc *ReplyContext) identifyStoreObject(ctx context.Context) error {
	result, err := rc.classify(ctx)
	if err != nil {
		return fmt.Errorf("identify store object: %w", err)
	}
	rc.recordFirstLookup(result.detail)
	rc.engine.metrics.observeVerdict(result.verdict)
	return rc.dispatchVerdict(ctx, result)
}

func (rc *ReplyContext) dispatchVerdict(ctx context.Context, result lookupResult) error {
	switch result.verdict {
	case VerdictHit:
		buf, copyErr := rc.syncFetchHeaders(ctx, result.entry)
		return rc.processHit(ctx, result.entry, buf, copyErr)
	case VerdictRedirect:
		return rc.enterMiss(ctx, "redirect-predecided")
	case VerdictClientRefreshMiss:
		return rc.enterClientRefreshMiss(ctx)
	case VerdictCollapseProhibitedMiss, VerdictInvalidMiss, VerdictMiss:
		return rc.enterMiss(ctx, result.verdict.String())
	default:
		return rc.enterMiss(ctx, "unknown-verdict")
	}
}

// syncFetchHeaders performs the first store-copy for a hit candidate to
// obtain its header bytes. The real Store.Copy is callback-based; this
// helper blocks on a buffered channel to give the rest of the engine a
// synchronous call shape, matching spec.md §5's "execute to quiescence"
// model for a single-threaded loop.
func (rc *ReplyContext) syncFetchHeaders(ctx context.Context, entry Entry) ([]byte, error) {
	type result struct {
		buf CopyBuffer
		err error
	}
	ch := make(chan result, 1)

	sub, err := rc.engine.store.Subscribe(ctx, entry, func(buf CopyBuffer, err error) {
		ch <- result{buf, err}
	})
	if err != nil {
		return nil, err
	}

	rc.mu.Lock()
	rc.sub = sub
	rc.mu.Unlock()

	if err := rc.engine.store.Copy(ctx, sub, entry, 0, headerCopySize); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.buf.Data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

const headerCopySize = 64 * 1024

// traceReply implements SPEC_FULL.md's supplemented TRACE short-circuit,
// grounded on client_side_reply.cc's Max-Forwards:0 handling: echo the
// request back as a text/plain body instead of forwarding.
func (rc *ReplyContext) traceReply(ctx context.Context) error {
	body := fmt.Sprintf("TRACE %s\r\n", rc.req.EffectiveURI)
	for k, vs := range rc.req.Header {
		for _, v := range vs {
			body += fmt.Sprintf("%s: %s\r\n", k, v)
		}
	}
	reply := &Reply{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte(body),
	}
	return rc.setReplyToReply(ctx, reply)
}

// SetReplyToError implements spec.md §4.1: inject an engine-generated
// error response into a freshly created private store entry.
func (rc *ReplyContext) SetReplyToError(ctx context.Context, status int, title string) error {
	reply := &Reply{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:       []byte(title),
	}
	return rc.setReplyToReply(ctx, reply)
}

// setReplyToReply implements spec.md §4.1: inject reply into a private
// entry the stream then reads like any other. No origin contact occurs.
func (rc *ReplyContext) setReplyToReply(ctx context.Context, reply *Reply) error {
	entry, err := rc.engine.store.Create(ctx, rc.req.EffectiveURI, rc.req.EffectiveURI, EntryFlags{Special: true}, rc.req.Method)
	if err != nil {
		return fmt.Errorf("setReplyToReply: %w", err)
	}

	rc.mu.Lock()
	rc.entry = entry
	rc.reply = reply
	rc.storeLogicComplete = true
	rc.complete = true
	rc.mu.Unlock()
	return nil
}

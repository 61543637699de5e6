package cachegate

import (
	"context"
	"fmt"
	"net/http"
)

// enterMiss implements spec.md §4.5's Miss Path.
func (rc *ReplyContext) enterMiss(ctx context.Context, reason string) error {
	rc.mu.Lock()
	if rc.entry != nil {
		if rc.entry.Flags().Special {
			rc.engine.log().Error("miss path abandoned a SPECIAL entry", "reason", reason)
		}
		rc.detachCurrentLocked()
	}
	rc.mu.Unlock()

	if isPurgeMethod(rc.req.Method) {
		return rc.runPurge(ctx)
	}
	if isUnsafeMethod(rc.req.Method) {
		if err := rc.purgeEntriesByURL(ctx, rc.req.EffectiveURI); err != nil {
			rc.engine.log().Warn("purge-on-unsafe-method failed", "error", err)
		}
	}

	if rc.req.Flags.OnlyIfCached {
		return rc.SetReplyToError(ctx, http.StatusGatewayTimeout, "Gateway Timeout: only-if-cached miss")
	}

	if rc.req.Flags.LoopDetected {
		return rc.SetReplyToError(ctx, http.StatusForbidden, "Access Denied: forwarding loop detected")
	}

	// Redirect-predecided: no redirect-prediction collaborator is wired
	// in yet (see lookup.go step 6's note), so this branch is presently
	// unreachable; kept to match spec.md §4.5's enumerated steps.

	return rc.startForwarding(ctx)
}

// enterClientRefreshMiss implements the CLIENT_REFRESH_MISS classification
// from spec.md §4.2 step 9 and §4.3's stale-with-no-cache branch: treated
// like a miss but tagged distinctly for logs/Cache-Status.
func (rc *ReplyContext) enterClientRefreshMiss(ctx context.Context) error {
	rc.setTag(TagMiss)
	return rc.enterMiss(ctx, "client-refresh")
}

// startForwarding creates a private entry and launches the Forwarding
// collaborator, per spec.md §4.5's final step.
func (rc *ReplyContext) startForwarding(ctx context.Context) error {
	entry, err := rc.engine.store.Create(ctx, rc.req.EffectiveURI, rc.req.EffectiveURI, EntryFlags{}, rc.req.Method)
	if err != nil {
		return fmt.Errorf("startForwarding: creating entry: %w", err)
	}
	if err := rc.engine.store.Lock(ctx, entry, "forwarding"); err != nil {
		return fmt.Errorf("startForwarding: locking entry: %w", err)
	}

	rc.mu.Lock()
	rc.entry = entry
	rc.collapseRole = CollapseNone
	rc.mu.Unlock()

	if rc.engine.forwarding == nil {
		return fmt.Errorf("startForwarding: %w", errNoForwarding)
	}
	if err := rc.engine.callForwarding(ctx, entry, rc.req); err != nil {
		return err
	}

	if isUnsafeMethod(rc.req.Method) {
		if reply := rc.engine.store.FreshestReply(entry); reply != nil {
			rc.invalidateOnResponse(ctx, rc.req.EffectiveURI, reply)
		}
	}
	return nil
}

var errNoForwarding = fmt.Errorf("no Forwarding collaborator configured")

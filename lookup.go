package cachegate

import "context"

// lookupResult bundles the classification and the entry it was made
// against, per spec.md §4.2.
type lookupResult struct {
	verdict Verdict
	entry   Entry
	detail  string
}

// classify implements spec.md §4.2's Lookup & Classification rules, in
// the order the spec lists them. It is called both for the first lookup
// of a transaction and for the re-lookup after a Vary mismatch; only the
// first call's detail string is preserved by the caller (rc.firstLookup).
func (rc *ReplyContext) classify(ctx context.Context) (lookupResult, error) {
	req := rc.req

	// Step 1: no-cache and not internal skips the store entirely.
	if req.Flags.NoCache && !req.Flags.Internal {
		return lookupResult{verdict: VerdictMiss, detail: "no-cache"}, nil
	}

	// Step 2: query the store by public key.
	entry, found, err := rc.engine.store.LookupPublic(ctx, req, LookupPublic)
	if err != nil {
		return lookupResult{}, err
	}
	detail := "miss"
	if found {
		detail = "hit"
	}

	// Step 3: no-cache / internal no-cache-hack invalidates negative
	// IP-cache entries for the host; this engine has no IP cache of its
	// own to invalidate (external collaborator, spec.md §1's scope note),
	// so this step is a documented no-op hook.

	// Step 4: no entry -> MISS.
	if !found {
		return lookupResult{verdict: VerdictMiss, detail: detail}, nil
	}

	// Step 5: offline mode -> HIT regardless of freshness.
	if rc.engine.cfg.Offline {
		return lookupResult{verdict: VerdictHit, entry: entry, detail: detail}, nil
	}

	flags := entry.Flags()

	// Step 6: redirect pre-decided upstream -- this engine has no
	// upstream redirect-prediction step wired in yet; entries never carry
	// that marker today, so this branch is unreachable until such a
	// collaborator is added.

	// Step 7: not valid-to-send (e.g. store still has it PENDING with no
	// bytes at all) -> forget, MISS. We treat a BadLength entry the same
	// way: it cannot be safely served.
	if flags.BadLength {
		return lookupResult{verdict: VerdictInvalidMiss, detail: detail}, nil
	}

	// Step 8: SPECIAL entries always HIT, overriding client directives.
	if flags.Special {
		return lookupResult{verdict: VerdictHit, entry: entry, detail: detail}, nil
	}

	// Step 9: client no-cache forces a refresh classified separately from
	// a plain MISS so the header builder / logs can tell them apart.
	if req.Flags.NoCache {
		return lookupResult{verdict: VerdictClientRefreshMiss, detail: detail}, nil
	}

	// Step 10: collapsing required but not permitted for this context.
	if rc.engine.store.AllowCollapsing(ctx, entry, req.Flags, req.Method) && !rc.engine.cfg.CollapsedForwarding {
		return lookupResult{verdict: VerdictCollapseProhibitedMiss, detail: detail}, nil
	}

	// Step 11: HIT.
	return lookupResult{verdict: VerdictHit, entry: entry, detail: detail}, nil
}

// recordFirstLookup preserves spec.md §4.2's "the first lookup's
// classification is preserved" rule: subsequent internal re-lookups (Vary
// mismatch) never overwrite it.
func (rc *ReplyContext) recordFirstLookup(detail string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.firstLookupSet {
		rc.firstLookup = detail
		rc.firstLookupSet = true
	}
}

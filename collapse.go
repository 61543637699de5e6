package cachegate

import "context"

// collapsingAllowed implements spec.md §4.4 step 3: collapsed revalidation
// requires the global toggle and a request that carries no Vary headers
// (a Vary-bearing request can't safely share a single upstream fetch with
// requests keyed differently). The store-is-SMP-aware check spec.md also
// names has no concrete collaborator in this module - singleflight.Group
// is itself the dedup point, so it stands in for that check.
func (rc *ReplyContext) collapsingAllowed() bool {
	return rc.engine.cfg.CollapsedForwarding && rc.req.VaryHeaders == ""
}

// joinOrStartCollapse implements spec.md §4.4 steps 4-5 using
// golang.org/x/sync/singleflight: the first caller for a cache key runs
// do and becomes the initiator; every other caller blocks on the same
// call and becomes a slave, receiving the initiator's result once it
// returns.
func (rc *ReplyContext) joinOrStartCollapse(ctx context.Context, entry Entry, do func(ctx context.Context, entry Entry, role CollapseRole) (*revalidationOutcome, error)) (*revalidationOutcome, error) {
	if !rc.collapsingAllowed() {
		rc.mu.Lock()
		rc.collapseRole = CollapseNone
		rc.mu.Unlock()
		outcome, err := do(ctx, entry, CollapseNone)
		rc.engine.metrics.observeCollapseJoin(CollapseNone, true)
		return outcome, err
	}

	rc.mu.Lock()
	rc.collapseRole = CollapseSlave
	rc.mu.Unlock()

	key := cacheKey(rc.req)
	v, err, _ := rc.engine.collapse.Do(key, func() (interface{}, error) {
		rc.mu.Lock()
		rc.collapseRole = CollapseInitiator
		rc.mu.Unlock()
		return do(ctx, entry, CollapseInitiator)
	})

	rc.mu.Lock()
	role := rc.collapseRole
	rc.mu.Unlock()
	rc.engine.metrics.observeCollapseJoin(role, role == CollapseInitiator)

	if v == nil {
		return nil, err
	}
	return v.(*revalidationOutcome), err
}

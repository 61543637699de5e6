package cachegate

import (
	"context"
	"testing"
)

func TestCollapsingAllowedRequiresNoVaryHeaders(t *testing.T) {
	e := &Engine{cfg: config{CollapsedForwarding: true}, metrics: newMetrics(nil)}
	rc := &ReplyContext{engine: e, req: &Request{VaryHeaders: ""}}
	if !rc.collapsingAllowed() {
		t.Fatal("expected collapsing allowed with no Vary headers")
	}

	rc.req.VaryHeaders = "Accept-Language:en"
	if rc.collapsingAllowed() {
		t.Fatal("expected collapsing disallowed when request carries Vary headers")
	}
}

func TestCollapsingAllowedRespectsConfigToggle(t *testing.T) {
	e := &Engine{cfg: config{CollapsedForwarding: false}, metrics: newMetrics(nil)}
	rc := &ReplyContext{engine: e, req: &Request{}}
	if rc.collapsingAllowed() {
		t.Fatal("expected collapsing disallowed when config toggle is off")
	}
}

func TestJoinOrStartCollapseBypassesSingleflightWhenDisallowed(t *testing.T) {
	e := &Engine{cfg: config{CollapsedForwarding: false}, metrics: newMetrics(nil)}
	rc := &ReplyContext{engine: e, req: &Request{Method: "GET", EffectiveURI: "http://example.com/a"}}

	called := false
	outcome, err := rc.joinOrStartCollapse(context.Background(), nil, func(ctx context.Context, entry Entry, role CollapseRole) (*revalidationOutcome, error) {
		called = true
		if role != CollapseNone {
			t.Fatalf("role = %v, want CollapseNone", role)
		}
		return &revalidationOutcome{tag: TagRefreshModified}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("do callback was never invoked")
	}
	if outcome.tag != TagRefreshModified {
		t.Fatalf("outcome.tag = %v", outcome.tag)
	}
	if rc.collapseRole != CollapseNone {
		t.Fatalf("collapseRole = %v, want CollapseNone", rc.collapseRole)
	}
}

func TestJoinOrStartCollapseSingleInitiatorPath(t *testing.T) {
	e := &Engine{cfg: config{CollapsedForwarding: true}, metrics: newMetrics(nil)}
	rc := &ReplyContext{engine: e, req: &Request{Method: "GET", EffectiveURI: "http://example.com/a"}}

	outcome, err := rc.joinOrStartCollapse(context.Background(), nil, func(ctx context.Context, entry Entry, role CollapseRole) (*revalidationOutcome, error) {
		if role != CollapseInitiator {
			t.Fatalf("role = %v, want CollapseInitiator", role)
		}
		return &revalidationOutcome{tag: TagRefreshUnmodified}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.tag != TagRefreshUnmodified {
		t.Fatalf("outcome.tag = %v", outcome.tag)
	}
	if rc.collapseRole != CollapseInitiator {
		t.Fatalf("collapseRole = %v, want CollapseInitiator", rc.collapseRole)
	}
}

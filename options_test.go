package cachegate

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewAppliesDefaultConfig(t *testing.T) {
	e, err := New(&fakeLookupStore{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !e.cfg.CollapsedForwarding || !e.cfg.EnablePurge || !e.cfg.ErrorPconns || !e.cfg.ClientPconns {
		t.Fatalf("cfg = %+v, want every default toggle on", e.cfg)
	}
	if e.cfg.Hostname != "cachegate" {
		t.Fatalf("Hostname = %q, want cachegate", e.cfg.Hostname)
	}
}

func TestWithOptionsOverrideDefaults(t *testing.T) {
	e, err := New(&fakeLookupStore{},
		WithOffline(true),
		WithPurgeEnabled(false),
		WithHostname("edge-1"),
		WithPublicCache(true),
		WithFailOnValidationError(true),
		WithMaxBodyBytes(1024),
		WithPeerPassesAuthentication(true),
		WithSendHitDenyList([]string{"Set-Cookie"}),
		WithPconnPolicy(false, false),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !e.cfg.Offline {
		t.Fatal("expected Offline true")
	}
	if e.cfg.EnablePurge {
		t.Fatal("expected EnablePurge false")
	}
	if e.cfg.Hostname != "edge-1" {
		t.Fatalf("Hostname = %q, want edge-1", e.cfg.Hostname)
	}
	if !e.cfg.PublicCache || !e.cfg.FailOnValidationErr || !e.cfg.PeerPassesAuth {
		t.Fatalf("cfg = %+v, want those toggles on", e.cfg)
	}
	if e.cfg.MaxBodyBytes != 1024 {
		t.Fatalf("MaxBodyBytes = %d, want 1024", e.cfg.MaxBodyBytes)
	}
	if len(e.cfg.SendHitDenyList) != 1 || e.cfg.SendHitDenyList[0] != "Set-Cookie" {
		t.Fatalf("SendHitDenyList = %v", e.cfg.SendHitDenyList)
	}
	if e.cfg.ErrorPconns || e.cfg.ClientPconns {
		t.Fatal("expected both pconn policy flags false")
	}
}

func TestWithMetricsRegistererReplacesDefaultRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, err := New(&fakeLookupStore{}, WithMetricsRegisterer(reg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.metrics == nil {
		t.Fatal("expected metrics to be initialized")
	}
}

type fakeQoSMarker struct {
	marked []bool
}

func (m *fakeQoSMarker) MarkReply(hit bool) { m.marked = append(m.marked, hit) }

func TestWithQoSMarkerInstallsMarker(t *testing.T) {
	marker := &fakeQoSMarker{}
	e, err := New(&fakeLookupStore{}, WithQoSMarker(marker))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.qos != marker {
		t.Fatal("expected qos marker to be installed")
	}
}

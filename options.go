package cachegate

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a function that configures an Engine. Use the With* functions
// to build one, mirroring the teacher's TransportOption pattern.
type Option func(*Engine) error

// WithLogger sets the structured logger the engine uses. If unset, calls
// fall back to slog.Default(), matching the teacher's logger.go.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithForwarding sets the collaborator used to fetch from an origin or
// peer on miss and revalidation.
func WithForwarding(f Forwarding) Option {
	return func(e *Engine) error {
		e.forwarding = f
		return nil
	}
}

// WithAccessChecker sets the reply-access ACL collaborator (spec.md §6).
// If unset, every hit and forward is allowed.
func WithAccessChecker(a AccessChecker) Option {
	return func(e *Engine) error {
		e.access = a
		return nil
	}
}

// WithNeighbors sets the collaborator used to broadcast HTCP CLR
// invalidation to sibling caches. If unset, purge/invalidation is local
// only.
func WithNeighbors(n Neighbors) Option {
	return func(e *Engine) error {
		e.neighbors = n
		return nil
	}
}

// WithCollapsedForwarding toggles spec.md §4.4's collapsed revalidation.
// Default: enabled.
func WithCollapsedForwarding(enabled bool) Option {
	return func(e *Engine) error {
		e.cfg.CollapsedForwarding = enabled
		return nil
	}
}

// WithOffline makes every lookup with an entry present a HIT regardless of
// freshness (spec.md §4.2 step 5).
func WithOffline(offline bool) Option {
	return func(e *Engine) error {
		e.cfg.Offline = offline
		return nil
	}
}

// WithPurgeEnabled toggles whether PURGE requests are honored (spec.md
// §4.6). Default: enabled.
func WithPurgeEnabled(enabled bool) Option {
	return func(e *Engine) error {
		e.cfg.EnablePurge = enabled
		return nil
	}
}

// WithPublicCache records whether this engine is a shared/public cache.
// The flag is stored in the engine config only: no storage decision and
// no step of the header builder reads it.
func WithPublicCache(public bool) Option {
	return func(e *Engine) error {
		e.cfg.PublicCache = public
		return nil
	}
}

// WithFailOnValidationError controls spec.md §4.4's REFRESH_FAIL_ERR vs
// REFRESH_FAIL_OLD choice when an upstream revalidation returns a server
// error: true forwards the error to the client, false serves the stale
// entry. Default: false (serve stale).
func WithFailOnValidationError(fail bool) Option {
	return func(e *Engine) error {
		e.cfg.FailOnValidationErr = fail
		return nil
	}
}

// WithPconnPolicy controls the keep-alive decision inputs named
// error_pconns and client_pconns in spec.md §4.7.9.
func WithPconnPolicy(errorPconns, clientPconns bool) Option {
	return func(e *Engine) error {
		e.cfg.ErrorPconns = errorPconns
		e.cfg.ClientPconns = clientPconns
		return nil
	}
}

// WithHostname sets the hostname advertised in the Cache-Status header
// (spec.md §6).
func WithHostname(hostname string) Option {
	return func(e *Engine) error {
		e.cfg.Hostname = hostname
		return nil
	}
}

// WithPeerPassesAuthentication controls whether Proxy-Authenticate is
// stripped from hits (spec.md §4.7.2): true when the chosen peer is
// configured to pass authentication through.
func WithPeerPassesAuthentication(passes bool) Option {
	return func(e *Engine) error {
		e.cfg.PeerPassesAuth = passes
		return nil
	}
}

// WithMaxBodyBytes sets the body size past which ReplyStatus reports
// StreamFailed. The pump does not stop copying at the limit and no 403
// "TOO_BIG" reply is synthesized. Zero means unlimited.
func WithMaxBodyBytes(n int64) Option {
	return func(e *Engine) error {
		e.cfg.MaxBodyBytes = n
		return nil
	}
}

// WithSendHitDenyList stores a send_hit pattern list (spec.md §4.3) in the
// engine config. The hit path does not consult this list; send_hit denial
// comes only from the AccessChecker's FastCheck.
func WithSendHitDenyList(patterns []string) Option {
	return func(e *Engine) error {
		e.cfg.SendHitDenyList = patterns
		return nil
	}
}

// WithMetricsRegisterer registers the engine's Prometheus collectors
// against reg instead of the default registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) error {
		e.metrics = newMetrics(reg)
		return nil
	}
}

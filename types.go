package cachegate

import (
	"net/http"
	"time"
)

// Verdict is the classification a lookup produces for a request.
type Verdict int

const (
	VerdictMiss Verdict = iota
	VerdictHit
	VerdictRedirect
	VerdictClientRefreshMiss
	VerdictCollapseProhibitedMiss
	VerdictInvalidMiss
)

func (v Verdict) String() string {
	switch v {
	case VerdictHit:
		return "HIT"
	case VerdictRedirect:
		return "REDIRECT"
	case VerdictClientRefreshMiss:
		return "CLIENT_REFRESH_MISS"
	case VerdictCollapseProhibitedMiss:
		return "COLLAPSE_PROHIBITED_MISS"
	case VerdictInvalidMiss:
		return "INVALID_MISS"
	default:
		return "MISS"
	}
}

// Tag is the final outcome label attached to a served reply, surfaced in
// the Cache-Status header and in logs.
type Tag string

const (
	TagHit                Tag = "Hit"
	TagMemHit             Tag = "MemHit"
	TagOfflineHit         Tag = "OfflineHit"
	TagNegativeHit        Tag = "NegativeHit"
	TagMiss               Tag = "Miss"
	TagRefreshModified    Tag = "RefreshModified"
	TagRefreshUnmodified  Tag = "RefreshUnmodified"
	TagRefreshFailOld     Tag = "RefreshFailOld"
	TagRefreshFailErr     Tag = "RefreshFailErr"
	TagRefreshIgnored     Tag = "RefreshIgnored"
	TagPurge              Tag = "Purge"
)

// CollapseRole is the role a ReplyContext plays in a collapsed
// revalidation group keyed by cache key.
type CollapseRole int

const (
	CollapseNone CollapseRole = iota
	CollapseInitiator
	CollapseSlave
)

func (r CollapseRole) String() string {
	switch r {
	case CollapseInitiator:
		return "initiator"
	case CollapseSlave:
		return "slave"
	default:
		return "none"
	}
}

// StreamStatus is the per-call status the engine reports to the stream
// head driving it, per spec.md §4.1's replyStatus operation.
type StreamStatus int

const (
	StreamNone StreamStatus = iota
	StreamComplete
	StreamUnplannedComplete
	StreamFailed
)

// RequestFlags mirrors spec.md §3's Request Handle flag set.
type RequestFlags struct {
	NoCache               bool
	OnlyIfCached          bool
	Internal              bool
	Refresh               bool
	NeedValidation        bool
	ChunkedReply          bool
	Accelerated           bool
	Intercepted           bool
	LoopDetected          bool
	FailOnValidationError bool
}

// Request is the read-mostly request handle the engine consults.
// It never mutates anything on this struct past construction.
type Request struct {
	Method        string
	EffectiveURI  string
	Header        http.Header
	IMSTime       time.Time
	IMSLen        int64
	ETag          string
	IfMatch       []string
	IfNoneMatch   []string
	VaryHeaders   string
	PeerLogin     string
	Pinned        bool
	Flags         RequestFlags
}

func (r *Request) hasIMS() bool {
	return !r.IMSTime.IsZero()
}

// Reply is the mutable, clone-owned outgoing reply message. It is always
// cloned from an entry's freshest stored reply before any header rewrite,
// per spec.md §3's invariant that a stored reply is never mutated in
// place.
type Reply struct {
	StatusCode int
	Header     http.Header
	Proto      string
	Body       []byte

	// ignored records that an upstream revalidation response was
	// discarded because its Date was older than the stored entry's
	// (spec.md §4.4 step, §9 open question about access-log visibility).
	ignored bool
}

func cloneReply(src *Reply) *Reply {
	h := make(http.Header, len(src.Header))
	for k, v := range src.Header {
		vv := make([]string, len(v))
		copy(vv, v)
		h[k] = vv
	}
	return &Reply{
		StatusCode: src.StatusCode,
		Header:     h,
		Proto:      src.Proto,
		Body:       src.Body,
	}
}

// PurgeReason mirrors spec.md §6's neighbors.htcpClear reason enum.
type PurgeReason int

const (
	ReasonPurge PurgeReason = iota
	ReasonInvalidation
)

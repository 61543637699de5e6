package cachegate

// Cache-Control directive names, shared by cachecontrol.go and freshness.go.
const (
	ccNoCache             = "no-cache"
	ccNoStore             = "no-store"
	ccMaxAge              = "max-age"
	ccSMaxAge             = "s-maxage"
	ccPublic              = "public"
	ccPrivate             = "private"
	ccMustRevalidate      = "must-revalidate"
	ccMustUnderstand      = "must-understand"
	ccOnlyIfCached        = "only-if-cached"
	ccStaleWhileRevalidate = "stale-while-revalidate"
	ccStaleIfError        = "stale-if-error"
	ccMinFresh            = "min-fresh"
	ccMaxStale            = "max-stale"
)

const (
	headerAge          = "Age"
	headerPragma       = "Pragma"
	headerLastModified = "last-modified"
	headerETag         = "etag"
	headerVary         = "vary"
	headerXVariedPrefix = "X-Varied-"

	pragmaNoCache = "no-cache"

	xRequestTime  = "X-Request-Time"
	xResponseTime = "X-Response-Time"
	xCachedTime   = "X-Cached-Time"
)

const logConflictingDirectives = "conflicting Cache-Control directives detected"

// freshness classification, consulted by hit.go's refreshCheckIsStale.
const (
	stale = iota
	fresh
	transparent
	staleWhileRevalidate
)

const (
	freshnessStringFresh                = "fresh"
	freshnessStringStale                = "stale"
	freshnessStringStaleWhileRevalidate = "stale-while-revalidate"
	freshnessStringTransparent          = "transparent"
	freshnessStringUnknown              = "unknown"
)

// understoodStatusCodes is consulted by canStore's must-understand handling
// (RFC 9111 §5.2.2.3): status codes this engine comprehends well enough to
// store under a must-understand directive.
var understoodStatusCodes = map[int]bool{
	200: true, 203: true, 204: true, 206: true,
	300: true, 301: true, 308: true,
	404: true, 405: true, 410: true, 414: true,
	451: true, 501: true,
}

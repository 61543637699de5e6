package cachegate

import (
	"net/http"
	"strings"
)

// headerAllCommaSepValues returns all comma-separated values (whitespace
// trimmed) for header name in headers.
func headerAllCommaSepValues(headers http.Header, name string) []string {
	var vals []string
	for _, val := range headers[http.CanonicalHeaderKey(name)] {
		for _, f := range strings.Split(val, ",") {
			vals = append(vals, strings.TrimSpace(f))
		}
	}
	return vals
}

// VaryResult is the outcome of evaluating an entry's Vary header against
// the current request, per spec.md §4.3's NONE/MATCH/OTHER/CANCEL states.
type VaryResult int

const (
	VaryNone VaryResult = iota
	VaryMatch
	VaryOther
	VaryCancel
)

// evaluateVary implements spec.md §4.3's Vary evaluation: NONE or MATCH
// continue the hit, OTHER means detach-and-relookup, CANCEL means a vary
// loop was detected and the caller must fall to MISS.
func evaluateVary(entryHeader http.Header, req *Request, alreadyRetried bool) VaryResult {
	varyHeaders := headerAllCommaSepValues(entryHeader, headerVary)
	if len(varyHeaders) == 0 {
		return VaryNone
	}

	for _, h := range varyHeaders {
		if strings.TrimSpace(h) == "*" {
			if alreadyRetried {
				return VaryCancel
			}
			return VaryOther
		}
	}

	if varyMatches(entryHeader, req) {
		return VaryMatch
	}
	if alreadyRetried {
		return VaryCancel
	}
	return VaryOther
}

// varyMatches returns false unless all of the stored values for the
// headers listed in Vary match the current request.
func varyMatches(entryHeader http.Header, req *Request) bool {
	for _, header := range headerAllCommaSepValues(entryHeader, headerVary) {
		header = http.CanonicalHeaderKey(strings.TrimSpace(header))
		if header == "" || header == "*" {
			continue
		}
		reqValue := req.Header.Get(header)
		storedValue := entryHeader.Get(headerXVariedPrefix + header)
		if !normalizedHeaderValuesMatch(reqValue, storedValue) {
			return false
		}
	}
	return true
}

// normalizedHeaderValuesMatch implements RFC 9111 §4.1 header matching:
// values match if whitespace/list-formatting differences are the only
// difference.
func normalizedHeaderValuesMatch(value1, value2 string) bool {
	if value1 == value2 {
		return true
	}
	return normalizeHeaderValue(value1) == normalizeHeaderValue(value2)
}

func normalizeHeaderValue(value string) string {
	value = strings.TrimSpace(value)

	var normalized strings.Builder
	prevSpace := false
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !prevSpace {
				normalized.WriteRune(' ')
				prevSpace = true
			}
		} else {
			normalized.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.ReplaceAll(normalized.String(), ", ", ",")
}

// storeVaryHeaders records the request's values for the headers an entry's
// Vary names, so a later lookup can tell which variant was requested.
func storeVaryHeaders(entryHeader http.Header, req *Request) {
	for _, varyKey := range headerAllCommaSepValues(entryHeader, headerVary) {
		varyKey = http.CanonicalHeaderKey(strings.TrimSpace(varyKey))
		if varyKey == "" || varyKey == "*" {
			continue
		}
		entryHeader.Set(headerXVariedPrefix+varyKey, normalizeHeaderValue(req.Header.Get(varyKey)))
	}
}

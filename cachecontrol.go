package cachegate

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// cacheControl is a map of Cache-Control directive names to their values.
type cacheControl map[string]string

// parseCacheControl parses the Cache-Control header and returns a map of directives.
// Implements RFC 9111 Section 4.2.1 validation:
// - Duplicate directives: uses the first occurrence, logs warning
// - Conflicting directives: applies the most restrictive, logs warning
// - Invalid values: logs warning but continues processing
func parseCacheControl(headers http.Header, log *slog.Logger) cacheControl {
	cc := cacheControl{}
	seen := make(map[string]bool)
	ccHeader := headers.Get("Cache-Control")

	for _, part := range strings.Split(ccHeader, ",") {
		part = strings.Trim(part, " ")
		if part == "" {
			continue
		}

		var directive, value string
		if strings.ContainsRune(part, '=') {
			keyval := strings.SplitN(part, "=", 2)
			directive = strings.Trim(keyval[0], " ")
			value = strings.Trim(keyval[1], " \"")
		} else {
			directive = part
			value = ""
		}

		if seen[directive] {
			log.Warn("duplicate Cache-Control directive detected, using first value",
				"directive", directive,
				"ignored_value", value)
			continue
		}

		seen[directive] = true
		cc[directive] = value
	}

	detectConflictingDirectives(cc, log)

	return cc
}

// detectConflictingDirectives checks for conflicting Cache-Control directives
// and applies the most restrictive according to RFC 9111 Section 4.2.1
func detectConflictingDirectives(cc cacheControl, log *slog.Logger) {
	if _, hasNoCache := cc[ccNoCache]; hasNoCache {
		if maxAge, hasMaxAge := cc[ccMaxAge]; hasMaxAge && maxAge != "" {
			log.Warn(logConflictingDirectives,
				"conflict", "no-cache + max-age",
				"resolution", "no-cache takes precedence (requires revalidation)")
		}
	}

	if _, hasPrivate := cc[ccPrivate]; hasPrivate {
		if _, hasPublic := cc[ccPublic]; hasPublic {
			log.Warn(logConflictingDirectives,
				"conflict", "public + private",
				"resolution", "private takes precedence (more restrictive)")
			delete(cc, ccPublic)
		}
	}

	if _, hasNoStore := cc[ccNoStore]; hasNoStore {
		if maxAge, hasMaxAge := cc[ccMaxAge]; hasMaxAge && maxAge != "" {
			log.Warn(logConflictingDirectives,
				"conflict", "no-store + max-age",
				"resolution", "no-store takes precedence (prevents caching)")
		}
		if _, hasMustRevalidate := cc[ccMustRevalidate]; hasMustRevalidate {
			log.Warn(logConflictingDirectives,
				"conflict", "no-store + must-revalidate",
				"resolution", "no-store takes precedence (prevents caching)")
		}
	}

	validateMaxAgeDirective(cc, ccMaxAge, "max-age", log)
	validateMaxAgeDirective(cc, ccSMaxAge, "s-maxage", log)
}

// validateMaxAgeDirective validates max-age or s-maxage directive values
func validateMaxAgeDirective(cc cacheControl, directiveKey, directiveName string, log *slog.Logger) {
	value, hasDirective := cc[directiveKey]
	if !hasDirective || value == "" {
		return
	}

	if strings.Contains(value, ".") {
		log.Warn("invalid Cache-Control value (float not allowed)",
			"directive", directiveName, "value", value, "resolution", "ignoring directive")
		delete(cc, directiveKey)
		return
	}

	duration, err := time.ParseDuration(value + "s")
	switch {
	case err != nil:
		log.Warn("invalid Cache-Control value (non-numeric)",
			"directive", directiveName, "value", value, "resolution", "ignoring directive")
		delete(cc, directiveKey)
	case duration < 0:
		log.Warn("invalid Cache-Control value (negative)",
			"directive", directiveName, "value", value, "resolution", "treating as 0")
		cc[directiveKey] = "0"
	}
}

// canStore determines if a response may be stored by the engine, per
// spec.md §4.6's purge/miss paths and the Header Builder's reliance on
// having stored only cacheable responses.
//
// isPublicCache: true for a shared cache deployment, false for a private
// single-client one.
// RFC 9111 Section 3: Storing Responses in Caches
// RFC 9111 Section 5.2.2.3: must-understand directive
// RFC 9111 Section 3.5: Storing Responses to Authenticated Requests
func canStore(hasAuthorization bool, reqCacheControl, respCacheControl cacheControl, isPublicCache bool, statusCode int, log *slog.Logger) bool {
	if _, hasMustUnderstand := respCacheControl[ccMustUnderstand]; hasMustUnderstand {
		if !understoodStatusCodes[statusCode] {
			return false
		}
	} else {
		if _, ok := respCacheControl[ccNoStore]; ok {
			return false
		}
		if _, ok := reqCacheControl[ccNoStore]; ok {
			return false
		}
	}

	if isPublicCache && hasAuthorization {
		_, hasPublic := respCacheControl[ccPublic]
		_, hasMustRevalidate := respCacheControl[ccMustRevalidate]
		_, hasSMaxAge := respCacheControl[ccSMaxAge]

		if !hasPublic && !hasMustRevalidate && !hasSMaxAge {
			log.Debug("refusing to store Authorization request in shared cache",
				"reason", "no public/must-revalidate/s-maxage directive")
			return false
		}
	}

	if _, hasPrivate := respCacheControl[ccPrivate]; hasPrivate && isPublicCache {
		return false
	}

	return true
}

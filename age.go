package cachegate

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Date parses and returns the value of the Date header.
func Date(respHeaders http.Header) (date time.Time, err error) {
	dateHeader := respHeaders.Get("date")
	if dateHeader == "" {
		err = ErrNoDateHeader
		return
	}
	return time.Parse(time.RFC1123, dateHeader)
}

// parseAgeHeader parses the Age header per RFC 9111 Section 5.1.
func parseAgeHeader(headers http.Header, log *slog.Logger) (age time.Duration, valid bool) {
	ageValues := headers.Values(headerAge)
	if len(ageValues) == 0 {
		return 0, false
	}

	ageStr := strings.TrimSpace(ageValues[0])
	if len(ageValues) > 1 {
		log.Warn("multiple Age headers detected, using first value",
			"count", len(ageValues), "first", ageStr, "all", ageValues)
	}

	ageInt, err := strconv.ParseInt(ageStr, 10, 64)
	if err != nil {
		log.Warn("invalid Age header value, ignoring", "value", ageStr, "error", err)
		return 0, false
	}
	if ageInt < 0 {
		log.Warn("negative Age header value, ignoring", "value", ageInt)
		return 0, false
	}

	return time.Duration(ageInt) * time.Second, true
}

// calculateAge implements the Age calculation algorithm from RFC 9111
// Section 4.2.3, used when computing Age for a reply relayed through a
// revalidation hop that already carries its own Age/X-Request-Time.
func calculateAge(respHeaders http.Header, log *slog.Logger) (age time.Duration, err error) {
	dateValue, err := Date(respHeaders)
	if err != nil {
		return 0, err
	}

	responseTimeStr := respHeaders.Get(xResponseTime)
	if responseTimeStr == "" {
		responseTimeStr = respHeaders.Get(xCachedTime)
	}
	if responseTimeStr == "" {
		age = clock.since(dateValue)
		if v, valid := parseAgeHeader(respHeaders, log); valid {
			age += v
		}
		return age, nil
	}

	responseTime, parseErr := time.Parse(time.RFC3339, responseTimeStr)
	if parseErr != nil {
		log.Warn("failed to parse response time header", "header", responseTimeStr, "error", parseErr)
		age = clock.since(dateValue)
		if v, valid := parseAgeHeader(respHeaders, log); valid {
			age += v
		}
		return age, nil
	}

	apparentAge := time.Duration(0)
	if responseTime.After(dateValue) {
		apparentAge = responseTime.Sub(dateValue)
	}

	ageValue, _ := parseAgeHeader(respHeaders, log)

	requestTimeStr := respHeaders.Get(xRequestTime)
	responseDelay := time.Duration(0)
	if requestTimeStr != "" {
		requestTime, parseErr := time.Parse(time.RFC3339, requestTimeStr)
		if parseErr == nil && responseTime.After(requestTime) {
			responseDelay = responseTime.Sub(requestTime)
		} else if parseErr != nil {
			log.Warn("failed to parse request time header", "header", requestTimeStr, "error", parseErr)
		}
	}

	correctedAgeValue := ageValue + responseDelay
	correctedInitialAge := apparentAge
	if correctedAgeValue > correctedInitialAge {
		correctedInitialAge = correctedAgeValue
	}

	residentTime := clock.since(responseTime)
	return correctedInitialAge + residentTime, nil
}

// formatAge formats a duration as an Age header value (seconds).
func formatAge(age time.Duration) string {
	seconds := int64(age.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return strconv.FormatInt(seconds, 10)
}

// ageFromStoredAt implements spec.md §4.7.4's simpler hit-path Age
// computation: Age = now - stored_at, used instead of the full RFC 9111
// response_delay reconstruction above when the engine itself is the point
// the object was stored (it has no X-Request-Time/X-Response-Time of its
// own to reconstruct).
func ageFromStoredAt(storedAt time.Time) time.Duration {
	if storedAt.IsZero() {
		return 0
	}
	d := clock.since(storedAt)
	if d < 0 {
		return 0
	}
	return d
}

package cachegate

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDateParsesRFC1123(t *testing.T) {
	h := http.Header{"Date": {"Mon, 01 Jan 2024 00:00:00 GMT"}}
	d, err := Date(h)
	if err != nil {
		t.Fatalf("Date: %v", err)
	}
	if d.Year() != 2024 {
		t.Fatalf("Date() year = %d, want 2024", d.Year())
	}
}

func TestDateMissingHeaderReturnsError(t *testing.T) {
	if _, err := Date(http.Header{}); err != ErrNoDateHeader {
		t.Fatalf("err = %v, want ErrNoDateHeader", err)
	}
}

func TestParseAgeHeaderValid(t *testing.T) {
	h := http.Header{"Age": {"120"}}
	age, ok := parseAgeHeader(h, discardLogger())
	if !ok || age != 120*time.Second {
		t.Fatalf("age=%v ok=%v, want 120s true", age, ok)
	}
}

func TestParseAgeHeaderNegativeIsInvalid(t *testing.T) {
	h := http.Header{"Age": {"-5"}}
	if _, ok := parseAgeHeader(h, discardLogger()); ok {
		t.Fatal("expected negative Age to be rejected")
	}
}

func TestParseAgeHeaderNonNumericIsInvalid(t *testing.T) {
	h := http.Header{"Age": {"abc"}}
	if _, ok := parseAgeHeader(h, discardLogger()); ok {
		t.Fatal("expected non-numeric Age to be rejected")
	}
}

func TestParseAgeHeaderAbsentIsInvalid(t *testing.T) {
	if _, ok := parseAgeHeader(http.Header{}, discardLogger()); ok {
		t.Fatal("expected missing Age header to be invalid")
	}
}

func TestFormatAgeClampsNegativeToZero(t *testing.T) {
	if got := formatAge(-5 * time.Second); got != "0" {
		t.Fatalf("formatAge(-5s) = %q, want 0", got)
	}
}

func TestFormatAgeFormatsSeconds(t *testing.T) {
	if got := formatAge(90 * time.Second); got != "90" {
		t.Fatalf("formatAge(90s) = %q, want 90", got)
	}
}

func TestAgeFromStoredAtZeroTimeIsZero(t *testing.T) {
	if got := ageFromStoredAt(time.Time{}); got != 0 {
		t.Fatalf("ageFromStoredAt(zero) = %v, want 0", got)
	}
}

func TestAgeFromStoredAtComputesElapsed(t *testing.T) {
	storedAt := time.Now().Add(-30 * time.Second)
	got := ageFromStoredAt(storedAt)
	if got < 29*time.Second || got > 31*time.Second {
		t.Fatalf("ageFromStoredAt = %v, want ~30s", got)
	}
}

func TestCalculateAgeUsesDateWhenNoResponseTime(t *testing.T) {
	h := http.Header{
		"Date": {time.Now().Add(-10 * time.Second).UTC().Format(time.RFC1123)},
	}
	age, err := calculateAge(h, discardLogger())
	if err != nil {
		t.Fatalf("calculateAge: %v", err)
	}
	if age < 9*time.Second || age > 12*time.Second {
		t.Fatalf("age = %v, want ~10s", age)
	}
}

func TestCalculateAgeReturnsErrorWithoutDate(t *testing.T) {
	if _, err := calculateAge(http.Header{}, discardLogger()); err == nil {
		t.Fatal("expected error when Date header is absent")
	}
}

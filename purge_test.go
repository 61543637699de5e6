package cachegate

import "testing"

func TestIsUnsafeMethod(t *testing.T) {
	cases := map[string]bool{
		"GET": false, "HEAD": false,
		"POST": true, "PUT": true, "DELETE": true, "PATCH": true,
	}
	for method, want := range cases {
		if got := isUnsafeMethod(method); got != want {
			t.Errorf("isUnsafeMethod(%q) = %v, want %v", method, got, want)
		}
	}
}

func TestExtractAndStripVaryKey(t *testing.T) {
	uri := "http://example.com/a|vary:Accept-Language:en"
	if got := extractVaryKey(uri); got != "Accept-Language:en" {
		t.Fatalf("extractVaryKey = %q", got)
	}
	if got := stripVaryKey(uri); got != "http://example.com/a" {
		t.Fatalf("stripVaryKey = %q", got)
	}
}

func TestExtractVaryKeyAbsentReturnsEmpty(t *testing.T) {
	if got := extractVaryKey("http://example.com/a"); got != "" {
		t.Fatalf("extractVaryKey = %q, want empty", got)
	}
}

func TestStripVaryKeyAbsentReturnsUnchanged(t *testing.T) {
	uri := "http://example.com/a"
	if got := stripVaryKey(uri); got != uri {
		t.Fatalf("stripVaryKey = %q, want %q", got, uri)
	}
}

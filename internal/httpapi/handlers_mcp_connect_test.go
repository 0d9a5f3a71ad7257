package httpapi

import "testing"

func TestCallbackStateRoundTrip(t *testing.T) {
	encoded := encodeCallbackState("tenant-abc", "srv-1")

	tenant, serverID, ok := decodeCallbackState(encoded)
	if !ok {
		t.Fatalf("decodeCallbackState(%q) ok = false, want true", encoded)
	}
	if tenant != "tenant-abc" || serverID != "srv-1" {
		t.Fatalf("decodeCallbackState(%q) = (%q, %q), want (tenant-abc, srv-1)", encoded, tenant, serverID)
	}
}

func TestDecodeCallbackStateRejectsGarbage(t *testing.T) {
	if _, _, ok := decodeCallbackState("not-valid-base64!!"); ok {
		t.Fatalf("decodeCallbackState accepted invalid base64")
	}
	if _, _, ok := decodeCallbackState(""); ok {
		t.Fatalf("decodeCallbackState accepted empty string")
	}
}

func TestOriginOf(t *testing.T) {
	cases := map[string]string{
		"https://api.example.com/mcp": "https://api.example.com",
		"http://localhost:8080/sse":   "http://localhost:8080",
		"not a url at all":            "not a url at all",
	}
	for in, want := range cases {
		if got := originOf(in); got != want {
			t.Fatalf("originOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithFound(t *testing.T) {
	if got := withFound("https://logo.example.com/a.png", false); got != "" {
		t.Fatalf("withFound(_, false) = %q, want empty", got)
	}
	if got := withFound("https://logo.example.com/a.png", true); got != "https://logo.example.com/a.png" {
		t.Fatalf("withFound(_, true) = %q, want the url unchanged", got)
	}
}

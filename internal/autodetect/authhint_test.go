package autodetect

import "testing"

func TestParseWWWAuthenticateBearerWithResourceMetadata(t *testing.T) {
	hint := parseWWWAuthenticate(`Bearer realm="mcp", resource_metadata="https://as.example.com/meta"`)
	if !hint.oauth {
		t.Fatalf("oauth = false, want true")
	}
	if hint.resourceMetadata != "https://as.example.com/meta" {
		t.Fatalf("resourceMetadata = %q", hint.resourceMetadata)
	}
}

func TestParseWWWAuthenticateOAuthSchemeNoParams(t *testing.T) {
	hint := parseWWWAuthenticate("OAuth")
	if !hint.oauth {
		t.Fatalf("oauth = false, want true")
	}
	if hint.resourceMetadata != "" {
		t.Fatalf("resourceMetadata = %q, want empty", hint.resourceMetadata)
	}
}

func TestParseWWWAuthenticateBasicIsNotOAuth(t *testing.T) {
	hint := parseWWWAuthenticate(`Basic realm="mcp"`)
	if hint.oauth {
		t.Fatalf("oauth = true, want false")
	}
}

func TestExtractChallengeParamUnquoted(t *testing.T) {
	if got := extractChallengeParam("realm=mcp, scope=read", "scope"); got != "read" {
		t.Fatalf("extractChallengeParam = %q, want read", got)
	}
}

func TestExtractChallengeParamMissing(t *testing.T) {
	if got := extractChallengeParam(`realm="mcp"`, "resource_metadata"); got != "" {
		t.Fatalf("extractChallengeParam = %q, want empty", got)
	}
}

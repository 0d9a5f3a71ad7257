package autodetect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hootmcp/gateway/internal/tenantstore"
)

func TestProbeUnreachableReturnsErrUnreachable(t *testing.T) {
	// Port 1 on loopback refuses connections outright; neither transport
	// attempt will look like an authorization failure.
	_, err := Probe(context.Background(), "http://127.0.0.1:1/mcp")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Probe = %v, want ErrUnreachable", err)
	}
}

func TestClassifyUnreachableOAuthHintSetsRequiresOAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="mcp", resource_metadata="https://as.example.com/.well-known/oauth-authorization-server"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	unauthorizedErr := errors.New("401 unauthorized")
	result, err := classifyUnreachable(context.Background(), srv.URL, unauthorizedErr, unauthorizedErr)
	if err != nil {
		t.Fatalf("classifyUnreachable: %v", err)
	}
	if !result.RequiresOAuth {
		t.Fatalf("RequiresOAuth = false, want true")
	}
	if result.RequiresHeaderAuth {
		t.Fatalf("RequiresHeaderAuth = true, want false")
	}
	if !result.ServerInfoSynthesized {
		t.Fatalf("ServerInfoSynthesized = false, want true")
	}
	if result.Transport != tenantstore.TransportHTTP {
		t.Fatalf("Transport = %v, want http (tie-break)", result.Transport)
	}
}

func TestClassifyUnreachableBareChallengeSetsRequiresHeaderAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Basic realm="mcp"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	unauthorizedErr := errors.New("401 unauthorized")
	result, err := classifyUnreachable(context.Background(), srv.URL, unauthorizedErr, unauthorizedErr)
	if err != nil {
		t.Fatalf("classifyUnreachable: %v", err)
	}
	if result.RequiresOAuth {
		t.Fatalf("RequiresOAuth = true, want false")
	}
	if !result.RequiresHeaderAuth {
		t.Fatalf("RequiresHeaderAuth = false, want true")
	}
}

func TestClassifyUnreachableNoChallengeDefaultsHeaderAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	unauthorizedErr := errors.New("401 unauthorized")
	result, err := classifyUnreachable(context.Background(), srv.URL, unauthorizedErr, unauthorizedErr)
	if err != nil {
		t.Fatalf("classifyUnreachable: %v", err)
	}
	if !result.RequiresHeaderAuth {
		t.Fatalf("RequiresHeaderAuth = false, want true")
	}
}

func TestClassifyUnreachablePrefersSSEWhenHTTPWasNotUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result, err := classifyUnreachable(context.Background(), srv.URL, errors.New("dial tcp: connection refused"), errors.New("401 unauthorized"))
	if err != nil {
		t.Fatalf("classifyUnreachable: %v", err)
	}
	if result.Transport != tenantstore.TransportSSE {
		t.Fatalf("Transport = %v, want sse", result.Transport)
	}
}

package oauthclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hootmcp/gateway/internal/tenantstore"
)

// fakeAuthServer serves protected-resource metadata, AS metadata, dynamic
// client registration, and a token endpoint that accepts a fixed
// authorization code and a fixed refresh token.
type fakeAuthServer struct {
	*httptest.Server
	refreshCount int
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()
	f := &fakeAuthServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"resource":             f.Server.URL,
			"authorization_servers": []string{f.Server.URL},
		})
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ASMetadata{
			Issuer:                f.Server.URL,
			AuthorizationEndpoint: f.Server.URL + "/authorize",
			TokenEndpoint:         f.Server.URL + "/token",
			RegistrationEndpoint:  f.Server.URL + "/register",
		})
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(dcrResponse{ClientID: "client-123", RegistrationAccessToken: "rat-1"})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		r.ParseForm()
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(tokenResponse{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				ExpiresIn:    3600,
			})
		case "refresh_token":
			f.refreshCount++
			if r.Form.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(tokenResponse{
				AccessToken: "access-2",
				ExpiresIn:   3600,
			})
		case "client_credentials":
			json.NewEncoder(w).Encode(tokenResponse{
				AccessToken: "cc-access-1",
				ExpiresIn:   3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func TestAuthorizationCodeFlow(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")

	cfg := ServerConfig{BaseURL: as.URL}

	authResult, err := p.StartAuthorization(ctx, "tenant-1", "srv-1", cfg, "return-xyz")
	if err != nil {
		t.Fatalf("StartAuthorization: %v", err)
	}

	parsed, err := url.Parse(authResult.AuthorizationURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if got := parsed.Query().Get("client_id"); got != "client-123" {
		t.Fatalf("client_id = %q, want client-123", got)
	}
	if parsed.Query().Get("code_challenge_method") != "S256" {
		t.Fatalf("missing code_challenge_method=S256")
	}

	returnState, err := p.ExchangeCode(ctx, "tenant-1", "srv-1", cfg, "good-code", authResult.State)
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if returnState != "return-xyz" {
		t.Fatalf("returnState = %q, want return-xyz", returnState)
	}

	token, err := p.EnsureValidToken(ctx, "tenant-1", "srv-1", cfg)
	if err != nil {
		t.Fatalf("EnsureValidToken: %v", err)
	}
	if token != "access-1" {
		t.Fatalf("token = %q, want access-1", token)
	}
}

func TestExchangeCodeWithStaleVerifierFails(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")

	cfg := ServerConfig{BaseURL: as.URL}
	if _, err := p.ExchangeCode(ctx, "tenant-1", "srv-1", cfg, "good-code", "garbage-state"); err != ErrVerifierMissing {
		t.Fatalf("ExchangeCode with unknown state = %v, want ErrVerifierMissing", err)
	}
}

func TestRedirectLoopGuard(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")
	cfg := ServerConfig{BaseURL: as.URL}

	if _, err := p.StartAuthorization(ctx, "tenant-1", "srv-1", cfg, ""); err != nil {
		t.Fatalf("first StartAuthorization: %v", err)
	}
	if _, err := p.StartAuthorization(ctx, "tenant-1", "srv-1", cfg, ""); err != ErrLoopGuard {
		t.Fatalf("second StartAuthorization = %v, want ErrLoopGuard", err)
	}
}

func TestRefreshCoalescesConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")
	cfg := ServerConfig{BaseURL: as.URL}

	if err := store.PutClientInfo(ctx, "tenant-1", "srv-1", tenantstore.ClientInfo{ClientID: "client-123"}); err != nil {
		t.Fatalf("PutClientInfo: %v", err)
	}
	if err := store.PutTokens(ctx, "tenant-1", "srv-1", tenantstore.Tokens{
		AccessToken:  "expired",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("PutTokens: %v", err)
	}

	const n = 10
	results := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			tok, err := p.EnsureValidToken(ctx, "tenant-1", "srv-1", cfg)
			results <- tok
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("EnsureValidToken: %v", err)
		}
		if tok := <-results; tok != "access-2" {
			t.Fatalf("token = %q, want access-2", tok)
		}
	}

	if as.refreshCount != 1 {
		t.Fatalf("refreshCount = %d, want 1 (coalesced)", as.refreshCount)
	}
}

func TestEnsureValidTokenNeedsAuthorizationWhenNoRefreshToken(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")
	cfg := ServerConfig{BaseURL: as.URL}

	if err := store.PutTokens(ctx, "tenant-1", "srv-1", tenantstore.Tokens{
		AccessToken: "expired",
		ExpiresAt:   time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("PutTokens: %v", err)
	}

	if _, err := p.EnsureValidToken(ctx, "tenant-1", "srv-1", cfg); err != ErrNeedsAuthorization {
		t.Fatalf("EnsureValidToken = %v, want ErrNeedsAuthorization", err)
	}
}

// TestForceRefreshBypassesLocalExpiry covers the scenario where an upstream
// rejects a token before its recorded expiry (revoked token, clock skew, a
// shorter effective server-side lifetime than what was persisted).
// EnsureValidToken trusts the local expiry and hands back the stale token
// unchanged; ForceRefresh must ignore it and actually hit the token endpoint.
func TestForceRefreshBypassesLocalExpiry(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")
	cfg := ServerConfig{BaseURL: as.URL}

	if err := store.PutClientInfo(ctx, "tenant-1", "srv-1", tenantstore.ClientInfo{ClientID: "client-123"}); err != nil {
		t.Fatalf("PutClientInfo: %v", err)
	}
	if err := store.PutTokens(ctx, "tenant-1", "srv-1", tenantstore.Tokens{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour), // not locally expired
	}); err != nil {
		t.Fatalf("PutTokens: %v", err)
	}

	token, err := p.EnsureValidToken(ctx, "tenant-1", "srv-1", cfg)
	if err != nil {
		t.Fatalf("EnsureValidToken: %v", err)
	}
	if token != "access-1" {
		t.Fatalf("EnsureValidToken returned %q, want the stale cached access-1", token)
	}
	if as.refreshCount != 0 {
		t.Fatalf("refreshCount = %d after EnsureValidToken, want 0", as.refreshCount)
	}

	token, err = p.ForceRefresh(ctx, "tenant-1", "srv-1", cfg)
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if token != "access-2" {
		t.Fatalf("ForceRefresh returned %q, want the freshly issued access-2", token)
	}
	if as.refreshCount != 1 {
		t.Fatalf("refreshCount = %d after ForceRefresh, want 1", as.refreshCount)
	}
}

func TestForceRefreshWithNoRefreshTokenNeedsAuthorization(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")
	cfg := ServerConfig{BaseURL: as.URL}

	if err := store.PutTokens(ctx, "tenant-1", "srv-1", tenantstore.Tokens{
		AccessToken: "access-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("PutTokens: %v", err)
	}

	if _, err := p.ForceRefresh(ctx, "tenant-1", "srv-1", cfg); err != ErrNeedsAuthorization {
		t.Fatalf("ForceRefresh = %v, want ErrNeedsAuthorization", err)
	}
}

func TestForceRefreshClientCredentialAlwaysReExchanges(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")
	cfg := ServerConfig{BaseURL: as.URL, ClientCredential: true, ClientSecret: "secret-1"}

	token, err := p.ForceRefresh(ctx, "tenant-1", "srv-1", cfg)
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if token != "cc-access-1" {
		t.Fatalf("token = %q, want cc-access-1", token)
	}
}

func TestClientCredentialsFlow(t *testing.T) {
	ctx := context.Background()
	as := newFakeAuthServer(t)
	store := tenantstore.NewMemoryStore()
	p := NewProvider(store, as.Client(), "https://gateway.example.com/oauth/callback")
	cfg := ServerConfig{BaseURL: as.URL, ClientCredential: true, ClientSecret: "secret-1"}

	token, err := p.EnsureValidToken(ctx, "tenant-1", "srv-1", cfg)
	if err != nil {
		t.Fatalf("EnsureValidToken: %v", err)
	}
	if token != "cc-access-1" {
		t.Fatalf("token = %q, want cc-access-1", token)
	}
}

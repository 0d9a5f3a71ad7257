package tenantstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.PutTokens(ctx, "tenant-a", "srv-1", Tokens{AccessToken: "a-token"}); err != nil {
		t.Fatalf("PutTokens(tenant-a): %v", err)
	}
	if err := s.PutTokens(ctx, "tenant-b", "srv-1", Tokens{AccessToken: "b-token"}); err != nil {
		t.Fatalf("PutTokens(tenant-b): %v", err)
	}

	got, err := s.GetTokens(ctx, "tenant-a", "srv-1")
	if err != nil {
		t.Fatalf("GetTokens(tenant-a): %v", err)
	}
	if got.AccessToken != "a-token" {
		t.Fatalf("tenant-a got tenant-b's token: %q", got.AccessToken)
	}

	got, err = s.GetTokens(ctx, "tenant-b", "srv-1")
	if err != nil {
		t.Fatalf("GetTokens(tenant-b): %v", err)
	}
	if got.AccessToken != "b-token" {
		t.Fatalf("tenant-b got tenant-a's token: %q", got.AccessToken)
	}

	if err := s.Invalidate(ctx, "tenant-a", "srv-1", ScopeTokens); err != nil {
		t.Fatalf("Invalidate(tenant-a): %v", err)
	}
	if _, err := s.GetTokens(ctx, "tenant-a", "srv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tenant-a tokens should be gone, got err=%v", err)
	}
	if _, err := s.GetTokens(ctx, "tenant-b", "srv-1"); err != nil {
		t.Fatalf("tenant-b tokens should survive tenant-a's invalidate: %v", err)
	}
}

func TestMemoryStoreRefreshTokenPreservedWhenOmitted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.PutTokens(ctx, "t1", "srv", Tokens{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("PutTokens: %v", err)
	}
	if err := s.PutTokens(ctx, "t1", "srv", Tokens{AccessToken: "a2"}); err != nil {
		t.Fatalf("PutTokens refresh: %v", err)
	}

	got, err := s.GetTokens(ctx, "t1", "srv")
	if err != nil {
		t.Fatalf("GetTokens: %v", err)
	}
	if got.AccessToken != "a2" {
		t.Fatalf("access token not updated: %q", got.AccessToken)
	}
	if got.RefreshToken != "r1" {
		t.Fatalf("refresh token should be preserved, got %q", got.RefreshToken)
	}
}

func TestMemoryStoreVerifierTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.PutVerifier(ctx, "t1", "srv", "state-1", Verifier{
		CodeVerifier: "abc",
		CreatedAt:    time.Now().Add(-VerifierTTL - time.Second),
	}); err != nil {
		t.Fatalf("PutVerifier: %v", err)
	}

	_, err := s.GetVerifier(ctx, "t1", "srv", "state-1")
	if !errors.Is(err, ErrVerifierExpired) {
		t.Fatalf("expected ErrVerifierExpired, got %v", err)
	}

	// expired verifier is deleted on read
	if _, err := s.GetVerifier(ctx, "t1", "srv", "state-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry cleanup, got %v", err)
	}
}

func TestMemoryStoreVerifierFreshWithinTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.PutVerifier(ctx, "t1", "srv", "state-1", Verifier{
		CodeVerifier: "abc",
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("PutVerifier: %v", err)
	}

	v, err := s.GetVerifier(ctx, "t1", "srv", "state-1")
	if err != nil {
		t.Fatalf("GetVerifier: %v", err)
	}
	if v.CodeVerifier != "abc" {
		t.Fatalf("got %q, want abc", v.CodeVerifier)
	}

	if err := s.DeleteVerifier(ctx, "t1", "srv", "state-1"); err != nil {
		t.Fatalf("DeleteVerifier: %v", err)
	}
	if _, err := s.GetVerifier(ctx, "t1", "srv", "state-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreInvalidateAllDropsUpstreamServer(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.PutUpstreamServer(ctx, UpstreamServer{
		Tenant:    "t1",
		ServerID:  "srv",
		URL:       "https://example.com/mcp",
		Transport: TransportHTTP,
	}); err != nil {
		t.Fatalf("PutUpstreamServer: %v", err)
	}
	if err := s.PutClientInfo(ctx, "t1", "srv", ClientInfo{ClientID: "c1"}); err != nil {
		t.Fatalf("PutClientInfo: %v", err)
	}

	if err := s.Invalidate(ctx, "t1", "srv", ScopeAll); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, err := s.GetUpstreamServer(ctx, "t1", "srv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected upstream server gone, got %v", err)
	}
	if _, err := s.GetClientInfo(ctx, "t1", "srv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected client info gone, got %v", err)
	}
}

func TestMemoryStoreRejectsEmptyTenant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetClientInfo(ctx, "", "srv"); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("GetClientInfo: %v, want ErrEmptyTenant", err)
	}
	if err := s.PutClientInfo(ctx, "", "srv", ClientInfo{}); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("PutClientInfo: %v, want ErrEmptyTenant", err)
	}
	if _, err := s.GetTokens(ctx, "", "srv"); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("GetTokens: %v, want ErrEmptyTenant", err)
	}
	if err := s.PutTokens(ctx, "", "srv", Tokens{}); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("PutTokens: %v, want ErrEmptyTenant", err)
	}
	if err := s.PutVerifier(ctx, "", "srv", "state", Verifier{}); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("PutVerifier: %v, want ErrEmptyTenant", err)
	}
	if _, err := s.GetVerifier(ctx, "", "srv", "state"); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("GetVerifier: %v, want ErrEmptyTenant", err)
	}
	if err := s.DeleteVerifier(ctx, "", "srv", "state"); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("DeleteVerifier: %v, want ErrEmptyTenant", err)
	}
	if err := s.PutUpstreamServer(ctx, UpstreamServer{ServerID: "srv"}); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("PutUpstreamServer: %v, want ErrEmptyTenant", err)
	}
	if _, err := s.GetUpstreamServer(ctx, "", "srv"); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("GetUpstreamServer: %v, want ErrEmptyTenant", err)
	}
	if _, err := s.ListUpstreamServers(ctx, ""); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("ListUpstreamServers: %v, want ErrEmptyTenant", err)
	}
	if err := s.DeleteUpstreamServer(ctx, "", "srv"); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("DeleteUpstreamServer: %v, want ErrEmptyTenant", err)
	}
	if err := s.Invalidate(ctx, "", "srv", ScopeAll); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("Invalidate: %v, want ErrEmptyTenant", err)
	}
	if err := s.TouchTenant(ctx, ""); !errors.Is(err, ErrEmptyTenant) {
		t.Fatalf("TouchTenant: %v, want ErrEmptyTenant", err)
	}
}

func TestMemoryStoreListUpstreamServersScopedToTenant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, srv := range []UpstreamServer{
		{Tenant: "t1", ServerID: "a", URL: "https://a"},
		{Tenant: "t1", ServerID: "b", URL: "https://b"},
		{Tenant: "t2", ServerID: "c", URL: "https://c"},
	} {
		if err := s.PutUpstreamServer(ctx, srv); err != nil {
			t.Fatalf("PutUpstreamServer: %v", err)
		}
	}

	got, err := s.ListUpstreamServers(ctx, "t1")
	if err != nil {
		t.Fatalf("ListUpstreamServers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d servers, want 2", len(got))
	}
}

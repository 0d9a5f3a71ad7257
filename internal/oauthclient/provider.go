package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/hootmcp/gateway/internal/tenantstore"
)

// Provider is the OAuth 2.1 authorization-code + PKCE state machine,
// operating over a shared tenantstore.Store. One Provider instance is shared process-wide;
// every state-mutating transition is serialized per (tenant, serverId) with
// a per-key mutex, and token refreshes additionally coalesce concurrent
// callers via singleflight so a refresh storm becomes a single HTTP call.
type Provider struct {
	store       tenantstore.Store
	httpClient  *http.Client
	callbackURL string
	discoverer  *discoverer

	keyMu      sync.Mutex
	locks      map[string]*sync.Mutex
	refreshSF  singleflight.Group
	lastRedir  map[string]time.Time
	lastRedirM sync.Mutex
}

// NewProvider constructs a Provider. callbackURL is the gateway's own
// redirect_uri, used both in dynamic client registration and in every
// authorization URL this process generates.
func NewProvider(store tenantstore.Store, httpClient *http.Client, callbackURL string) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{
		store:       store,
		httpClient:  httpClient,
		callbackURL: callbackURL,
		discoverer:  newDiscoverer(httpClient),
		locks:       make(map[string]*sync.Mutex),
		lastRedir:   make(map[string]time.Time),
	}
}

func key(tenant, serverID string) string { return tenant + "\x00" + serverID }

func (p *Provider) lockFor(tenant, serverID string) *sync.Mutex {
	k := key(tenant, serverID)
	p.keyMu.Lock()
	defer p.keyMu.Unlock()
	m, ok := p.locks[k]
	if !ok {
		m = &sync.Mutex{}
		p.locks[k] = m
	}
	return m
}

// StartAuthorization resolves discovery + registration as needed, persists a
// fresh PKCE verifier, and returns the authorization URL the façade
// redirects the browser to. Enforces the 3-second per-(tenant,serverId)
// redirect loop guard.
func (p *Provider) StartAuthorization(ctx context.Context, tenant, serverID string, cfg ServerConfig, returnState string) (*AuthorizationResult, error) {
	mu := p.lockFor(tenant, serverID)
	mu.Lock()
	defer mu.Unlock()

	k := key(tenant, serverID)
	p.lastRedirM.Lock()
	if last, ok := p.lastRedir[k]; ok && time.Since(last) < redirectLoopGuard {
		p.lastRedirM.Unlock()
		return nil, ErrLoopGuard
	}
	p.lastRedir[k] = time.Now()
	p.lastRedirM.Unlock()

	metadata, err := p.discoverer.discover(ctx, cfg.BaseURL, cfg.CustomMetadata)
	if err != nil {
		return nil, err
	}

	clientInfo, err := p.store.GetClientInfo(ctx, tenant, serverID)
	if err != nil {
		if err != tenantstore.ErrNotFound {
			return nil, err
		}
		registered, rerr := p.register(ctx, metadata)
		if rerr != nil {
			return nil, rerr
		}
		if perr := p.store.PutClientInfo(ctx, tenant, serverID, *registered); perr != nil {
			return nil, perr
		}
		clientInfo = registered
	}

	verifier, challenge, err := generatePKCE()
	if err != nil {
		return nil, err
	}
	csrf, err := generateState()
	if err != nil {
		return nil, err
	}
	encoded := encodeState(csrf, returnState)

	if err := p.store.PutVerifier(ctx, tenant, serverID, csrf, tenantstore.Verifier{
		CodeVerifier: verifier,
		CreatedAt:    time.Now(),
	}); err != nil {
		return nil, err
	}

	authURL, err := url.Parse(metadata.AuthorizationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: invalid authorization_endpoint: %w", err)
	}
	q := authURL.Query()
	q.Set("response_type", "code")
	q.Set("client_id", clientInfo.ClientID)
	q.Set("redirect_uri", p.callbackURL)
	q.Set("state", encoded)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	if cfg.Scope != "" {
		q.Set("scope", cfg.Scope)
	}
	authURL.RawQuery = q.Encode()

	return &AuthorizationResult{AuthorizationURL: authURL.String(), State: encoded}, nil
}

// ExchangeCode completes the AWAITING_CODE → AUTHORIZED transition: it
// retrieves and atomically deletes the PKCE verifier for the state's CSRF
// component, exchanges the code for tokens, and persists them. Returns the
// caller-supplied return-state blob so the façade can resume the browser
// redirect it was servicing.
func (p *Provider) ExchangeCode(ctx context.Context, tenant, serverID string, cfg ServerConfig, code, encodedState string) (returnState string, err error) {
	mu := p.lockFor(tenant, serverID)
	mu.Lock()
	defer mu.Unlock()

	csrf, returnState, ok := decodeState(encodedState)
	if !ok {
		return "", ErrVerifierMissing
	}

	v, err := p.store.GetVerifier(ctx, tenant, serverID, csrf)
	if err != nil {
		return "", ErrVerifierMissing
	}
	_ = p.store.DeleteVerifier(ctx, tenant, serverID, csrf)

	metadata, err := p.discoverer.discover(ctx, cfg.BaseURL, cfg.CustomMetadata)
	if err != nil {
		return "", err
	}
	clientInfo, err := p.store.GetClientInfo(ctx, tenant, serverID)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.callbackURL)
	form.Set("client_id", clientInfo.ClientID)
	form.Set("code_verifier", v.CodeVerifier)

	tokens, err := p.postTokenRequest(ctx, metadata.TokenEndpoint, form)
	if err != nil {
		return "", err
	}
	if err := p.store.PutTokens(ctx, tenant, serverID, *tokens); err != nil {
		return "", err
	}
	return returnState, nil
}

// EnsureValidToken returns a currently-valid access token for (tenant,
// serverId), transparently refreshing (or, for client-credentials servers,
// acquiring one from scratch) when necessary. Returns ErrNeedsAuthorization
// when the caller must redirect the user through StartAuthorization again.
func (p *Provider) EnsureValidToken(ctx context.Context, tenant, serverID string, cfg ServerConfig) (string, error) {
	tokens, err := p.store.GetTokens(ctx, tenant, serverID)
	if err != nil && err != tenantstore.ErrNotFound {
		return "", err
	}

	if tokens != nil && !tokens.Expired(time.Now()) {
		return tokens.AccessToken, nil
	}

	if cfg.ClientCredential {
		fresh, err := p.clientCredentialsExchange(ctx, tenant, serverID, cfg)
		if err != nil {
			return "", err
		}
		return fresh.AccessToken, nil
	}

	if tokens == nil || !tokens.Refreshable() {
		return "", ErrNeedsAuthorization
	}

	fresh, err := p.refresh(ctx, tenant, serverID, cfg, tokens.RefreshToken)
	if err != nil {
		_ = p.Invalidate(ctx, tenant, serverID, tenantstore.ScopeTokens)
		return "", ErrNeedsAuthorization
	}
	return fresh.AccessToken, nil
}

// ForceRefresh unconditionally refreshes (or, for client-credentials
// servers, re-acquires) a token for (tenant, serverId), bypassing the
// locally-cached expiry check EnsureValidToken relies on. Callers use this
// when an upstream rejects a token before its recorded expiry — a revoked
// token, clock skew, or a server-side lifetime shorter than what was
// persisted — so the retry actually gets a different token instead of
// replaying the same stale one.
func (p *Provider) ForceRefresh(ctx context.Context, tenant, serverID string, cfg ServerConfig) (string, error) {
	if cfg.ClientCredential {
		fresh, err := p.clientCredentialsExchange(ctx, tenant, serverID, cfg)
		if err != nil {
			return "", err
		}
		return fresh.AccessToken, nil
	}

	tokens, err := p.store.GetTokens(ctx, tenant, serverID)
	if err != nil && err != tenantstore.ErrNotFound {
		return "", err
	}
	if tokens == nil || !tokens.Refreshable() {
		return "", ErrNeedsAuthorization
	}

	fresh, err := p.refresh(ctx, tenant, serverID, cfg, tokens.RefreshToken)
	if err != nil {
		_ = p.Invalidate(ctx, tenant, serverID, tenantstore.ScopeTokens)
		return "", ErrNeedsAuthorization
	}
	return fresh.AccessToken, nil
}

// refresh exchanges a refresh token for a new access token, coalescing
// concurrent refreshes for the same (tenant, serverId) via singleflight so
// only one HTTP round-trip happens regardless of how many callers are
// racing to refresh the same expired token.
func (p *Provider) refresh(ctx context.Context, tenant, serverID string, cfg ServerConfig, refreshToken string) (*tenantstore.Tokens, error) {
	k := key(tenant, serverID)
	result, err, _ := p.refreshSF.Do(k, func() (any, error) {
		mu := p.lockFor(tenant, serverID)
		mu.Lock()
		defer mu.Unlock()

		metadata, err := p.discoverer.discover(ctx, cfg.BaseURL, cfg.CustomMetadata)
		if err != nil {
			return nil, err
		}
		clientInfo, err := p.store.GetClientInfo(ctx, tenant, serverID)
		if err != nil {
			return nil, err
		}

		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		form.Set("client_id", clientInfo.ClientID)

		tokens, err := p.postTokenRequest(ctx, metadata.TokenEndpoint, form)
		if err != nil {
			return nil, err
		}
		if tokens.RefreshToken == "" {
			tokens.RefreshToken = refreshToken
		}
		if err := p.store.PutTokens(ctx, tenant, serverID, *tokens); err != nil {
			return nil, err
		}
		return tokens, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*tenantstore.Tokens), nil
}

// clientCredentialsExchange implements the client-credentials variant of
// the state machine: no user redirect, straight exchange at the token
// endpoint using the pre-provisioned client secret. Delegates the grant
// itself to clientcredentials.Config rather than hand-rolling the form post,
// so retries/basic-auth-vs-body client authentication follow the same code
// path every other x/oauth2-based client in the pack relies on.
func (p *Provider) clientCredentialsExchange(ctx context.Context, tenant, serverID string, cfg ServerConfig) (*tenantstore.Tokens, error) {
	mu := p.lockFor(tenant, serverID)
	mu.Lock()
	defer mu.Unlock()

	metadata, err := p.discoverer.discover(ctx, cfg.BaseURL, cfg.CustomMetadata)
	if err != nil {
		return nil, err
	}
	clientInfo, err := p.store.GetClientInfo(ctx, tenant, serverID)
	if err != nil {
		if err != tenantstore.ErrNotFound {
			return nil, err
		}
		clientInfo = &tenantstore.ClientInfo{ClientSecret: cfg.ClientSecret}
	}

	ccCfg := clientcredentials.Config{
		ClientID:     clientInfo.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     metadata.TokenEndpoint,
	}
	if cfg.Scope != "" {
		ccCfg.Scopes = strings.Fields(cfg.Scope)
	}

	tok, err := ccCfg.Token(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}

	tokens := &tenantstore.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        cfg.Scope,
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		tokens.Scope = scope
	}

	if err := p.store.PutTokens(ctx, tenant, serverID, *tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Invalidate drops (tenant, serverId) artifacts per scope.
func (p *Provider) Invalidate(ctx context.Context, tenant, serverID string, scope tenantstore.InvalidateScope) error {
	mu := p.lockFor(tenant, serverID)
	mu.Lock()
	defer mu.Unlock()
	return p.store.Invalidate(ctx, tenant, serverID, scope)
}

func (p *Provider) postTokenRequest(ctx context.Context, endpoint string, form url.Values) (*tenantstore.Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return p.doTokenRequest(req)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

func (p *Provider) doTokenRequest(req *http.Request) (*tenantstore.Tokens, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTokenExchangeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTokenExchangeFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(bytes.TrimSpace(body), &tr); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrTokenExchangeFailed, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access_token", ErrTokenExchangeFailed)
	}

	tokens := &tenantstore.Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
	}
	if tr.ExpiresIn > 0 {
		tokens.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

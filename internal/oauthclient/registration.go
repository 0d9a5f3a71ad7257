package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hootmcp/gateway/internal/tenantstore"
)

// dcrRequest is the RFC 7591 dynamic client registration body. The gateway
// always registers as a public client: no client secret, PKCE-only.
type dcrRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type dcrResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret"`
	RegistrationAccessToken string `json:"registration_access_token"`
}

// register performs RFC 7591 dynamic client registration against metadata's
// registration_endpoint and returns the resulting ClientInfo.
func (p *Provider) register(ctx context.Context, metadata *ASMetadata) (*tenantstore.ClientInfo, error) {
	if metadata.RegistrationEndpoint == "" {
		return nil, fmt.Errorf("%w: no registration_endpoint advertised", ErrRegistrationFailed)
	}

	body := dcrRequest{
		ClientName:              "hoot-gateway",
		RedirectURIs:            []string{p.callbackURL},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, metadata.RegistrationEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: status %d", ErrRegistrationFailed, resp.StatusCode)
	}

	var dcr dcrResponse
	if err := json.NewDecoder(resp.Body).Decode(&dcr); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrRegistrationFailed, err)
	}
	if dcr.ClientID == "" {
		return nil, fmt.Errorf("%w: empty client_id in response", ErrRegistrationFailed)
	}

	return &tenantstore.ClientInfo{
		ClientID:              dcr.ClientID,
		ClientSecret:          dcr.ClientSecret,
		RedirectURIs:          []string{p.callbackURL},
		RegistrationAccessTok: dcr.RegistrationAccessToken,
		IssuedAt:              time.Now(),
	}, nil
}

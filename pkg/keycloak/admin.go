package keycloak

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// adminTokenEarlyRefresh is how long before expiry a cached admin token
// is treated as stale. Refreshing early keeps a token from expiring
// mid-request on the admin API call it was fetched for.
const adminTokenEarlyRefresh = 30 * time.Second

// tokenResponse is the OAuth2 token endpoint response for the
// client-credentials grant. Only the fields the token source needs.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AdminTokenSource obtains service-account access tokens via the OAuth2
// client-credentials grant, for calls against Keycloak's admin and
// authorization-services APIs.
//
// Concurrent callers needing a fresh token share a single in-flight
// token request: N goroutines hitting an expired token produce one POST
// to the token endpoint, not N. This matters because admin-token demand
// spikes exactly when the provider is already under load.
//
// An AdminTokenSource is safe for concurrent use.
type AdminTokenSource struct {
	gateway   *gateway
	discovery *DiscoveryCache
	client    ClientConfig

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewAdminTokenSource creates a token source for the given confidential
// client. The client must have a secret; the client-credentials grant
// cannot run without one.
func NewAdminTokenSource(v *Validator, client ClientConfig) (*AdminTokenSource, error) {
	if err := client.Validate(); err != nil {
		return nil, err
	}
	if client.ClientSecret.Value() == "" {
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: client %q has no client secret configured for token grants",
			client.ClientID)
	}
	return &AdminTokenSource{
		gateway:   v.jwks.gateway,
		discovery: v.discovery,
		client:    client,
	}, nil
}

// Token returns a valid access token, fetching a fresh one when the
// cached token is missing or within the early-refresh window of expiry.
func (s *AdminTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token, expiresAt := s.token, s.expiresAt
	s.mu.RUnlock()
	if token != "" && time.Until(expiresAt) > adminTokenEarlyRefresh {
		return token, nil
	}

	// One fetch per process regardless of caller count. The key is
	// constant: there is exactly one admin identity per source.
	result, err, _ := s.group.Do("token", func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate discards the cached token so the next Token call fetches a
// fresh one. Call after a 401 from the admin API.
func (s *AdminTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

// fetch performs the client-credentials grant against the realm token
// endpoint and caches the result.
func (s *AdminTokenSource) fetch(ctx context.Context) (string, error) {
	// Another caller may have refreshed while this one waited on the
	// singleflight; reuse that token instead of fetching again.
	s.mu.RLock()
	token, expiresAt := s.token, s.expiresAt
	s.mu.RUnlock()
	if token != "" && time.Until(expiresAt) > adminTokenEarlyRefresh {
		return token, nil
	}

	doc, err := s.discovery.Get(ctx, s.client.Realm)
	if err != nil {
		return "", err
	}
	if doc.TokenEndpoint == "" {
		return "", sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: realm %q discovery document has no token_endpoint",
			s.client.Realm)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	var resp tokenResponse
	err = s.gateway.postForm(ctx, "token_grant", doc.TokenEndpoint, form,
		s.client.ClientID, s.client.ClientSecret.Value(), &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", sserr.New(sserr.CodeUnavailableDependency,
			"keycloak: token endpoint returned no access token")
	}

	s.mu.Lock()
	s.token = resp.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	s.mu.Unlock()

	return resp.AccessToken, nil
}

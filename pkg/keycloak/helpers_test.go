package keycloak

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-auth/internal/testutil/fixtures"
)

// fakeProvider is an in-process identity provider serving the OIDC
// discovery document, JWKS, introspection, and token endpoints for a
// single realm. Request counters let tests assert how often the network
// was actually hit.
type fakeProvider struct {
	t      *testing.T
	server *httptest.Server
	realm  string

	rsaKey *rsa.PrivateKey
	ecKey  *ecdsa.PrivateKey

	discoveryHits     atomic.Int64
	jwksHits          atomic.Int64
	introspectionHits atomic.Int64
	tokenHits         atomic.Int64

	// introspectionResponse is returned verbatim by the introspection
	// endpoint. Defaults to an inactive token.
	introspectionResponse map[string]any

	// introspectionStatus overrides the introspection HTTP status when
	// non-zero.
	introspectionStatus int

	// tokenResponse is returned by the token endpoint.
	tokenResponse map[string]any
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	p := &fakeProvider{
		t:      t,
		realm:  fixtures.TestRealm,
		rsaKey: rsaKey,
		ecKey:  ecKey,
		introspectionResponse: map[string]any{
			"active": false,
		},
		tokenResponse: map[string]any{
			"access_token": "admin-token-1",
			"token_type":   "Bearer",
			"expires_in":   300,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+p.realm+"/.well-known/openid-configuration", p.serveDiscovery)
	mux.HandleFunc("/realms/"+p.realm+"/protocol/openid-connect/certs", p.serveJWKS)
	mux.HandleFunc("/realms/"+p.realm+"/protocol/openid-connect/token/introspect", p.serveIntrospection)
	mux.HandleFunc("/realms/"+p.realm+"/protocol/openid-connect/token", p.serveToken)

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) issuer() string {
	return p.server.URL + "/realms/" + p.realm
}

func (p *fakeProvider) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	p.discoveryHits.Add(1)
	writeJSON(w, map[string]any{
		"issuer":                 p.issuer(),
		"authorization_endpoint": p.issuer() + "/protocol/openid-connect/auth",
		"token_endpoint":         p.issuer() + "/protocol/openid-connect/token",
		"jwks_uri":               p.issuer() + "/protocol/openid-connect/certs",
		"introspection_endpoint": p.issuer() + "/protocol/openid-connect/token/introspect",
		"end_session_endpoint":   p.issuer() + "/protocol/openid-connect/logout",
		"userinfo_endpoint":      p.issuer() + "/protocol/openid-connect/userinfo",
	})
}

func (p *fakeProvider) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	p.jwksHits.Add(1)
	pub := p.rsaKey.Public().(*rsa.PublicKey)
	ecPub := p.ecKey.Public().(*ecdsa.PublicKey)

	byteLen := (ecPub.Curve.Params().BitSize + 7) / 8
	writeJSON(w, map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": fixtures.TestKeyID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
			{
				"kty": "EC",
				"kid": fixtures.TestECKeyID,
				"alg": "ES256",
				"use": "sig",
				"crv": "P-256",
				"x":   base64.RawURLEncoding.EncodeToString(ecPub.X.FillBytes(make([]byte, byteLen))),
				"y":   base64.RawURLEncoding.EncodeToString(ecPub.Y.FillBytes(make([]byte, byteLen))),
			},
		},
	})
}

func (p *fakeProvider) serveIntrospection(w http.ResponseWriter, r *http.Request) {
	p.introspectionHits.Add(1)
	if _, _, ok := r.BasicAuth(); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if p.introspectionStatus != 0 {
		w.WriteHeader(p.introspectionStatus)
		return
	}
	writeJSON(w, p.introspectionResponse)
}

func (p *fakeProvider) serveToken(w http.ResponseWriter, r *http.Request) {
	p.tokenHits.Add(1)
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, p.tokenResponse)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// defaultClaims returns a complete, currently-valid claim set for the
// fake provider's realm and the standard test client.
func (p *fakeProvider) defaultClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":           fixtures.TestSubject,
		"iss":           p.issuer(),
		"aud":           fixtures.TestClientID,
		"exp":           now.Add(10 * time.Minute).Unix(),
		"iat":           now.Unix(),
		"azp":           fixtures.TestClientID,
		"scope":         "openid profile",
		"session_state": fixtures.TestSessionState,
		"realm_access":  map[string]any{"roles": []any{"user"}},
		"resource_access": map[string]any{
			fixtures.TestClientID: map[string]any{"roles": []any{"viewer"}},
		},
	}
}

// mintRS256 signs claims with the provider's RSA key under the standard
// test key ID.
func (p *fakeProvider) mintRS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = fixtures.TestKeyID
	signed, err := token.SignedString(p.rsaKey)
	require.NoError(t, err)
	return signed
}

// mintES256 signs claims with the provider's EC key.
func (p *fakeProvider) mintES256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = fixtures.TestECKeyID
	signed, err := token.SignedString(p.ecKey)
	require.NoError(t, err)
	return signed
}

// newTestValidator builds a Validator against the fake provider with a
// memory-only cache and fast test timings.
func newTestValidator(t *testing.T, p *fakeProvider) *Validator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ServerURL = p.server.URL
	cfg.Environment = "test"
	cfg.HTTPTimeout = 2 * time.Second
	cfg.MaxRetries = 0
	cfg.DiscoverySweepInterval = 0

	v, err := NewValidator(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(v.Shutdown)
	return v
}

// testClient is the standard confidential client configuration for the
// fake provider.
func testClient() ClientConfig {
	return ClientConfig{
		Realm:        fixtures.TestRealm,
		ClientID:     fixtures.TestClientID,
		ClientSecret: Secret(fixtures.TestClientSecret),
	}
}

// errTestStoreDown simulates a backing store outage.
var errTestStoreDown = errors.New("store down")

// memStore is a Store fake with switchable failure for fallback tests.
type memStore struct {
	cache *memoryCache
	fail  atomic.Bool
}

func newMemStore() *memStore {
	return &memStore{cache: newMemoryCache()}
}

var _ Store = (*memStore)(nil)

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	if s.fail.Load() {
		return "", false, errTestStoreDown
	}
	value, found := s.cache.get(key)
	return value, found, nil
}

func (s *memStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if s.fail.Load() {
		return errTestStoreDown
	}
	s.cache.set(key, value, ttl)
	return nil
}

func (s *memStore) Delete(_ context.Context, keys ...string) error {
	if s.fail.Load() {
		return errTestStoreDown
	}
	s.cache.delete(keys...)
	return nil
}

func (s *memStore) InvalidatePattern(_ context.Context, pattern string) (int64, error) {
	if s.fail.Load() {
		return 0, errTestStoreDown
	}
	return s.cache.invalidatePattern(pattern), nil
}

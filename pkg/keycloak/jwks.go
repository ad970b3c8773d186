package keycloak

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// allowedSigningMethods are the JWT signing algorithms accepted for
// provider-issued tokens. Restricting the set (and thereby rejecting
// "none" and HMAC confusion attacks) happens before signature
// verification.
var allowedSigningMethods = []string{"RS256", "ES256"}

// jwksResponse is the JSON shape of a JWKS endpoint response.
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey is a single key in a JWKS response. Only the fields needed for
// RSA and EC key reconstruction are included.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// RSA fields
	N string `json:"n"`
	E string `json:"e"`
	// EC fields
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// publicKeyEntry is a cached, parsed JWKS public key.
type publicKeyEntry struct {
	key       any // *rsa.PublicKey or *ecdsa.PublicKey
	fetchedAt time.Time
}

// jwksVerifier validates JWT signatures against the realm's published
// key set. Parsed public keys are cached in-process under
// publickey:<realm>:<keyId> and refreshed after the configured TTL or
// when a token presents an unknown key ID (key rotation).
//
// Safe for concurrent use.
type jwksVerifier struct {
	cfg       *Config
	gateway   *gateway
	discovery *DiscoveryCache

	mu   sync.RWMutex
	keys map[string]*publicKeyEntry
}

func newJWKSVerifier(cfg *Config, gw *gateway, discovery *DiscoveryCache) *jwksVerifier {
	return &jwksVerifier{
		cfg:       cfg,
		gateway:   gw,
		discovery: discovery,
		keys:      make(map[string]*publicKeyEntry),
	}
}

// verify checks the token's signature against the realm key set and
// validates issuer, audience, and time-based claims. Returns normalized
// claims on success, or a coded error describing the first failure.
func (v *jwksVerifier) verify(ctx context.Context, tokenStr string, client ClientConfig) (*TokenClaims, error) {
	if len(tokenStr) > maxTokenSize {
		return nil, sserr.Newf(sserr.CodeAuthenticationInvalid,
			"keycloak: token exceeds maximum size of %d bytes", maxTokenSize)
	}

	doc, err := v.discovery.Get(ctx, client.Realm)
	if err != nil {
		return nil, err
	}
	if doc.JWKSURI == "" {
		// A realm without a jwks_uri cannot validate anything; this is
		// a deployment problem, not a transient one.
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: realm %q discovery document has no jwks_uri", client.Realm)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(allowedSigningMethods),
		jwt.WithLeeway(v.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	)

	mc := jwt.MapClaims{}
	_, err = parser.ParseWithClaims(tokenStr, mc, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, sserr.New(sserr.CodeAuthenticationInvalid,
				"keycloak: token header has no kid")
		}
		return v.getKey(ctx, client.Realm, doc.JWKSURI, kid)
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}

	claims, err := claimsFromMapClaims(mc)
	if err != nil {
		return nil, err
	}

	if claims.Issuer != doc.Issuer {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"keycloak: token issuer does not match realm issuer")
	}
	if !claims.HasAudience(client.ClientID) {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"keycloak: token audience does not include client")
	}

	return claims, nil
}

// getKey returns the public key for (realm, kid), fetching the realm's
// JWKS on a cache miss, after TTL expiry, or when the kid is unknown
// (which usually means the provider rotated keys).
func (v *jwksVerifier) getKey(ctx context.Context, realm, jwksURL, kid string) (any, error) {
	cacheKey := publicKeyCacheKey(realm, kid)

	v.mu.RLock()
	entry, ok := v.keys[cacheKey]
	v.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < v.cfg.PublicKeyTTL {
		return entry.key, nil
	}

	if err := v.refresh(ctx, realm, jwksURL); err != nil {
		return nil, err
	}

	v.mu.RLock()
	entry, ok = v.keys[cacheKey]
	v.mu.RUnlock()
	if !ok {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"keycloak: token signed with unknown key")
	}
	return entry.key, nil
}

// refresh fetches the realm's JWKS via the gateway and replaces all
// cached keys for that realm.
func (v *jwksVerifier) refresh(ctx context.Context, realm, jwksURL string) error {
	var jwks jwksResponse
	if err := v.gateway.getJSON(ctx, "jwks_fetch", jwksURL, &jwks); err != nil {
		return err
	}

	parsed := make(map[string]*publicKeyEntry, len(jwks.Keys))
	now := time.Now()
	for _, k := range jwks.Keys {
		if k.Kid == "" {
			continue
		}
		var key any
		var err error
		switch k.Kty {
		case "RSA":
			key, err = parseRSAPublicKey(k.N, k.E)
		case "EC":
			key, err = parseECPublicKey(k.Crv, k.X, k.Y)
		default:
			continue
		}
		if err != nil {
			// Skip malformed keys; a bad entry must not poison the set.
			continue
		}
		parsed[publicKeyCacheKey(realm, k.Kid)] = &publicKeyEntry{key: key, fetchedAt: now}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropRealmLocked(realm)
	for cacheKey, entry := range parsed {
		v.keys[cacheKey] = entry
	}
	return nil
}

// refreshRealm forces a live JWKS refetch for the realm, resolving the
// JWKS URL through discovery. Used by the maintenance surface.
func (v *jwksVerifier) refreshRealm(ctx context.Context, realm string) error {
	doc, err := v.discovery.Get(ctx, realm)
	if err != nil {
		return err
	}
	if doc.JWKSURI == "" {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: realm %q discovery document has no jwks_uri", realm)
	}
	return v.refresh(ctx, realm, doc.JWKSURI)
}

// dropRealmLocked removes every cached key for the realm. Callers hold
// v.mu.
func (v *jwksVerifier) dropRealmLocked(realm string) {
	prefix := publicKeyCachePrefix + realm + ":"
	for cacheKey := range v.keys {
		if strings.HasPrefix(cacheKey, prefix) {
			delete(v.keys, cacheKey)
		}
	}
}

// classifyJWTError maps golang-jwt parse errors onto the platform error
// taxonomy. Errors that already carry a code pass through unchanged.
func classifyJWTError(err error) error {
	if err == nil {
		return nil
	}
	var ssError *sserr.Error
	if errors.As(err, &ssError) {
		return ssError
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "keycloak: token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "keycloak: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "keycloak: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "keycloak: token is unverifiable")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "keycloak: token is not yet valid")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "keycloak: token validation failed")
	}
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat,
			"keycloak: failed to decode RSA modulus")
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat,
			"keycloak: failed to decode RSA exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// parseECPublicKey constructs an *ecdsa.PublicKey from a curve name and
// base64url-encoded x and y coordinates.
func parseECPublicKey(crv, xBase64, yBase64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, sserr.Newf(sserr.CodeValidationFormat,
			"keycloak: unsupported EC curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xBase64)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat,
			"keycloak: failed to decode EC x coordinate")
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yBase64)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat,
			"keycloak: failed to decode EC y coordinate")
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

package keycloak

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// TokenClaims is the normalized, decoded JWT payload produced by
// successful verification or introspection. Values are copied out of the
// parsed token; a TokenClaims is immutable once constructed and safe to
// share across goroutines.
type TokenClaims struct {
	// Subject is the sub claim, the principal the token was issued to.
	Subject string `json:"sub"`

	// Issuer is the iss claim, the realm issuer URL.
	Issuer string `json:"iss"`

	// Audience is the aud claim. Keycloak emits either a string or an
	// array; both normalize to a slice here.
	Audience []string `json:"aud"`

	// ExpiresAt is the exp claim in epoch seconds.
	ExpiresAt int64 `json:"exp"`

	// IssuedAt is the iat claim in epoch seconds.
	IssuedAt int64 `json:"iat"`

	// AuthorizedParty is the azp claim, the client the token was
	// issued for. Optional.
	AuthorizedParty string `json:"azp,omitempty"`

	// Scope is the space-delimited OAuth2 scope string. Optional.
	Scope string `json:"scope,omitempty"`

	// RealmRoles holds realm_access.roles. Optional.
	RealmRoles []string `json:"realm_roles,omitempty"`

	// ClientRoles maps client ID to resource_access.<client>.roles.
	// Optional.
	ClientRoles map[string][]string `json:"client_roles,omitempty"`

	// SessionState is the Keycloak session identifier. Optional.
	SessionState string `json:"session_state,omitempty"`
}

// Expiry returns the exp claim as a time.Time.
func (c *TokenClaims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// HasRealmRole reports whether the claims carry the given realm role.
func (c *TokenClaims) HasRealmRole(role string) bool {
	for _, r := range c.RealmRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HasClientRole reports whether the claims carry the given role for the
// given client.
func (c *TokenClaims) HasClientRole(clientID, role string) bool {
	for _, r := range c.ClientRoles[clientID] {
		if r == role {
			return true
		}
	}
	return false
}

// HasAudience reports whether aud contains the given value.
func (c *TokenClaims) HasAudience(aud string) bool {
	for _, a := range c.Audience {
		if a == aud {
			return true
		}
	}
	return false
}

// ValidationResult is the outcome of a token validation. Exactly one of
// Claims and Error is set: Claims when Valid is true, Error when false.
// Results are values; callers may retain them freely.
type ValidationResult struct {
	// Valid reports whether the token verified successfully.
	Valid bool `json:"valid"`

	// Claims holds the verified claims when Valid is true.
	Claims *TokenClaims `json:"claims,omitempty"`

	// Error is a sanitized, user-safe failure message when Valid is
	// false. Never contains hostnames, backend names, or stack traces.
	Error string `json:"error,omitempty"`

	// Cached reports whether the result was served from the validation
	// cache rather than live verification.
	Cached bool `json:"cached"`
}

// invalidResult builds a failed ValidationResult from an error, passing
// the message through the sanitization boundary.
func invalidResult(err error) ValidationResult {
	return ValidationResult{Valid: false, Error: sserr.Sanitize(err)}
}

// IntrospectionResponse mirrors the RFC 7662 introspection response.
// When Active is false all other fields are unreliable and must not be
// used for authorization decisions.
type IntrospectionResponse struct {
	// Active reports whether the token is currently valid at the
	// provider. This is the only field RFC 7662 requires.
	Active bool `json:"active"`

	// Scope is the space-delimited scope string. Optional.
	Scope string `json:"scope,omitempty"`

	// ClientID is the client the token was issued to. Optional.
	ClientID string `json:"client_id,omitempty"`

	// Username is the human-readable resource-owner identifier. Optional.
	Username string `json:"username,omitempty"`

	// TokenType is typically "Bearer". Optional.
	TokenType string `json:"token_type,omitempty"`

	// Exp is the expiration time in epoch seconds. Optional.
	Exp int64 `json:"exp,omitempty"`

	// Iat is the issuance time in epoch seconds. Optional.
	Iat int64 `json:"iat,omitempty"`

	// Nbf is the not-before time in epoch seconds. Optional.
	Nbf int64 `json:"nbf,omitempty"`

	// Sub is the subject of the token. Optional.
	Sub string `json:"sub,omitempty"`

	// Aud is the intended audience. Optional.
	Aud string `json:"aud,omitempty"`

	// Iss is the issuer. Optional.
	Iss string `json:"iss,omitempty"`

	// Jti is the token identifier. Optional.
	Jti string `json:"jti,omitempty"`
}

// claimsFromMapClaims validates the shape of a verified JWT payload and
// builds a [TokenClaims]. Required claims (sub, iss, aud, exp, iat) must
// be present with the right types; tokens missing them are rejected even
// when the signature verified, because downstream authorization depends
// on them.
func claimsFromMapClaims(mc jwt.MapClaims) (*TokenClaims, error) {
	sub, ok := mc["sub"].(string)
	if !ok || sub == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"keycloak: token missing required sub claim")
	}
	iss, ok := mc["iss"].(string)
	if !ok || iss == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"keycloak: token missing required iss claim")
	}

	aud := stringSlice(mc["aud"])
	if len(aud) == 0 {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"keycloak: token missing required aud claim")
	}

	exp, ok := numericClaim(mc["exp"])
	if !ok {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"keycloak: token missing required exp claim")
	}
	iat, ok := numericClaim(mc["iat"])
	if !ok {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid,
			"keycloak: token missing required iat claim")
	}

	claims := &TokenClaims{
		Subject:   sub,
		Issuer:    iss,
		Audience:  aud,
		ExpiresAt: exp,
		IssuedAt:  iat,
	}

	if azp, ok := mc["azp"].(string); ok {
		claims.AuthorizedParty = azp
	}
	if scope, ok := mc["scope"].(string); ok {
		claims.Scope = scope
	}
	if session, ok := mc["session_state"].(string); ok {
		claims.SessionState = session
	}

	// realm_access: {"roles": [...]}
	if ra, ok := mc["realm_access"].(map[string]any); ok {
		claims.RealmRoles = stringSlice(ra["roles"])
	}

	// resource_access: {"<client>": {"roles": [...]}}
	if res, ok := mc["resource_access"].(map[string]any); ok {
		for client, v := range res {
			access, ok := v.(map[string]any)
			if !ok {
				continue
			}
			roles := stringSlice(access["roles"])
			if len(roles) == 0 {
				continue
			}
			if claims.ClientRoles == nil {
				claims.ClientRoles = make(map[string][]string, len(res))
			}
			claims.ClientRoles[client] = roles
		}
	}

	return claims, nil
}

// stringSlice normalizes a claim value that may be a string, []string, or
// []any of strings into a []string. Non-string elements are dropped.
func stringSlice(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// numericClaim extracts an epoch-seconds value from a JSON-decoded claim.
// encoding/json decodes JWT numeric dates as float64.
func numericClaim(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case int64:
		return val, true
	case jwt.NumericDate:
		return val.Unix(), true
	default:
		return 0, false
	}
}

package keycloak

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-auth/internal/testutil"
	"github.com/StricklySoft/stricklysoft-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

func baseMapClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": fixtures.TestSubject,
		"iss": "https://keycloak.example.com/realms/" + fixtures.TestRealm,
		"aud": fixtures.TestClientID,
		"exp": float64(time.Now().Add(time.Hour).Unix()),
		"iat": float64(time.Now().Unix()),
	}
}

func TestClaimsFromMapClaims_RequiredClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{name: "missing sub", mutate: func(mc jwt.MapClaims) { delete(mc, "sub") }},
		{name: "empty sub", mutate: func(mc jwt.MapClaims) { mc["sub"] = "" }},
		{name: "missing iss", mutate: func(mc jwt.MapClaims) { delete(mc, "iss") }},
		{name: "missing aud", mutate: func(mc jwt.MapClaims) { delete(mc, "aud") }},
		{name: "missing exp", mutate: func(mc jwt.MapClaims) { delete(mc, "exp") }},
		{name: "missing iat", mutate: func(mc jwt.MapClaims) { delete(mc, "iat") }},
		{name: "non-numeric exp", mutate: func(mc jwt.MapClaims) { mc["exp"] = "tomorrow" }},
		{name: "non-string sub", mutate: func(mc jwt.MapClaims) { mc["sub"] = 42 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mc := baseMapClaims()
			tt.mutate(mc)

			_, err := claimsFromMapClaims(mc)
			testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
		})
	}
}

func TestClaimsFromMapClaims_AudienceNormalization(t *testing.T) {
	t.Parallel()

	// Keycloak emits aud as either a string or an array.
	mc := baseMapClaims()
	mc["aud"] = []any{"account", fixtures.TestClientID}

	claims, err := claimsFromMapClaims(mc)
	require.NoError(t, err)
	assert.Equal(t, []string{"account", fixtures.TestClientID}, claims.Audience)
	assert.True(t, claims.HasAudience(fixtures.TestClientID))
	assert.False(t, claims.HasAudience("other"))
}

func TestClaimsFromMapClaims_RoleExtraction(t *testing.T) {
	t.Parallel()

	mc := baseMapClaims()
	mc["realm_access"] = map[string]any{"roles": []any{"user", "admin"}}
	mc["resource_access"] = map[string]any{
		fixtures.TestClientID: map[string]any{"roles": []any{"viewer"}},
		"broken":              "not a map",
		"empty":               map[string]any{"roles": []any{}},
	}

	claims, err := claimsFromMapClaims(mc)
	require.NoError(t, err)
	assert.True(t, claims.HasRealmRole("admin"))
	assert.False(t, claims.HasRealmRole("operator"))
	assert.True(t, claims.HasClientRole(fixtures.TestClientID, "viewer"))
	assert.False(t, claims.HasClientRole("broken", "viewer"))
	assert.NotContains(t, claims.ClientRoles, "empty")
}

func TestTokenClaims_Expiry(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Unix()
	claims := &TokenClaims{ExpiresAt: exp}
	assert.Equal(t, time.Unix(exp, 0), claims.Expiry())
}

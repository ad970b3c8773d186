package keycloak

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-auth/internal/testutil/fixtures"
)

func TestValidateJWT_ValidRS256(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	token := p.mintRS256(t, p.defaultClaims())
	result := v.ValidateJWT(context.Background(), token, testClient())

	require.True(t, result.Valid, "unexpected error: %s", result.Error)
	assert.False(t, result.Cached)
	require.NotNil(t, result.Claims)
	assert.Equal(t, fixtures.TestSubject, result.Claims.Subject)
	assert.Equal(t, p.issuer(), result.Claims.Issuer)
	assert.Equal(t, []string{fixtures.TestClientID}, result.Claims.Audience)
	assert.Equal(t, "openid profile", result.Claims.Scope)
	assert.Equal(t, []string{"user"}, result.Claims.RealmRoles)
	assert.Equal(t, []string{"viewer"}, result.Claims.ClientRoles[fixtures.TestClientID])
	assert.Equal(t, fixtures.TestSessionState, result.Claims.SessionState)
}

func TestValidateJWT_ValidES256(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	token := p.mintES256(t, p.defaultClaims())
	result := v.ValidateJWT(context.Background(), token, testClient())

	require.True(t, result.Valid, "unexpected error: %s", result.Error)
	assert.Equal(t, fixtures.TestSubject, result.Claims.Subject)
}

func TestValidateJWT_SecondCallServedFromCache(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	token := p.mintRS256(t, p.defaultClaims())

	first := v.ValidateJWT(context.Background(), token, testClient())
	require.True(t, first.Valid)
	require.False(t, first.Cached)

	second := v.ValidateJWT(context.Background(), token, testClient())
	require.True(t, second.Valid)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Claims, second.Claims)

	// The provider was only consulted once.
	assert.Equal(t, int64(1), p.jwksHits.Load())
}

func TestValidateJWT_CacheSurvivesSaltRotation(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	token := p.mintRS256(t, p.defaultClaims())
	require.True(t, v.ValidateJWT(context.Background(), token, testClient()).Valid)

	v.Rotate()

	result := v.ValidateJWT(context.Background(), token, testClient())
	require.True(t, result.Valid)
	assert.True(t, result.Cached, "previous-salt hash must still reach the cached entry")
}

func TestValidateJWT_Failures(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	expired := p.defaultClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	expired["iat"] = time.Now().Add(-2 * time.Hour).Unix()

	wrongIssuer := p.defaultClaims()
	wrongIssuer["iss"] = "https://evil.example.com/realms/other"

	wrongAudience := p.defaultClaims()
	wrongAudience["aud"] = "other-client"

	missingSub := p.defaultClaims()
	delete(missingSub, "sub")

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not.a.jwt"},
		{name: "expired", token: p.mintRS256(t, expired)},
		{name: "wrong issuer", token: p.mintRS256(t, wrongIssuer)},
		{name: "wrong audience", token: p.mintRS256(t, wrongAudience)},
		{name: "missing sub", token: p.mintRS256(t, missingSub)},
		{name: "alg none", token: mintAlgNone(t, p.defaultClaims())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateJWT(context.Background(), tt.token, testClient())
			assert.False(t, result.Valid)
			assert.Nil(t, result.Claims)
			assert.NotEmpty(t, result.Error)
			assert.False(t, result.Cached)
		})
	}
}

// mintAlgNone builds an unsigned token with alg "none".
func mintAlgNone(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return signed
}

func TestValidateJWT_InvalidResultsAreNotCached(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	expired := p.defaultClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	token := p.mintRS256(t, expired)

	first := v.ValidateJWT(context.Background(), token, testClient())
	require.False(t, first.Valid)

	second := v.ValidateJWT(context.Background(), token, testClient())
	assert.False(t, second.Cached, "failed validations must not be served from cache")
}

func TestValidateJWT_SignatureFromForeignKeyRejected(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	other := newFakeProvider(t)
	v := newTestValidator(t, p)

	// Claims match realm p, but the signature comes from another
	// provider's key under the same kid.
	token := other.mintRS256(t, p.defaultClaims())
	result := v.ValidateJWT(context.Background(), token, testClient())
	assert.False(t, result.Valid)
}

func TestValidateJWT_NeverLeaksInternals(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)
	p.server.Close() // provider down: network errors on every path

	result := v.ValidateJWT(context.Background(), p.mintRS256(t, p.defaultClaims()), testClient())
	require.False(t, result.Valid)

	sensitive := regexp.MustCompile(`(?i)(redis|password|localhost|127\.0\.0\.1|node_modules|goroutine)`)
	assert.NotRegexp(t, sensitive, result.Error)
}

func TestValidator_MetricsCounters(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	token := p.mintRS256(t, p.defaultClaims())
	v.ValidateJWT(context.Background(), token, testClient()) // miss + success
	v.ValidateJWT(context.Background(), token, testClient()) // hit
	v.ValidateJWT(context.Background(), "garbage", testClient())

	m := v.Metrics()
	assert.Equal(t, uint64(3), m.Attempts)
	assert.Equal(t, uint64(1), m.CacheHits)
	assert.Equal(t, uint64(2), m.CacheMisses)
	assert.Equal(t, uint64(1), m.Successes)
	assert.Equal(t, uint64(1), m.Failures)

	v.ResetMetrics()
	assert.Zero(t, v.Metrics().Attempts)
}

func TestValidator_HealthStatusIsSanitized(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	v.ValidateJWT(context.Background(), p.mintRS256(t, p.defaultClaims()), testClient())

	status := v.HealthStatus()
	assert.True(t, status.Healthy)
	assert.True(t, status.CircuitBreaker.Configured)
	assert.Equal(t, DefaultFailureThreshold, status.CircuitBreaker.FailureThreshold)

	serialized, err := json.Marshal(status)
	require.NoError(t, err)
	sensitive := regexp.MustCompile(`(?i)(redis|password|localhost|node_modules|goroutine \d)`)
	assert.NotRegexp(t, sensitive, string(serialized))
}

func TestValidator_CircuitOpensAfterConsecutiveProviderFailures(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)
	p.server.Close()

	for i := 0; i < DefaultFailureThreshold; i++ {
		result := v.ValidateJWT(context.Background(), p.mintRS256(t, p.defaultClaims()), testClient())
		require.False(t, result.Valid)
	}

	assert.Equal(t, BreakerOpen, v.breaker.State())
	assert.False(t, v.HealthStatus().Healthy)

	// Calls now fail fast; the breaker rejects before any dial.
	before := v.breaker.Metrics().TotalCalls
	result := v.ValidateJWT(context.Background(), p.mintRS256(t, p.defaultClaims()), testClient())
	assert.False(t, result.Valid)
	assert.Equal(t, before, v.breaker.Metrics().TotalCalls)
}

func TestValidator_CleanupExpiredTokens(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)

	cfg := DefaultConfig()
	cfg.ServerURL = p.server.URL
	cfg.DiscoverySweepInterval = 0
	cfg.MaxRetries = 0
	store := newMemStore()
	v, err := NewValidator(cfg, store)
	require.NoError(t, err)
	t.Cleanup(v.Shutdown)

	token := p.mintRS256(t, p.defaultClaims())
	require.True(t, v.ValidateJWT(context.Background(), token, testClient()).Valid)

	removed, err := v.CleanupExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The next validation is a live miss again.
	result := v.ValidateJWT(context.Background(), token, testClient())
	require.True(t, result.Valid)
	assert.False(t, result.Cached)
}

func TestValidator_RefreshPublicKeys(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	require.True(t, v.ValidateJWT(context.Background(), p.mintRS256(t, p.defaultClaims()), testClient()).Valid)
	require.Equal(t, int64(1), p.jwksHits.Load())

	require.NoError(t, v.RefreshPublicKeys(context.Background(), fixtures.TestRealm))
	assert.Equal(t, int64(2), p.jwksHits.Load())
}

func TestValidator_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)

	cfg := DefaultConfig()
	cfg.ServerURL = p.server.URL
	v, err := NewValidator(cfg, nil)
	require.NoError(t, err)

	v.Shutdown()
	v.Shutdown() // must not panic or block
}

func TestNewValidator_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewValidator(Config{}, nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.ServerURL = "not a url"
	_, err = NewValidator(cfg, nil)
	require.Error(t, err)
}

package keycloak

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-auth/internal/testutil"
	"github.com/StricklySoft/stricklysoft-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

func newTestTokenSource(t *testing.T, p *fakeProvider) *AdminTokenSource {
	t.Helper()
	v := newTestValidator(t, p)
	source, err := NewAdminTokenSource(v, testClient())
	require.NoError(t, err)
	return source
}

func TestAdminTokenSource_FetchesAndCaches(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	source := newTestTokenSource(t, p)

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin-token-1", token)
	assert.Equal(t, int64(1), p.tokenHits.Load())

	// The cached token is reused until the early-refresh window.
	token, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin-token-1", token)
	assert.Equal(t, int64(1), p.tokenHits.Load())
}

func TestAdminTokenSource_ConcurrentCallersShareOneFetch(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	source := newTestTokenSource(t, p)

	const callers = 32
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = source.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "admin-token-1", tokens[i])
	}
	assert.Equal(t, int64(1), p.tokenHits.Load(),
		"concurrent callers must coalesce into a single token request")
}

func TestAdminTokenSource_ZeroExpiryTriggersRefetch(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	source := newTestTokenSource(t, p)
	p.tokenResponse = map[string]any{
		"access_token": "short-lived",
		"token_type":   "Bearer",
		"expires_in":   0, // already inside the early-refresh window
	}

	_, err := source.Token(context.Background())
	require.NoError(t, err)
	_, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.tokenHits.Load())
}

func TestAdminTokenSource_InvalidateForcesRefetch(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	source := newTestTokenSource(t, p)

	_, err := source.Token(context.Background())
	require.NoError(t, err)

	p.tokenResponse = map[string]any{
		"access_token": "admin-token-2",
		"token_type":   "Bearer",
		"expires_in":   300,
	}
	source.Invalidate()

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin-token-2", token)
	assert.Equal(t, int64(2), p.tokenHits.Load())
}

func TestAdminTokenSource_EmptyAccessTokenIsAnError(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	source := newTestTokenSource(t, p)
	p.tokenResponse = map[string]any{
		"token_type": "Bearer",
		"expires_in": 300,
	}

	_, err := source.Token(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
}

func TestNewAdminTokenSource_RequiresSecret(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	_, err := NewAdminTokenSource(v, ClientConfig{
		Realm:    fixtures.TestRealm,
		ClientID: fixtures.TestClientID,
	})
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

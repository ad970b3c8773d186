package keycloak

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-auth/internal/testutil"
	"github.com/StricklySoft/stricklysoft-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

func introspectionRequest(token string) IntrospectionRequest {
	return IntrospectionRequest{Token: token, Client: testClient()}
}

func TestIntrospect_ActiveToken(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)
	p.introspectionResponse = map[string]any{
		"active":    true,
		"sub":       fixtures.TestSubject,
		"client_id": fixtures.TestClientID,
		"scope":     "openid profile",
		"exp":       time.Now().Add(10 * time.Minute).Unix(),
	}

	resp, err := v.Introspect(context.Background(), introspectionRequest("opaque-token-1"))
	require.NoError(t, err)
	assert.True(t, resp.Active)
	assert.Equal(t, fixtures.TestSubject, resp.Sub)
	assert.Equal(t, fixtures.TestClientID, resp.ClientID)
	assert.Equal(t, int64(1), p.introspectionHits.Load())
}

func TestIntrospect_ActiveResponseIsCached(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)
	p.introspectionResponse = map[string]any{
		"active": true,
		"sub":    fixtures.TestSubject,
		"exp":    time.Now().Add(10 * time.Minute).Unix(),
	}

	first, err := v.Introspect(context.Background(), introspectionRequest("opaque-token-1"))
	require.NoError(t, err)

	second, err := v.Introspect(context.Background(), introspectionRequest("opaque-token-1"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), p.introspectionHits.Load(),
		"the second call must be served from the cache")
}

func TestIntrospect_InactiveResponseIsNotCached(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)
	// The default fake response is {"active": false}.

	resp, err := v.Introspect(context.Background(), introspectionRequest("revoked-token"))
	require.NoError(t, err)
	assert.False(t, resp.Active)

	_, err = v.Introspect(context.Background(), introspectionRequest("revoked-token"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.introspectionHits.Load(),
		"an inactive token must be re-checked at the provider every time")
}

func TestIntrospect_ActiveWithoutExpIsNotCached(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)
	p.introspectionResponse = map[string]any{
		"active": true,
		"sub":    fixtures.TestSubject,
	}

	_, err := v.Introspect(context.Background(), introspectionRequest("no-exp-token"))
	require.NoError(t, err)
	_, err = v.Introspect(context.Background(), introspectionRequest("no-exp-token"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.introspectionHits.Load())
}

func TestIntrospect_ProviderFailureIsAnError(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)
	p.introspectionStatus = http.StatusBadGateway

	_, err := v.Introspect(context.Background(), introspectionRequest("opaque-token-1"))
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailableDependency)
}

func TestIntrospect_InputValidation(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	tests := []struct {
		name     string
		req      IntrospectionRequest
		wantCode sserr.Code
	}{
		{
			name:     "empty token",
			req:      introspectionRequest(""),
			wantCode: sserr.CodeValidationRequired,
		},
		{
			name:     "oversized token",
			req:      introspectionRequest(strings.Repeat("x", maxTokenSize+1)),
			wantCode: sserr.CodeAuthenticationInvalid,
		},
		{
			name: "missing realm",
			req: IntrospectionRequest{
				Token:  "opaque-token-1",
				Client: ClientConfig{ClientID: fixtures.TestClientID},
			},
			wantCode: sserr.CodeInternalConfiguration,
		},
		{
			name: "missing client secret",
			req: IntrospectionRequest{
				Token: "opaque-token-1",
				Client: ClientConfig{
					Realm:    fixtures.TestRealm,
					ClientID: fixtures.TestClientID,
				},
			},
			wantCode: sserr.CodeInternalConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Introspect(context.Background(), tt.req)
			testutil.RequireErrorCode(t, err, tt.wantCode)
		})
	}

	// None of the rejected requests may have reached the provider.
	assert.Zero(t, p.introspectionHits.Load())
}

func TestIntrospect_SendsClientCredentials(t *testing.T) {
	t.Parallel()
	p := newFakeProvider(t)
	v := newTestValidator(t, p)

	// The fake endpoint returns 401 for requests without basic auth, so a
	// successful round trip proves credentials were attached.
	resp, err := v.Introspect(context.Background(), introspectionRequest("opaque-token-1"))
	require.NoError(t, err)
	assert.False(t, resp.Active)
}

package keycloak

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-auth/internal/testutil/fixtures"
)

func TestClaimsContextRoundTrip(t *testing.T) {
	t.Parallel()

	claims := &TokenClaims{Subject: fixtures.TestSubject}
	ctx := ContextWithClaims(context.Background(), claims)

	got, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, claims, got)
	assert.Same(t, claims, MustClaimsFromContext(ctx))
}

func TestClaimsFromContext_Absent(t *testing.T) {
	t.Parallel()

	got, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, got)

	assert.Panics(t, func() {
		MustClaimsFromContext(context.Background())
	})
}

func TestRawTokenContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRawToken(context.Background(), "raw-token")
	got, ok := RawTokenFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "raw-token", got)

	_, ok = RawTokenFromContext(context.Background())
	assert.False(t, ok)
}

func TestTraceIDFromContext_NoActiveTrace(t *testing.T) {
	t.Parallel()

	id, ok := TraceIDFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

package keycloak

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type used for context keys in this package.
// Using a distinct type prevents collisions with keys from other packages.
type contextKey int

const (
	// claimsKey stores the validated TokenClaims in the context.
	claimsKey contextKey = iota

	// rawTokenKey stores the raw bearer token for services that forward
	// it downstream.
	rawTokenKey
)

// ContextWithClaims returns a new context with the given claims attached.
// The claims can later be retrieved with [ClaimsFromContext].
//
// This is typically called by [Middleware] after successful validation.
func ContextWithClaims(ctx context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext retrieves the validated claims from the context.
// Returns the claims and true if present, or nil and false if no claims
// have been set.
//
// Example:
//
//	claims, ok := keycloak.ClaimsFromContext(ctx)
//	if !ok {
//	    return errors.Unauthorized("no authenticated principal")
//	}
//	log.Info("request", "sub", claims.Subject)
func ClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*TokenClaims)
	return claims, ok
}

// MustClaimsFromContext retrieves the claims from the context, panicking
// if none are present. Only use on paths guaranteed to run behind the
// authentication middleware.
func MustClaimsFromContext(ctx context.Context) *TokenClaims {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		panic("keycloak: no claims in context; ensure authentication middleware is configured")
	}
	return claims
}

// ContextWithRawToken returns a new context carrying the raw bearer
// token. Used by services that forward the caller's token to downstream
// APIs on the caller's behalf.
func ContextWithRawToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, rawTokenKey, token)
}

// RawTokenFromContext retrieves the raw bearer token from the context.
func RawTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(rawTokenKey).(string)
	return token, ok
}

// TraceIDFromContext extracts the OpenTelemetry trace ID from the
// context, for correlating authentication events with distributed
// traces. Returns the trace ID as a hex string and true if a valid trace
// is active.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
